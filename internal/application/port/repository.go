package port

import (
	"context"
	"time"

	"github.com/provfund/benefits-engine/internal/domain/eligibility"
	"github.com/provfund/benefits-engine/internal/domain/entity"
)

// RequestRepository defines persistence operations for BenefitRequest.
//
// The guarded mutations assert the expected current status (and, where
// relevant, assignment) as SQL preconditions. When the precondition fails
// because another actor already moved the request, they return
// apperr.ErrTransitionConflict; a missing row returns apperr.ErrNotFound.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.BenefitRequest) error
	GetByID(ctx context.Context, id int64) (*entity.BenefitRequest, error)
	ListBySubject(ctx context.Context, subjectUserID string) ([]*entity.BenefitRequest, error)

	// HasOpenForSubject reports whether the subject has a request of the
	// given kind in a non-terminal status.
	HasOpenForSubject(ctx context.Context, subjectUserID string, kind entity.RequestKind) (bool, error)

	// UpdateStatus moves the request from one status to another.
	UpdateStatus(ctx context.Context, id int64, from, to entity.Status) error

	// AssignOfficer binds the officer and moves the request into review.
	// The officer reference is set once; a request with an officer already
	// bound conflicts.
	AssignOfficer(ctx context.Context, id int64, officerID string, from, to entity.Status) error

	// SetReadiness records the assistant's pre-review verdict: binds the
	// assistant (first call only), flips the ready flag and moves between
	// the pending and incomplete statuses.
	SetReadiness(ctx context.Context, id int64, assistantID string, ready bool, from, to entity.Status) error

	// SetReleased finalizes an approved request with its payment reference.
	SetReleased(ctx context.Context, id int64, reference string, from, to entity.Status) error
}

// StepRepository defines persistence operations for ApprovalStep.
type StepRepository interface {
	// ReplaceChain deletes any existing chain for the request and inserts
	// the given steps. Full delete-then-insert, never a partial edit; the
	// step with the lowest sequence order must arrive flagged current.
	ReplaceChain(ctx context.Context, requestID int64, steps []*entity.ApprovalStep) error

	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error)

	// GetCurrent returns the single current step, or apperr.ErrNotFound.
	GetCurrent(ctx context.Context, requestID int64) (*entity.ApprovalStep, error)

	// GetCurrentForApprover returns the current step only if it belongs to
	// the given approver; apperr.ErrNotFound covers both "not an approver"
	// and "wrong sequence position".
	GetCurrentForApprover(ctx context.Context, requestID int64, approverID string) (*entity.ApprovalStep, error)

	// CompleteCurrent records the decision on the step and clears its
	// current flag, guarded on the step still being current for this
	// approver. A failed precondition returns apperr.ErrTransitionConflict.
	CompleteCurrent(ctx context.Context, stepID int64, approverID string, decision entity.Decision, comments string, reviewedAt time.Time) error

	// NextPending returns the pending step with the smallest sequence order
	// greater than afterOrder, or apperr.ErrNotFound when the chain is
	// exhausted.
	NextPending(ctx context.Context, requestID int64, afterOrder int) (*entity.ApprovalStep, error)

	// Activate marks the given step current.
	Activate(ctx context.Context, stepID int64) error
}

// HistoryRepository defines persistence operations for the append-only
// audit trail. There is no update or delete.
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	ListByRequestID(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error)
}

// ContributionLedger is the read-only collaborator supplying contribution
// totals and employment data for eligibility evaluation.
type ContributionLedger interface {
	GetMemberProfile(ctx context.Context, subjectUserID string) (*eligibility.MemberProfile, error)
}

// TransactionManager handles database transactions. Mutating operations
// run their reads, conditional writes and audit append inside one
// transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
