package entity

import "time"

// RequestKind distinguishes loan and withdrawal applications. The engine
// mechanics are shared; only the transition table and eligibility rule
// differ per kind.
type RequestKind string

const (
	KindLoan       RequestKind = "LOAN"
	KindWithdrawal RequestKind = "WITHDRAWAL"
)

// IsValid returns true if the kind is a known request kind.
func (k RequestKind) IsValid() bool {
	return k == KindLoan || k == KindWithdrawal
}

// Status is the lifecycle status of a benefit request. Mutated only
// through lifecycle machine transitions.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusIncomplete        Status = "INCOMPLETE"
	StatusUnderReview       Status = "UNDER_REVIEW_OFFICER"
	StatusAwaitingApprovals Status = "AWAITING_APPROVALS"
	StatusApproved          Status = "APPROVED"
	StatusActive            Status = "ACTIVE"
	StatusReleased          Status = "RELEASED"
	StatusRejected          Status = "REJECTED"
	StatusCancelled         Status = "CANCELLED"
)

var terminalStatuses = map[Status]bool{
	StatusActive:    true,
	StatusReleased:  true,
	StatusRejected:  true,
	StatusCancelled: true,
}

// IsTerminal returns true if no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Role is the role of an authenticated actor. Token issuance and
// authentication are out of scope; the engine only consumes an already
// resolved identity and role.
type Role string

const (
	RoleEmployee  Role = "EMPLOYEE"
	RoleAssistant Role = "ASSISTANT"
	RoleOfficer   Role = "OFFICER"
	RoleHR        Role = "HR"
)

// WithdrawalCategory classifies a withdrawal application. Some categories
// bypass the vesting cliff.
type WithdrawalCategory string

const (
	CategoryGeneral    WithdrawalCategory = "GENERAL"
	CategoryRetirement WithdrawalCategory = "RETIREMENT"
	CategoryDisability WithdrawalCategory = "DISABILITY"
	CategoryDeath      WithdrawalCategory = "DEATH"
	CategoryRedundancy WithdrawalCategory = "REDUNDANCY"
)

// BypassesCliff returns true for categories that vest the full balance
// immediately regardless of tenure.
func (c WithdrawalCategory) BypassesCliff() bool {
	switch c {
	case CategoryRetirement, CategoryDisability, CategoryDeath, CategoryRedundancy:
		return true
	}
	return false
}

// BenefitRequest is the aggregate root: one row per loan or withdrawal
// application. Never physically deleted; terminal rows are retained for
// audit.
type BenefitRequest struct {
	ID                  int64              `json:"id"`
	SubjectUserID       string             `json:"subject_user_id"`
	Kind                RequestKind        `json:"request_kind"`
	Status              Status             `json:"status"`
	AssistantID         string             `json:"assistant_id,omitempty"`
	OfficerID           string             `json:"officer_id,omitempty"`
	AmountCents         int64              `json:"amount_cents"`
	PayoutAmountCents   *int64             `json:"payout_amount_cents,omitempty"`
	TermMonths          int                `json:"term_months,omitempty"`
	Category            WithdrawalCategory `json:"category,omitempty"`
	ReadyForReview      bool               `json:"ready_for_review"`
	ConsentAcknowledged bool               `json:"consent_acknowledged"`
	ReleaseReference    string             `json:"release_reference,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
