package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/provfund/benefits-engine/internal/apperr"
	"github.com/provfund/benefits-engine/internal/application/port"
	"github.com/provfund/benefits-engine/internal/domain/access"
	"github.com/provfund/benefits-engine/internal/domain/eligibility"
	"github.com/provfund/benefits-engine/internal/domain/entity"
	"github.com/provfund/benefits-engine/internal/domain/lifecycle"
	"go.uber.org/zap"
)

// CreateInput carries a new benefit request application.
type CreateInput struct {
	SubjectUserID       string
	Kind                entity.RequestKind
	AmountCents         int64
	TermMonths          int
	Category            entity.WithdrawalCategory
	ConsentAcknowledged bool
}

// EligibilityResult is the pre-flight verdict exposed to callers before
// they submit an application.
type EligibilityResult struct {
	Loan       *eligibility.LoanVerdict       `json:"loan,omitempty"`
	Withdrawal *eligibility.WithdrawalVerdict `json:"withdrawal,omitempty"`
}

// RequestService drives the benefit request lifecycle: creation,
// pre-review, review hand-off, release and cancellation. Every mutation
// runs in one transaction together with its audit append.
type RequestService interface {
	Create(ctx context.Context, in CreateInput) (*entity.BenefitRequest, error)
	Get(ctx context.Context, id int64) (*entity.BenefitRequest, error)
	ListBySubject(ctx context.Context, subjectUserID string) ([]*entity.BenefitRequest, error)
	Evaluate(ctx context.Context, subjectUserID string, kind entity.RequestKind, category entity.WithdrawalCategory) (*EligibilityResult, error)
	MarkReady(ctx context.Context, requestID int64, actorID string, actorRole entity.Role) (*entity.BenefitRequest, error)
	MarkIncomplete(ctx context.Context, requestID int64, actorID string, actorRole entity.Role, remarks string) (*entity.BenefitRequest, error)
	MoveToReview(ctx context.Context, requestID int64, actorID string, actorRole entity.Role) (*entity.BenefitRequest, error)
	Release(ctx context.Context, requestID int64, actorID, reference string) (*entity.BenefitRequest, error)
	Cancel(ctx context.Context, requestID int64, actorID string, actorRole entity.Role, remarks string) (*entity.BenefitRequest, error)
	GetAccess(ctx context.Context, requestID int64, actorID string, actorRole entity.Role) (access.Capabilities, error)
	GetHistory(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error)
}

type requestServiceImpl struct {
	requestRepo port.RequestRepository
	stepRepo    port.StepRepository
	historyRepo port.HistoryRepository
	ledger      port.ContributionLedger
	txManager   port.TransactionManager
	notifier    port.Notifier
	loanPolicy  eligibility.LoanPolicy
	logger      *zap.Logger
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requestRepo port.RequestRepository,
	stepRepo port.StepRepository,
	historyRepo port.HistoryRepository,
	ledger port.ContributionLedger,
	txManager port.TransactionManager,
	notifier port.Notifier,
	loanPolicy eligibility.LoanPolicy,
	logger *zap.Logger,
) RequestService {
	return &requestServiceImpl{
		requestRepo: requestRepo,
		stepRepo:    stepRepo,
		historyRepo: historyRepo,
		ledger:      ledger,
		txManager:   txManager,
		notifier:    notifier,
		loanPolicy:  loanPolicy,
		logger:      logger,
	}
}

// Create validates and persists a new benefit request. Eligibility is
// evaluated up front and the open-request check is repeated inside the
// transaction, closing the race window between check and insert.
func (s *requestServiceImpl) Create(ctx context.Context, in CreateInput) (*entity.BenefitRequest, error) {
	if !in.Kind.IsValid() {
		return nil, apperr.Validation("request_kind", "unknown request kind")
	}
	if !in.ConsentAcknowledged {
		return nil, apperr.Validation("consent_acknowledged", "consent is required")
	}
	if in.AmountCents <= 0 {
		return nil, apperr.Validation("amount_cents", "amount must be positive")
	}

	profile, err := s.ledger.GetMemberProfile(ctx, in.SubjectUserID)
	if err != nil {
		return nil, err
	}

	hasOpen, err := s.requestRepo.HasOpenForSubject(ctx, in.SubjectUserID, in.Kind)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.checkEligibility(profile, in, hasOpen, now); err != nil {
		return nil, err
	}

	req := &entity.BenefitRequest{
		SubjectUserID:       in.SubjectUserID,
		Kind:                in.Kind,
		Status:              entity.StatusPending,
		AmountCents:         in.AmountCents,
		TermMonths:          in.TermMonths,
		Category:            in.Category,
		ConsentAcknowledged: true,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		stillOpen, err := s.requestRepo.HasOpenForSubject(txCtx, in.SubjectUserID, in.Kind)
		if err != nil {
			return err
		}
		if stillOpen {
			if in.Kind == entity.KindLoan {
				return apperr.Ineligible("existing active loan")
			}
			return apperr.Ineligible("existing active withdrawal")
		}

		if err := s.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		return s.historyRepo.Append(txCtx, &entity.HistoryEntry{
			RequestID:   req.ID,
			Action:      entity.ActionCreated,
			PerformedBy: in.SubjectUserID,
			Remarks:     fmt.Sprintf("%s request submitted", in.Kind),
		})
	})
	if err != nil {
		s.logger.Error("Failed to create request", zap.String("subject_user_id", in.SubjectUserID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Benefit request created",
		zap.Int64("id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("subject_user_id", req.SubjectUserID))
	s.notifier.Notify(ctx, s.event(req, entity.ActionCreated, in.SubjectUserID))
	return req, nil
}

func (s *requestServiceImpl) checkEligibility(profile *eligibility.MemberProfile, in CreateInput, hasOpen bool, now time.Time) error {
	switch in.Kind {
	case entity.KindLoan:
		verdict := eligibility.EvaluateLoan(*profile, s.loanPolicy, hasOpen, now)
		if !verdict.Eligible {
			return apperr.Ineligible(verdict.Reason)
		}
		if in.AmountCents < verdict.MinAmountCents {
			return apperr.Validation("amount_cents", "amount below policy minimum")
		}
		if in.AmountCents > verdict.MaxAmountCents {
			return apperr.Validation("amount_cents", "amount exceeds vested balance")
		}
		if in.TermMonths <= 0 || in.TermMonths > verdict.MaxTermMonths {
			return apperr.Validation("term_months", "term outside policy bounds")
		}
	case entity.KindWithdrawal:
		verdict := eligibility.EvaluateWithdrawal(*profile, in.Category, hasOpen, now)
		if !verdict.Eligible {
			return apperr.Ineligible(verdict.Reason)
		}
		if in.AmountCents > verdict.Snapshot.VestedCents {
			return apperr.Validation("amount_cents", "amount exceeds vested balance")
		}
	}
	return nil
}

// Get retrieves a request by ID
func (s *requestServiceImpl) Get(ctx context.Context, id int64) (*entity.BenefitRequest, error) {
	return s.requestRepo.GetByID(ctx, id)
}

// ListBySubject retrieves all requests owned by a subject
func (s *requestServiceImpl) ListBySubject(ctx context.Context, subjectUserID string) ([]*entity.BenefitRequest, error) {
	return s.requestRepo.ListBySubject(ctx, subjectUserID)
}

// Evaluate computes the eligibility verdict without creating anything.
func (s *requestServiceImpl) Evaluate(ctx context.Context, subjectUserID string, kind entity.RequestKind, category entity.WithdrawalCategory) (*EligibilityResult, error) {
	if !kind.IsValid() {
		return nil, apperr.Validation("request_kind", "unknown request kind")
	}

	profile, err := s.ledger.GetMemberProfile(ctx, subjectUserID)
	if err != nil {
		return nil, err
	}
	hasOpen, err := s.requestRepo.HasOpenForSubject(ctx, subjectUserID, kind)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &EligibilityResult{}
	if kind == entity.KindLoan {
		verdict := eligibility.EvaluateLoan(*profile, s.loanPolicy, hasOpen, now)
		result.Loan = &verdict
	} else {
		verdict := eligibility.EvaluateWithdrawal(*profile, category, hasOpen, now)
		result.Withdrawal = &verdict
	}
	return result, nil
}

// MarkReady records the assistant's verdict that requirements are
// complete. The role comes from the authenticated identity; the lifecycle
// table rejects anything but a bound (or not-yet-bound) assistant.
func (s *requestServiceImpl) MarkReady(ctx context.Context, requestID int64, actorID string, actorRole entity.Role) (*entity.BenefitRequest, error) {
	actor := lifecycle.Actor{ID: actorID, Role: actorRole}
	return s.transition(ctx, requestID, lifecycle.TriggerMarkReady, actor, entity.ActionMarkedReady, "requirements complete",
		func(txCtx context.Context, req *entity.BenefitRequest, to entity.Status) error {
			return s.requestRepo.SetReadiness(txCtx, requestID, actorID, true, req.Status, to)
		})
}

// MarkIncomplete records the assistant's verdict that requirements are
// missing
func (s *requestServiceImpl) MarkIncomplete(ctx context.Context, requestID int64, actorID string, actorRole entity.Role, remarks string) (*entity.BenefitRequest, error) {
	actor := lifecycle.Actor{ID: actorID, Role: actorRole}
	return s.transition(ctx, requestID, lifecycle.TriggerMarkIncomplete, actor, entity.ActionMarkedIncomplete, remarks,
		func(txCtx context.Context, req *entity.BenefitRequest, to entity.Status) error {
			return s.requestRepo.SetReadiness(txCtx, requestID, actorID, false, req.Status, to)
		})
}

// MoveToReview assigns the calling actor as officer and moves the request
// into review. Only an actor authenticated with the officer role passes
// the table guard.
func (s *requestServiceImpl) MoveToReview(ctx context.Context, requestID int64, actorID string, actorRole entity.Role) (*entity.BenefitRequest, error) {
	actor := lifecycle.Actor{ID: actorID, Role: actorRole}
	return s.transition(ctx, requestID, lifecycle.TriggerMoveToReview, actor, entity.ActionMovedToReview, "",
		func(txCtx context.Context, req *entity.BenefitRequest, to entity.Status) error {
			return s.requestRepo.AssignOfficer(txCtx, requestID, actorID, req.Status, to)
		})
}

// Release finalizes an approved request with its payment reference
func (s *requestServiceImpl) Release(ctx context.Context, requestID int64, actorID, reference string) (*entity.BenefitRequest, error) {
	if reference == "" {
		return nil, apperr.Validation("reference", "release reference is required")
	}
	actor := lifecycle.Actor{ID: actorID, Role: entity.RoleOfficer}
	return s.transition(ctx, requestID, lifecycle.TriggerRelease, actor, entity.ActionReleased, reference,
		func(txCtx context.Context, req *entity.BenefitRequest, to entity.Status) error {
			return s.requestRepo.SetReleased(txCtx, requestID, reference, req.Status, to)
		})
}

// Cancel withdraws a request: the subject pre-approval, HR at any
// non-terminal stage
func (s *requestServiceImpl) Cancel(ctx context.Context, requestID int64, actorID string, actorRole entity.Role, remarks string) (*entity.BenefitRequest, error) {
	actor := lifecycle.Actor{ID: actorID, Role: actorRole}
	return s.transition(ctx, requestID, lifecycle.TriggerCancel, actor, entity.ActionCancelled, remarks,
		func(txCtx context.Context, req *entity.BenefitRequest, to entity.Status) error {
			return s.requestRepo.UpdateStatus(txCtx, requestID, req.Status, to)
		})
}

// transition runs the shared guarded-transition sequence: load, resolve
// against the lifecycle table, apply the conditional write, append one
// audit entry, all in one transaction. The notifier fires after commit.
func (s *requestServiceImpl) transition(
	ctx context.Context,
	requestID int64,
	trigger lifecycle.Trigger,
	actor lifecycle.Actor,
	action entity.Action,
	remarks string,
	apply func(txCtx context.Context, req *entity.BenefitRequest, to entity.Status) error,
) (*entity.BenefitRequest, error) {
	var updated *entity.BenefitRequest

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}

		machine := lifecycle.ForKind(req.Kind)
		tc := lifecycle.Context{Actor: actor, View: lifecycle.ViewOf(req, "")}
		to, err := machine.Resolve(req.Status, trigger, tc)
		if err != nil {
			return err
		}

		if err := apply(txCtx, req, to); err != nil {
			return err
		}

		if err := s.historyRepo.Append(txCtx, &entity.HistoryEntry{
			RequestID:   requestID,
			Action:      action,
			PerformedBy: actor.ID,
			Remarks:     remarks,
		}); err != nil {
			return err
		}

		updated, err = s.requestRepo.GetByID(txCtx, requestID)
		return err
	})
	if err != nil {
		s.logger.Error("Transition failed",
			zap.Int64("request_id", requestID),
			zap.String("trigger", trigger.String()),
			zap.String("actor_id", actor.ID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Transition applied",
		zap.Int64("request_id", requestID),
		zap.String("trigger", trigger.String()),
		zap.String("status", updated.Status.String()))
	s.notifier.Notify(ctx, s.event(updated, action, actor.ID))
	return updated, nil
}

// GetAccess computes the capability set visible to an actor for a request
func (s *requestServiceImpl) GetAccess(ctx context.Context, requestID int64, actorID string, actorRole entity.Role) (access.Capabilities, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return access.Capabilities{}, err
	}

	currentApproverID := ""
	current, err := s.stepRepo.GetCurrent(ctx, requestID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return access.Capabilities{}, err
	}
	if current != nil {
		currentApproverID = current.ApproverID
	}

	return access.Evaluate(access.Input{
		ActorID:           actorID,
		Role:              actorRole,
		Kind:              req.Kind,
		Status:            req.Status,
		SubjectUserID:     req.SubjectUserID,
		AssistantID:       req.AssistantID,
		OfficerID:         req.OfficerID,
		ReadyForReview:    req.ReadyForReview,
		CurrentApproverID: currentApproverID,
	}), nil
}

// GetHistory retrieves the ordered audit trail for a request
func (s *requestServiceImpl) GetHistory(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error) {
	if _, err := s.requestRepo.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByRequestID(ctx, requestID)
}

func (s *requestServiceImpl) event(req *entity.BenefitRequest, action entity.Action, performedBy string) port.NotificationEvent {
	return port.NotificationEvent{
		RequestID:     req.ID,
		Kind:          req.Kind,
		Action:        action,
		Status:        req.Status,
		SubjectUserID: req.SubjectUserID,
		PerformedBy:   performedBy,
	}
}
