package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/provfund/benefits-engine/internal/apperr"
	"github.com/provfund/benefits-engine/internal/application/port"
	"github.com/provfund/benefits-engine/internal/domain/entity"
	"github.com/provfund/benefits-engine/internal/domain/lifecycle"
	"go.uber.org/zap"
)

// Assignment names one approver and their position in the chain.
type Assignment struct {
	ApproverID    string `json:"approver_id"`
	SequenceOrder int    `json:"sequence_order"`
}

// ReviewResult reports the outcome of one approver's decision.
type ReviewResult struct {
	Request       *entity.BenefitRequest `json:"request"`
	Step          *entity.ApprovalStep   `json:"step"`
	ChainComplete bool                   `json:"chain_complete"`
}

// ApprovalService drives the sequential approval chain on loans and the
// single officer decision on withdrawals.
type ApprovalService interface {
	AssignApprovers(ctx context.Context, requestID int64, officerID string, assignments []Assignment) ([]*entity.ApprovalStep, error)
	ReviewApproval(ctx context.Context, requestID int64, approverID string, approve bool, comments string) (*ReviewResult, error)
	DecideReview(ctx context.Context, requestID int64, officerID string, approve bool, comments string) (*entity.BenefitRequest, error)
	GetChain(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error)
}

type approvalServiceImpl struct {
	requestRepo port.RequestRepository
	stepRepo    port.StepRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	notifier    port.Notifier
	logger      *zap.Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	requestRepo port.RequestRepository,
	stepRepo port.StepRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	notifier port.Notifier,
	logger *zap.Logger,
) ApprovalService {
	return &approvalServiceImpl{
		requestRepo: requestRepo,
		stepRepo:    stepRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		notifier:    notifier,
		logger:      logger,
	}
}

// AssignApprovers installs the ordered approver chain for a loan. A later
// call replaces the whole chain; the step with the lowest sequence order
// becomes current.
func (s *approvalServiceImpl) AssignApprovers(ctx context.Context, requestID int64, officerID string, assignments []Assignment) ([]*entity.ApprovalStep, error) {
	if len(assignments) == 0 {
		return nil, apperr.Validation("assignments", "at least one approver is required")
	}

	seen := make(map[int]bool, len(assignments))
	for _, a := range assignments {
		if a.ApproverID == "" {
			return nil, apperr.Validation("approver_id", "approver id must not be empty")
		}
		if a.SequenceOrder <= 0 {
			return nil, apperr.Validation("sequence_order", "sequence order must be positive")
		}
		if seen[a.SequenceOrder] {
			return nil, apperr.Validation("sequence_order", fmt.Sprintf("duplicate sequence order %d", a.SequenceOrder))
		}
		seen[a.SequenceOrder] = true
	}

	ordered := make([]Assignment, len(assignments))
	copy(ordered, assignments)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SequenceOrder < ordered[j].SequenceOrder
	})

	var (
		steps   []*entity.ApprovalStep
		updated *entity.BenefitRequest
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}

		machine := lifecycle.ForKind(req.Kind)
		tc := lifecycle.Context{
			Actor: lifecycle.Actor{ID: officerID, Role: entity.RoleOfficer},
			View:  lifecycle.ViewOf(req, ""),
		}
		to, err := machine.Resolve(req.Status, lifecycle.TriggerAssignApprovers, tc)
		if err != nil {
			return err
		}

		steps = make([]*entity.ApprovalStep, 0, len(ordered))
		for i, a := range ordered {
			steps = append(steps, &entity.ApprovalStep{
				ApproverID:    a.ApproverID,
				SequenceOrder: a.SequenceOrder,
				IsCurrent:     i == 0,
				Decision:      entity.DecisionPending,
			})
		}
		if err := s.stepRepo.ReplaceChain(txCtx, requestID, steps); err != nil {
			return err
		}

		if to != req.Status {
			if err := s.requestRepo.UpdateStatus(txCtx, requestID, req.Status, to); err != nil {
				return err
			}
		}

		if err := s.historyRepo.Append(txCtx, &entity.HistoryEntry{
			RequestID:   requestID,
			Action:      entity.ActionApproversAssigned,
			PerformedBy: officerID,
			Remarks:     fmt.Sprintf("%d approvers assigned", len(steps)),
		}); err != nil {
			return err
		}

		updated, err = s.requestRepo.GetByID(txCtx, requestID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to assign approvers",
			zap.Int64("request_id", requestID),
			zap.String("officer_id", officerID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Approver chain assigned",
		zap.Int64("request_id", requestID),
		zap.Int("steps", len(steps)))
	s.notifier.Notify(ctx, s.event(updated, entity.ActionApproversAssigned, officerID))
	return steps, nil
}

// ReviewApproval records the decision of the approver whose turn it is.
// A rejection closes the request immediately; an approval hands over to
// the next step, or closes the chain when none remains.
func (s *approvalServiceImpl) ReviewApproval(ctx context.Context, requestID int64, approverID string, approve bool, comments string) (*ReviewResult, error) {
	var (
		result ReviewResult
		action entity.Action
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}

		// The turn check comes before the status check: an approver
		// acting out of turn on a closed chain is told "not your turn",
		// not that the transition is invalid.
		step, err := s.stepRepo.GetCurrentForApprover(txCtx, requestID, approverID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.NotAuthorized("not your turn")
			}
			return err
		}

		machine := lifecycle.ForKind(req.Kind)
		trigger := lifecycle.TriggerApprove
		decision := entity.DecisionApproved
		if !approve {
			trigger = lifecycle.TriggerReject
			decision = entity.DecisionRejected
		}
		tc := lifecycle.Context{
			Actor: lifecycle.Actor{ID: approverID, Role: entity.RoleOfficer},
			View:  lifecycle.ViewOf(req, step.ApproverID),
		}
		to, err := machine.Resolve(req.Status, trigger, tc)
		if err != nil {
			return err
		}

		reviewedAt := time.Now().UTC()
		if err := s.stepRepo.CompleteCurrent(txCtx, step.ID, approverID, decision, comments, reviewedAt); err != nil {
			return err
		}
		step.Decision = decision
		step.Comments = comments
		step.ReviewedAt = &reviewedAt
		step.IsCurrent = false
		result.Step = step

		if !approve {
			if err := s.requestRepo.UpdateStatus(txCtx, requestID, req.Status, to); err != nil {
				return err
			}
			result.ChainComplete = true
			action = entity.ActionRejected
		} else {
			next, err := s.stepRepo.NextPending(txCtx, requestID, step.SequenceOrder)
			switch {
			case err == nil:
				if err := s.stepRepo.Activate(txCtx, next.ID); err != nil {
					return err
				}
				action = entity.ActionStepApproved
			case errors.Is(err, apperr.ErrNotFound):
				if err := s.requestRepo.UpdateStatus(txCtx, requestID, req.Status, to); err != nil {
					return err
				}
				result.ChainComplete = true
				action = entity.ActionApproved
			default:
				return err
			}
		}

		if err := s.historyRepo.Append(txCtx, &entity.HistoryEntry{
			RequestID:   requestID,
			Action:      action,
			PerformedBy: approverID,
			Remarks:     comments,
		}); err != nil {
			return err
		}

		result.Request, err = s.requestRepo.GetByID(txCtx, requestID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to record approval decision",
			zap.Int64("request_id", requestID),
			zap.String("approver_id", approverID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Approval decision recorded",
		zap.Int64("request_id", requestID),
		zap.String("approver_id", approverID),
		zap.Bool("approve", approve),
		zap.Bool("chain_complete", result.ChainComplete))
	s.notifier.Notify(ctx, s.event(result.Request, action, approverID))
	return &result, nil
}

// DecideReview records the assigned officer's decision on a withdrawal
// under review. Withdrawals carry no approver chain; the officer decides
// alone.
func (s *approvalServiceImpl) DecideReview(ctx context.Context, requestID int64, officerID string, approve bool, comments string) (*entity.BenefitRequest, error) {
	var (
		updated *entity.BenefitRequest
		action  = entity.ActionApproved
	)
	if !approve {
		action = entity.ActionRejected
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}

		machine := lifecycle.ForKind(req.Kind)
		trigger := lifecycle.TriggerApprove
		if !approve {
			trigger = lifecycle.TriggerReject
		}
		tc := lifecycle.Context{
			Actor: lifecycle.Actor{ID: officerID, Role: entity.RoleOfficer},
			View:  lifecycle.ViewOf(req, ""),
		}
		to, err := machine.Resolve(req.Status, trigger, tc)
		if err != nil {
			return err
		}

		if err := s.requestRepo.UpdateStatus(txCtx, requestID, req.Status, to); err != nil {
			return err
		}

		if err := s.historyRepo.Append(txCtx, &entity.HistoryEntry{
			RequestID:   requestID,
			Action:      action,
			PerformedBy: officerID,
			Remarks:     comments,
		}); err != nil {
			return err
		}

		updated, err = s.requestRepo.GetByID(txCtx, requestID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to decide review",
			zap.Int64("request_id", requestID),
			zap.String("officer_id", officerID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Review decided",
		zap.Int64("request_id", requestID),
		zap.String("status", updated.Status.String()))
	s.notifier.Notify(ctx, s.event(updated, action, officerID))
	return updated, nil
}

// GetChain retrieves the approval chain for a request
func (s *approvalServiceImpl) GetChain(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error) {
	if _, err := s.requestRepo.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.stepRepo.GetByRequestID(ctx, requestID)
}

func (s *approvalServiceImpl) event(req *entity.BenefitRequest, action entity.Action, performedBy string) port.NotificationEvent {
	return port.NotificationEvent{
		RequestID:     req.ID,
		Kind:          req.Kind,
		Action:        action,
		Status:        req.Status,
		SubjectUserID: req.SubjectUserID,
		PerformedBy:   performedBy,
	}
}
