package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/provfund/benefits-engine/internal/apperr"
	"github.com/provfund/benefits-engine/internal/application/port"
	"github.com/provfund/benefits-engine/internal/domain/entity"
	"github.com/provfund/benefits-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const stepColumns = `id, request_id, approver_id, sequence_order, is_current, decision,
	reviewed_at, comments, created_at`

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewStepRepository creates a new approval step repository
func NewStepRepository(db *sqlite.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// ReplaceChain deletes any existing chain for the request and inserts the
// given steps. Later calls fully replace earlier chains; the unique
// (request_id, sequence_order) constraint rejects duplicate orders.
func (r *StepRepository) ReplaceChain(ctx context.Context, requestID int64, steps []*entity.ApprovalStep) error {
	exec := r.db.Executor(ctx)

	if _, err := exec.ExecContext(ctx, "DELETE FROM approval_steps WHERE request_id = ?", requestID); err != nil {
		r.logger.Error("Failed to delete existing chain", zap.Int64("request_id", requestID), zap.Error(err))
		return fmt.Errorf("failed to delete existing chain: %w", err)
	}

	query := `
		INSERT INTO approval_steps (
			request_id, approver_id, sequence_order, is_current, decision, comments, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	for _, step := range steps {
		step.RequestID = requestID
		step.CreatedAt = now

		result, err := exec.ExecContext(ctx, query,
			step.RequestID,
			step.ApproverID,
			step.SequenceOrder,
			step.IsCurrent,
			step.Decision,
			step.Comments,
			step.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to insert approval step",
				zap.Int64("request_id", requestID),
				zap.String("approver_id", step.ApproverID),
				zap.Error(err))
			return fmt.Errorf("failed to insert approval step: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = id
	}

	return nil
}

// GetByRequestID retrieves all steps for a request ordered by sequence
func (r *StepRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE request_id = ? ORDER BY sequence_order ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get steps", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// GetCurrent retrieves the single current step for a request
func (r *StepRepository) GetCurrent(ctx context.Context, requestID int64) (*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE request_id = ? AND is_current = 1`

	step, err := scanStep(r.db.Executor(ctx).QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("current step for request %d: %w", requestID, apperr.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get current step", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get current step: %w", err)
	}
	return step, nil
}

// GetCurrentForApprover retrieves the current step only if it belongs to
// the given approver. A miss covers both "not an approver" and "wrong
// sequence position".
func (r *StepRepository) GetCurrentForApprover(ctx context.Context, requestID int64, approverID string) (*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps WHERE request_id = ? AND approver_id = ? AND is_current = 1`

	step, err := scanStep(r.db.Executor(ctx).QueryRowContext(ctx, query, requestID, approverID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("current step for approver %s on request %d: %w", approverID, requestID, apperr.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get current step for approver",
			zap.Int64("request_id", requestID),
			zap.String("approver_id", approverID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get current step: %w", err)
	}
	return step, nil
}

// CompleteCurrent records the decision and clears the current flag,
// guarded on the step still being current for this approver. Two approvers
// racing on the same step cannot both succeed: the loser's precondition
// fails after the winner commits.
func (r *StepRepository) CompleteCurrent(ctx context.Context, stepID int64, approverID string, decision entity.Decision, comments string, reviewedAt time.Time) error {
	query := `
		UPDATE approval_steps
		SET decision = ?, comments = ?, reviewed_at = ?, is_current = 0
		WHERE id = ? AND approver_id = ? AND is_current = 1 AND decision = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		decision, comments, reviewedAt, stepID, approverID, entity.DecisionPending)
	if err != nil {
		r.logger.Error("Failed to complete step", zap.Int64("step_id", stepID), zap.Error(err))
		return fmt.Errorf("failed to complete step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("Step no longer current", zap.Int64("step_id", stepID), zap.String("approver_id", approverID))
		return fmt.Errorf("approval step %d: %w", stepID, apperr.ErrTransitionConflict)
	}
	return nil
}

// NextPending retrieves the pending step with the smallest sequence order
// greater than afterOrder
func (r *StepRepository) NextPending(ctx context.Context, requestID int64, afterOrder int) (*entity.ApprovalStep, error) {
	query := `
		SELECT ` + stepColumns + ` FROM approval_steps
		WHERE request_id = ? AND decision = ? AND sequence_order > ?
		ORDER BY sequence_order ASC LIMIT 1
	`

	step, err := scanStep(r.db.Executor(ctx).QueryRowContext(ctx, query, requestID, entity.DecisionPending, afterOrder))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("next pending step for request %d: %w", requestID, apperr.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get next pending step", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get next pending step: %w", err)
	}
	return step, nil
}

// Activate marks the given step current
func (r *StepRepository) Activate(ctx context.Context, stepID int64) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		"UPDATE approval_steps SET is_current = 1 WHERE id = ? AND decision = ?",
		stepID, entity.DecisionPending)
	if err != nil {
		r.logger.Error("Failed to activate step", zap.Int64("step_id", stepID), zap.Error(err))
		return fmt.Errorf("failed to activate step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approval step %d: %w", stepID, apperr.ErrTransitionConflict)
	}
	return nil
}

func scanStep(row rowScanner) (*entity.ApprovalStep, error) {
	var step entity.ApprovalStep
	var reviewedAt sql.NullTime

	err := row.Scan(
		&step.ID,
		&step.RequestID,
		&step.ApproverID,
		&step.SequenceOrder,
		&step.IsCurrent,
		&step.Decision,
		&reviewedAt,
		&step.Comments,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reviewedAt.Valid {
		step.ReviewedAt = &reviewedAt.Time
	}
	return &step, nil
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
