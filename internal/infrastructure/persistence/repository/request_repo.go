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

const requestColumns = `id, subject_user_id, request_kind, status, assistant_id, officer_id,
	amount_cents, payout_amount_cents, term_months, category, ready_for_review,
	consent_acknowledged, release_reference, created_at, updated_at`

// RequestRepository implements port.RequestRepository. All guarded
// mutations are conditional updates: the WHERE clause carries the expected
// prior state, and a zero-row result is surfaced as a typed error, never
// treated as success.
type RequestRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new benefit request repository
func NewRequestRepository(db *sqlite.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new benefit request
func (r *RequestRepository) Create(ctx context.Context, req *entity.BenefitRequest) error {
	query := `
		INSERT INTO benefit_requests (
			subject_user_id, request_kind, status, amount_cents, payout_amount_cents,
			term_months, category, ready_for_review, consent_acknowledged,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.SubjectUserID,
		req.Kind,
		req.Status,
		req.AmountCents,
		req.PayoutAmountCents,
		req.TermMonths,
		req.Category,
		req.ReadyForReview,
		req.ConsentAcknowledged,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create benefit request", zap.Error(err))
		return fmt.Errorf("failed to create benefit request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	return nil
}

// GetByID retrieves a benefit request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.BenefitRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM benefit_requests WHERE id = ?`

	req, err := scanRequest(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("benefit request %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get benefit request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get benefit request: %w", err)
	}
	return req, nil
}

// ListBySubject retrieves all requests owned by a subject
func (r *RequestRepository) ListBySubject(ctx context.Context, subjectUserID string) ([]*entity.BenefitRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM benefit_requests WHERE subject_user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, subjectUserID)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.String("subject_user_id", subjectUserID), zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.BenefitRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// HasOpenForSubject reports whether the subject has a request of the given
// kind in a non-terminal status
func (r *RequestRepository) HasOpenForSubject(ctx context.Context, subjectUserID string, kind entity.RequestKind) (bool, error) {
	query := `
		SELECT COUNT(1) FROM benefit_requests
		WHERE subject_user_id = ? AND request_kind = ?
			AND status NOT IN (?, ?, ?, ?)
	`

	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		subjectUserID, kind,
		entity.StatusActive, entity.StatusReleased, entity.StatusRejected, entity.StatusCancelled,
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to check open requests", zap.String("subject_user_id", subjectUserID), zap.Error(err))
		return false, fmt.Errorf("failed to check open requests: %w", err)
	}
	return count > 0, nil
}

// UpdateStatus moves the request from one status to another, guarded on
// the expected current status
func (r *RequestRepository) UpdateStatus(ctx context.Context, id int64, from, to entity.Status) error {
	query := `UPDATE benefit_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		r.logger.Error("Failed to update status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// AssignOfficer binds the officer and moves the request into review
func (r *RequestRepository) AssignOfficer(ctx context.Context, id int64, officerID string, from, to entity.Status) error {
	query := `
		UPDATE benefit_requests SET officer_id = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND officer_id IS NULL
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, officerID, to, time.Now().UTC(), id, from)
	if err != nil {
		r.logger.Error("Failed to assign officer", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to assign officer: %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// SetReadiness records the assistant's pre-review verdict
func (r *RequestRepository) SetReadiness(ctx context.Context, id int64, assistantID string, ready bool, from, to entity.Status) error {
	query := `
		UPDATE benefit_requests
		SET assistant_id = COALESCE(assistant_id, ?), ready_for_review = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, assistantID, ready, to, time.Now().UTC(), id, from)
	if err != nil {
		r.logger.Error("Failed to set readiness", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set readiness: %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// SetReleased finalizes an approved request with its payment reference
func (r *RequestRepository) SetReleased(ctx context.Context, id int64, reference string, from, to entity.Status) error {
	query := `
		UPDATE benefit_requests SET status = ?, release_reference = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, to, reference, time.Now().UTC(), id, from)
	if err != nil {
		r.logger.Error("Failed to release request", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to release request: %w", err)
	}
	return r.checkAffected(ctx, result, id)
}

// checkAffected turns a zero-row conditional update into a typed error:
// ErrNotFound when the row does not exist, ErrTransitionConflict when it
// does but the precondition no longer holds.
func (r *RequestRepository) checkAffected(ctx context.Context, result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = r.db.Executor(ctx).QueryRowContext(ctx,
		"SELECT COUNT(1) FROM benefit_requests WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check request existence: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("benefit request %d: %w", id, apperr.ErrNotFound)
	}

	r.logger.Warn("Optimistic precondition failed", zap.Int64("id", id))
	return fmt.Errorf("benefit request %d: %w", id, apperr.ErrTransitionConflict)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.BenefitRequest, error) {
	var req entity.BenefitRequest
	var assistantID, officerID sql.NullString
	var payout sql.NullInt64

	err := row.Scan(
		&req.ID,
		&req.SubjectUserID,
		&req.Kind,
		&req.Status,
		&assistantID,
		&officerID,
		&req.AmountCents,
		&payout,
		&req.TermMonths,
		&req.Category,
		&req.ReadyForReview,
		&req.ConsentAcknowledged,
		&req.ReleaseReference,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.AssistantID = assistantID.String
	req.OfficerID = officerID.String
	if payout.Valid {
		req.PayoutAmountCents = &payout.Int64
	}
	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
