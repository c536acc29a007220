package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/provfund/benefits-engine/internal/apperr"
	"github.com/provfund/benefits-engine/internal/application/port"
	"github.com/provfund/benefits-engine/internal/domain/eligibility"
	"github.com/provfund/benefits-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// LedgerRepository implements port.ContributionLedger against the members
// and contributions tables. Read-only: the engine never writes here.
type LedgerRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new contribution ledger reader
func NewLedgerRepository(db *sqlite.DB, logger *zap.Logger) port.ContributionLedger {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// GetMemberProfile loads employment data and contribution totals for a
// subject
func (r *LedgerRepository) GetMemberProfile(ctx context.Context, subjectUserID string) (*eligibility.MemberProfile, error) {
	exec := r.db.Executor(ctx)

	profile := eligibility.MemberProfile{SubjectUserID: subjectUserID}

	var status string
	err := exec.QueryRowContext(ctx,
		"SELECT hire_date, employment_status FROM members WHERE subject_user_id = ?",
		subjectUserID,
	).Scan(&profile.HireDate, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %s: %w", subjectUserID, apperr.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get member", zap.String("subject_user_id", subjectUserID), zap.Error(err))
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	profile.Active = status == "ACTIVE"

	rows, err := exec.QueryContext(ctx, `
		SELECT source, COALESCE(SUM(amount_cents), 0)
		FROM contributions
		WHERE subject_user_id = ?
		GROUP BY source
	`, subjectUserID)
	if err != nil {
		r.logger.Error("Failed to sum contributions", zap.String("subject_user_id", subjectUserID), zap.Error(err))
		return nil, fmt.Errorf("failed to sum contributions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var total int64
		if err := rows.Scan(&source, &total); err != nil {
			return nil, fmt.Errorf("failed to scan contribution total: %w", err)
		}
		switch source {
		case "EMPLOYEE":
			profile.EmployeeTotalCents = total
		case "EMPLOYER":
			profile.EmployerTotalCents = total
		}
	}
	return &profile, rows.Err()
}

// Verify interface compliance
var _ port.ContributionLedger = (*LedgerRepository)(nil)
