package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/provfund/benefits-engine/internal/application/port"
	"github.com/provfund/benefits-engine/internal/domain/entity"
	"github.com/provfund/benefits-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository. Insert and select
// only; the audit trail is never edited or deleted.
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts a new history entry
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	query := `
		INSERT INTO history_entries (request_id, action, performed_by, remarks, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	entry.CreatedAt = time.Now().UTC()

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entry.RequestID,
		entry.Action,
		entry.PerformedBy,
		entry.Remarks,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append history entry", zap.Int64("request_id", entry.RequestID), zap.Error(err))
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByRequestID retrieves all history entries for a request in insertion
// order
func (r *HistoryRepository) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error) {
	query := `
		SELECT id, request_id, action, performed_by, remarks, created_at
		FROM history_entries
		WHERE request_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*entity.HistoryEntry
	for rows.Next() {
		var entry entity.HistoryEntry
		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.Remarks,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
