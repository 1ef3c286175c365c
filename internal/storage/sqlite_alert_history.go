package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/patchwatch/patchwatch/internal/models"
)

type sqliteAlertHistoryRepo struct {
	db *sql.DB
}

func (r *sqliteAlertHistoryRepo) ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistoryEntry, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history WHERE alert_id = ?", alertID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history: %w", err)
	}

	query := `
		SELECT id, alert_id, action, actor_user_id, note, created_at
		FROM alert_history WHERE alert_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, alertID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var entries []*models.AlertHistoryEntry
	for rows.Next() {
		e := &models.AlertHistoryEntry{}
		var actor, note sql.NullString
		err := rows.Scan(&e.ID, &e.AlertID, &e.Action, &actor, &note, &e.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert history: %w", err)
		}
		e.ActorUserID = actor.String
		e.Note = note.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
