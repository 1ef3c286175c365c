package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/patchwatch/patchwatch/internal/models"
)

type sqliteNotificationHistoryRepo struct {
	db *sql.DB
}

const notificationHistoryColumns = `id, rule_id, event_type, channel_id, status, attempt,
		message_title, message_content, error_message, sent_at`

func (r *sqliteNotificationHistoryRepo) Create(ctx context.Context, entry *models.NotificationHistoryEntry) error {
	query := `
		INSERT INTO notification_history (` + notificationHistoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.RuleID, string(entry.EventType), entry.ChannelID,
		string(entry.Status), entry.Attempt, entry.MessageTitle, entry.MessageContent,
		nullString(entry.ErrorMessage), entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification history: %w", err)
	}
	return nil
}

func (r *sqliteNotificationHistoryRepo) List(ctx context.Context, filter *NotificationHistoryFilter) ([]*models.NotificationHistoryEntry, int64, error) {
	var conds []string
	var args []interface{}

	if filter.From != nil {
		conds = append(conds, "sent_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conds = append(conds, "sent_at < ?")
		args = append(args, *filter.To)
	}
	if filter.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.ChannelID != "" {
		conds = append(conds, "channel_id = ?")
		args = append(args, filter.ChannelID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notification_history"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notification history: %w", err)
	}

	query := `SELECT ` + notificationHistoryColumns + ` FROM notification_history` + where +
		" ORDER BY sent_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query notification history: %w", err)
	}
	defer rows.Close()

	var entries []*models.NotificationHistoryEntry
	for rows.Next() {
		e := &models.NotificationHistoryEntry{}
		var errMsg sql.NullString
		err := rows.Scan(
			&e.ID, &e.RuleID, &e.EventType, &e.ChannelID, &e.Status, &e.Attempt,
			&e.MessageTitle, &e.MessageContent, &errMsg, &e.SentAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification history: %w", err)
		}
		e.ErrorMessage = errMsg.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *sqliteNotificationHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notification_history WHERE sent_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete notification history: %w", err)
	}
	return result.RowsAffected()
}
