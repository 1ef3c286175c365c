package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/patchwatch/patchwatch/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, type, severity, title, message, metadata_json, dedup_key,
		assigned_to_user_id, state, escalated_at, created_at, updated_at`

// deleteChunkSize bounds the IN clause of bulk deletes.
const deleteChunkSize = 500

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert, entry *models.AlertHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		alert.ID, string(alert.Type), string(alert.Severity), alert.Title, alert.Message,
		nullString(string(alert.Metadata)), nullString(alert.DedupKey),
		nullString(alert.AssignedTo), string(alert.State), alert.EscalatedAt,
		alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	if err := insertHistoryEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlertRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

func (r *sqliteAlertRepo) FindOpenByDedupKey(ctx context.Context, key string) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE dedup_key = ? AND state = 'active'
		ORDER BY created_at DESC LIMIT 1
	`
	alert, err := scanAlertRow(r.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

func (r *sqliteAlertRepo) RefreshOnIngest(ctx context.Context, alert *models.Alert, entry *models.AlertHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE alerts SET severity = ?, title = ?, message = ?, metadata_json = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, query,
		string(alert.Severity), alert.Title, alert.Message,
		nullString(string(alert.Metadata)), alert.UpdatedAt, alert.ID,
	)
	if err != nil {
		return fmt.Errorf("refresh alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert not found: %s", alert.ID)
	}

	if err := insertHistoryEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqliteAlertRepo) ApplyAction(ctx context.Context, alertID string, update *ActionUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertHistoryEntry(ctx, tx, update.Entry); err != nil {
		return err
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{update.Entry.CreatedAt}
	if update.NewState != "" {
		sets = append(sets, "state = ?")
		args = append(args, string(update.NewState))
	}
	if update.SetAssignee {
		sets = append(sets, "assigned_to_user_id = ?")
		args = append(args, nullString(update.Assignee))
	}
	if update.NewSeverity != "" {
		sets = append(sets, "severity = ?")
		args = append(args, string(update.NewSeverity))
	}
	if update.SetEscalated {
		sets = append(sets, "escalated_at = ?")
		args = append(args, update.EscalatedAt)
	}
	args = append(args, alertID)

	result, err := tx.ExecContext(ctx,
		"UPDATE alerts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("apply action: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert not found: %s", alertID)
	}
	return tx.Commit()
}

func (r *sqliteAlertRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteAlertRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	var deleted int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		result, err := r.db.ExecContext(ctx,
			"DELETE FROM alerts WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return deleted, fmt.Errorf("delete alerts: %w", err)
		}
		n, _ := result.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

func (r *sqliteAlertRepo) List(ctx context.Context, filter *AlertFilter) ([]*models.Alert, int64, error) {
	where, args := buildAlertWhere(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM alerts" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts` + where + alertOrderBy(filter)
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, total, rows.Err()
}

func buildAlertWhere(filter *AlertFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		conds = append(conds, "(title LIKE ? OR message LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(filter.State))
	}
	switch filter.Assignment {
	case "assigned":
		conds = append(conds, "assigned_to_user_id IS NOT NULL")
	case "unassigned":
		conds = append(conds, "assigned_to_user_id IS NULL")
	}
	if filter.AssignedTo != "" {
		conds = append(conds, "assigned_to_user_id = ?")
		args = append(args, filter.AssignedTo)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func alertOrderBy(filter *AlertFilter) string {
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	switch filter.SortBy {
	case "severity":
		// Rank severities explicitly; alphabetical order is meaningless here.
		return ` ORDER BY CASE severity
			WHEN 'informational' THEN 0
			WHEN 'warning' THEN 1
			WHEN 'error' THEN 2
			WHEN 'critical' THEN 3
			END ` + dir + ", created_at DESC"
	case "type":
		return " ORDER BY type " + dir + ", created_at DESC"
	default:
		return " ORDER BY created_at " + dir
	}
}

func (r *sqliteAlertRepo) Stats(ctx context.Context) (map[models.Severity]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT severity, COUNT(*) FROM alerts WHERE state = 'active' GROUP BY severity")
	if err != nil {
		return nil, fmt.Errorf("query alert stats: %w", err)
	}
	defer rows.Close()

	stats := map[models.Severity]int64{
		models.SeverityInformational: 0,
		models.SeverityWarning:       0,
		models.SeverityError:         0,
		models.SeverityCritical:      0,
	}
	for rows.Next() {
		var sev string
		var count int64
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("scan alert stats: %w", err)
		}
		stats[models.Severity(sev)] = count
	}
	return stats, rows.Err()
}

func (r *sqliteAlertRepo) ListStaleActive(ctx context.Context, t models.AlertType, cutoff time.Time) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE type = ? AND state = 'active' AND updated_at < ?
	`
	return r.queryAlerts(ctx, query, string(t), cutoff)
}

func (r *sqliteAlertRepo) ListEscalatable(ctx context.Context, t models.AlertType, cutoff time.Time) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE type = ? AND state = 'active' AND escalated_at IS NULL AND created_at < ?
	`
	return r.queryAlerts(ctx, query, string(t), cutoff)
}

func (r *sqliteAlertRepo) ListExpired(ctx context.Context, t models.AlertType, cutoff time.Time, terminalOnly bool) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE type = ? AND created_at < ?
	`
	if terminalOnly {
		query += " AND state IN ('silenced', 'done', 'resolved')"
	}
	return r.queryAlerts(ctx, query, string(t), cutoff)
}

func (r *sqliteAlertRepo) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertRow(row scanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var metadata, dedupKey, assignedTo sql.NullString
	var escalatedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.Type, &alert.Severity, &alert.Title, &alert.Message,
		&metadata, &dedupKey, &assignedTo, &alert.State, &escalatedAt,
		&alert.CreatedAt, &alert.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	if metadata.Valid {
		alert.Metadata = []byte(metadata.String)
	}
	alert.DedupKey = dedupKey.String
	alert.AssignedTo = assignedTo.String
	if escalatedAt.Valid {
		t := escalatedAt.Time
		alert.EscalatedAt = &t
	}
	return alert, nil
}

func insertHistoryEntry(ctx context.Context, tx *sql.Tx, entry *models.AlertHistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO alert_history (id, alert_id, action, actor_user_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.AlertID, string(entry.Action),
		nullString(entry.ActorUserID), nullString(entry.Note), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}
