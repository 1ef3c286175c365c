package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/patchwatch/patchwatch/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

const ruleColumns = `id, name, event_type, channel_ids_json, priority,
		message_title, message_template, filter, enabled, created_at, updated_at`

func (r *sqliteRuleRepo) Create(ctx context.Context, rule *models.NotificationRule) error {
	channelsJSON, err := json.Marshal(rule.ChannelIDs)
	if err != nil {
		return fmt.Errorf("marshal channel ids: %w", err)
	}

	query := `
		INSERT INTO notification_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, string(rule.EventType), string(channelsJSON), rule.Priority,
		nullString(rule.MessageTitle), nullString(rule.MessageTemplate),
		nullString(rule.Filter), boolToInt(rule.Enabled),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, id string) (*models.NotificationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM notification_rules WHERE id = ?`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rule, err
}

func (r *sqliteRuleRepo) Update(ctx context.Context, rule *models.NotificationRule) error {
	channelsJSON, err := json.Marshal(rule.ChannelIDs)
	if err != nil {
		return fmt.Errorf("marshal channel ids: %w", err)
	}

	query := `
		UPDATE notification_rules SET name = ?, event_type = ?, channel_ids_json = ?,
			priority = ?, message_title = ?, message_template = ?, filter = ?,
			enabled = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.Name, string(rule.EventType), string(channelsJSON), rule.Priority,
		nullString(rule.MessageTitle), nullString(rule.MessageTemplate),
		nullString(rule.Filter), boolToInt(rule.Enabled), rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}
	return nil
}

func (r *sqliteRuleRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notification_rules WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteRuleRepo) List(ctx context.Context) ([]*models.NotificationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM notification_rules ORDER BY priority DESC, created_at`
	return r.queryRules(ctx, query)
}

func (r *sqliteRuleRepo) SetEnabled(ctx context.Context, id string, enabled bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE notification_rules SET enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled), time.Now(), id,
	)
	if err != nil {
		return false, fmt.Errorf("set rule enabled: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteRuleRepo) ListEnabledByEventType(ctx context.Context, t models.AlertType) ([]*models.NotificationRule, error) {
	query := `
		SELECT ` + ruleColumns + ` FROM notification_rules
		WHERE event_type = ? AND enabled = 1
		ORDER BY priority DESC, created_at
	`
	return r.queryRules(ctx, query, string(t))
}

func (r *sqliteRuleRepo) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.NotificationRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.NotificationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row scanner) (*models.NotificationRule, error) {
	rule := &models.NotificationRule{}
	var channelsJSON string
	var title, template, filter sql.NullString
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.EventType, &channelsJSON, &rule.Priority,
		&title, &template, &filter, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	rule.MessageTitle = title.String
	rule.MessageTemplate = template.String
	rule.Filter = filter.String
	rule.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(channelsJSON), &rule.ChannelIDs); err != nil {
		return nil, fmt.Errorf("unmarshal channel ids: %w", err)
	}
	return rule, nil
}
