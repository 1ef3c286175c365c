package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/patchwatch/patchwatch/internal/models"
)

type sqliteAlertConfigRepo struct {
	db *sql.DB
}

const alertConfigColumns = `type, is_enabled, default_severity, auto_assign_enabled,
		auto_assign_user_id, auto_assign_rules_json, notification_enabled,
		retention_days, auto_resolve_after_days, cleanup_resolved_only,
		escalation_enabled, escalation_after_hours, updated_at`

func (r *sqliteAlertConfigRepo) Get(ctx context.Context, t models.AlertType) (*models.AlertConfig, error) {
	query := `SELECT ` + alertConfigColumns + ` FROM alert_configs WHERE type = ?`
	return scanAlertConfig(r.db.QueryRowContext(ctx, query, string(t)))
}

func (r *sqliteAlertConfigRepo) Upsert(ctx context.Context, cfg *models.AlertConfig) error {
	var rulesJSON sql.NullString
	if len(cfg.AutoAssignRules) > 0 {
		b, err := json.Marshal(cfg.AutoAssignRules)
		if err != nil {
			return fmt.Errorf("marshal auto-assign rules: %w", err)
		}
		rulesJSON = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO alert_configs (` + alertConfigColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			default_severity = excluded.default_severity,
			auto_assign_enabled = excluded.auto_assign_enabled,
			auto_assign_user_id = excluded.auto_assign_user_id,
			auto_assign_rules_json = excluded.auto_assign_rules_json,
			notification_enabled = excluded.notification_enabled,
			retention_days = excluded.retention_days,
			auto_resolve_after_days = excluded.auto_resolve_after_days,
			cleanup_resolved_only = excluded.cleanup_resolved_only,
			escalation_enabled = excluded.escalation_enabled,
			escalation_after_hours = excluded.escalation_after_hours,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		string(cfg.Type), boolToInt(cfg.IsEnabled), string(cfg.DefaultSeverity),
		boolToInt(cfg.AutoAssignEnabled), nullString(cfg.AutoAssignUserID), rulesJSON,
		boolToInt(cfg.NotificationEnabled), nullInt(cfg.RetentionDays),
		nullInt(cfg.AutoResolveAfterDays), boolToInt(cfg.CleanupResolvedOnly),
		boolToInt(cfg.EscalationEnabled), nullInt(cfg.EscalationAfterHours),
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert alert config: %w", err)
	}
	return nil
}

func (r *sqliteAlertConfigRepo) List(ctx context.Context) ([]*models.AlertConfig, error) {
	query := `SELECT ` + alertConfigColumns + ` FROM alert_configs ORDER BY type`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query alert configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.AlertConfig
	for rows.Next() {
		cfg, err := scanAlertConfigRow(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func scanAlertConfig(row *sql.Row) (*models.AlertConfig, error) {
	cfg, err := scanAlertConfigRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cfg, err
}

func scanAlertConfigRow(row scanner) (*models.AlertConfig, error) {
	cfg := &models.AlertConfig{}
	var isEnabled, autoAssignEnabled, notifEnabled, resolvedOnly, escEnabled int
	var userID, rulesJSON sql.NullString
	var retention, autoResolve, escAfter sql.NullInt64

	err := row.Scan(
		&cfg.Type, &isEnabled, &cfg.DefaultSeverity, &autoAssignEnabled,
		&userID, &rulesJSON, &notifEnabled,
		&retention, &autoResolve, &resolvedOnly,
		&escEnabled, &escAfter, &cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert config: %w", err)
	}

	cfg.IsEnabled = isEnabled != 0
	cfg.AutoAssignEnabled = autoAssignEnabled != 0
	cfg.NotificationEnabled = notifEnabled != 0
	cfg.CleanupResolvedOnly = resolvedOnly != 0
	cfg.EscalationEnabled = escEnabled != 0
	cfg.AutoAssignUserID = userID.String
	cfg.RetentionDays = intPtr(retention)
	cfg.AutoResolveAfterDays = intPtr(autoResolve)
	cfg.EscalationAfterHours = intPtr(escAfter)

	if rulesJSON.Valid && rulesJSON.String != "" {
		if err := json.Unmarshal([]byte(rulesJSON.String), &cfg.AutoAssignRules); err != nil {
			return nil, fmt.Errorf("unmarshal auto-assign rules: %w", err)
		}
	}
	return cfg, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
