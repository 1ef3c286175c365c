package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Per-type alert configuration
			CREATE TABLE IF NOT EXISTS alert_configs (
				type TEXT PRIMARY KEY,
				is_enabled INTEGER NOT NULL DEFAULT 1,
				default_severity TEXT NOT NULL DEFAULT 'warning',
				auto_assign_enabled INTEGER NOT NULL DEFAULT 0,
				auto_assign_user_id TEXT,
				auto_assign_rules_json TEXT,
				notification_enabled INTEGER NOT NULL DEFAULT 1,
				retention_days INTEGER,
				auto_resolve_after_days INTEGER,
				cleanup_resolved_only INTEGER NOT NULL DEFAULT 0,
				escalation_enabled INTEGER NOT NULL DEFAULT 0,
				escalation_after_hours INTEGER,
				updated_at DATETIME NOT NULL
			);

			-- Alerts table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				metadata_json TEXT,
				dedup_key TEXT,
				assigned_to_user_id TEXT,
				state TEXT NOT NULL DEFAULT 'active',
				escalated_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Alert action history (append-only)
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				action TEXT NOT NULL,
				actor_user_id TEXT,
				note TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);

			-- Notification channels
			CREATE TABLE IF NOT EXISTS notification_channels (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				kind TEXT NOT NULL,
				config_json TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);

			-- Notification rules
			CREATE TABLE IF NOT EXISTS notification_rules (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				event_type TEXT NOT NULL,
				channel_ids_json TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				message_title TEXT,
				message_template TEXT,
				filter TEXT,
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Notification delivery history (append-only)
			CREATE TABLE IF NOT EXISTS notification_history (
				id TEXT PRIMARY KEY,
				rule_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				status TEXT NOT NULL,
				attempt INTEGER NOT NULL DEFAULT 1,
				message_title TEXT NOT NULL,
				message_content TEXT NOT NULL,
				error_message TEXT,
				sent_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
			CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);
			CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(dedup_key, state);
			CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
			CREATE INDEX IF NOT EXISTS idx_alert_history_alert ON alert_history(alert_id);
			CREATE INDEX IF NOT EXISTS idx_rules_event_type ON notification_rules(event_type, enabled);
			CREATE INDEX IF NOT EXISTS idx_notif_history_sent ON notification_history(sent_at);
			CREATE INDEX IF NOT EXISTS idx_notif_history_event ON notification_history(event_type);
			CREATE INDEX IF NOT EXISTS idx_notif_history_channel ON notification_history(channel_id);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
