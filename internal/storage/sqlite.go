package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	alertConfigs        *sqliteAlertConfigRepo
	alerts              *sqliteAlertRepo
	alertHistory        *sqliteAlertHistoryRepo
	channels            *sqliteChannelRepo
	rules               *sqliteRuleRepo
	notificationHistory *sqliteNotificationHistoryRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?_time_format=sqlite", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	// Enable foreign keys and WAL mode
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	// Initialize repositories
	s.alertConfigs = &sqliteAlertConfigRepo{db: db}
	s.alerts = &sqliteAlertRepo{db: db}
	s.alertHistory = &sqliteAlertHistoryRepo{db: db}
	s.channels = &sqliteChannelRepo{db: db}
	s.rules = &sqliteRuleRepo{db: db}
	s.notificationHistory = &sqliteNotificationHistoryRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// AlertConfigs returns the alert config repository.
func (s *SQLiteStorage) AlertConfigs() AlertConfigRepository {
	return s.alertConfigs
}

// Alerts returns the alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository {
	return s.alerts
}

// AlertHistory returns the alert history repository.
func (s *SQLiteStorage) AlertHistory() AlertHistoryRepository {
	return s.alertHistory
}

// Channels returns the notification channel repository.
func (s *SQLiteStorage) Channels() ChannelRepository {
	return s.channels
}

// Rules returns the notification rule repository.
func (s *SQLiteStorage) Rules() RuleRepository {
	return s.rules
}

// NotificationHistory returns the notification history repository.
func (s *SQLiteStorage) NotificationHistory() NotificationHistoryRepository {
	return s.notificationHistory
}

// Helper functions

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
