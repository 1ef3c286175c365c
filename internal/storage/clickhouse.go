package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patchwatch/patchwatch/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for delivery history retention.
	RetentionDays int
}

// ClickHouseHistory implements NotificationHistoryRepository on ClickHouse.
// Large fleets generate delivery volumes SQLite handles poorly; the table
// carries its own TTL so retention needs no sweeper.
type ClickHouseHistory struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseHistory creates a new ClickHouse-backed history store.
func NewClickHouseHistory(config *ClickHouseConfig) *ClickHouseHistory {
	// Apply defaults
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 90
	}

	return &ClickHouseHistory{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseHistory) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *ClickHouseHistory) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the notification_history table if it doesn't exist.
func (s *ClickHouseHistory) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS notification_history (
			id UUID DEFAULT generateUUIDv4(),
			rule_id String,
			event_type LowCardinality(String),
			channel_id String,
			status LowCardinality(String),
			attempt UInt8,
			message_title String,
			message_content String,
			error_message String DEFAULT '',
			sent_at DateTime64(3, 'UTC'),
			_date Date DEFAULT toDate(sent_at)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (event_type, channel_id, sent_at, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create notification_history table: %w", err)
	}
	return nil
}

// Ping checks the connection health.
func (s *ClickHouseHistory) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create records a delivery attempt.
func (s *ClickHouseHistory) Create(ctx context.Context, entry *models.NotificationHistoryEntry) error {
	query := `
		INSERT INTO notification_history (
			id, rule_id, event_type, channel_id, status, attempt,
			message_title, message_content, error_message, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.RuleID, string(entry.EventType), entry.ChannelID,
		string(entry.Status), entry.Attempt, entry.MessageTitle,
		entry.MessageContent, entry.ErrorMessage, entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification history: %w", err)
	}
	return nil
}

// List retrieves delivery attempts matching the filter.
func (s *ClickHouseHistory) List(ctx context.Context, filter *NotificationHistoryFilter) ([]*models.NotificationHistoryEntry, int64, error) {
	where, args := buildHistoryWhere(filter)

	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT count() FROM notification_history"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notification history: %w", err)
	}

	query := `
		SELECT id, rule_id, event_type, channel_id, status, attempt,
		       message_title, message_content, error_message, sent_at
		FROM notification_history
	` + where + fmt.Sprintf(" ORDER BY sent_at DESC LIMIT %d OFFSET %d", filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query notification history: %w", err)
	}
	defer rows.Close()

	var entries []*models.NotificationHistoryEntry
	for rows.Next() {
		e := &models.NotificationHistoryEntry{}
		err := rows.Scan(
			&e.ID, &e.RuleID, &e.EventType, &e.ChannelID, &e.Status, &e.Attempt,
			&e.MessageTitle, &e.MessageContent, &e.ErrorMessage, &e.SentAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// DeleteBefore removes delivery records older than the specified time.
func (s *ClickHouseHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT count() FROM notification_history WHERE sent_at < ?", before).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	// ALTER TABLE DELETE is async in ClickHouse
	_, err = s.db.ExecContext(ctx, "ALTER TABLE notification_history DELETE WHERE sent_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return count, nil
}

func buildHistoryWhere(filter *NotificationHistoryFilter) (string, []interface{}) {
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

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
