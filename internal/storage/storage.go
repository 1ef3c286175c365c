// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/patchwatch/patchwatch/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	AlertConfigs() AlertConfigRepository
	Alerts() AlertRepository
	AlertHistory() AlertHistoryRepository
	Channels() ChannelRepository
	Rules() RuleRepository
	NotificationHistory() NotificationHistoryRepository
}

// AlertConfigRepository defines operations for per-type alert configuration.
// Get returns (nil, nil) when no row exists for the type.
type AlertConfigRepository interface {
	Get(ctx context.Context, t models.AlertType) (*models.AlertConfig, error)
	Upsert(ctx context.Context, cfg *models.AlertConfig) error
	List(ctx context.Context) ([]*models.AlertConfig, error)
}

// AlertFilter narrows and orders alert listings.
type AlertFilter struct {
	Search     string // substring match on title/message
	Severity   models.Severity
	Type       models.AlertType
	State      models.AlertState
	Assignment string // "", "assigned", "unassigned"
	AssignedTo string // filter to a specific assignee
	SortBy     string // "severity", "type", "created_at" (default)
	SortDesc   bool
	Limit      int
	Offset     int
}

// ActionUpdate describes one recorded action applied transactionally:
// the history entry is inserted and, when the action implies them, the
// state/assignee/severity/escalation columns change in the same tx.
type ActionUpdate struct {
	Entry        *models.AlertHistoryEntry
	NewState     models.AlertState // "" = state unchanged
	SetAssignee  bool
	Assignee     string
	NewSeverity  models.Severity // "" = severity unchanged
	SetEscalated bool
	EscalatedAt  time.Time
}

// AlertRepository defines operations for alert persistence. GetByID and
// FindOpenByDedupKey return (nil, nil) when no matching row exists.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert, entry *models.AlertHistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	FindOpenByDedupKey(ctx context.Context, key string) (*models.Alert, error)
	RefreshOnIngest(ctx context.Context, alert *models.Alert, entry *models.AlertHistoryEntry) error
	ApplyAction(ctx context.Context, alertID string, update *ActionUpdate) error
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	List(ctx context.Context, filter *AlertFilter) ([]*models.Alert, int64, error)
	Stats(ctx context.Context) (map[models.Severity]int64, error)

	// Scheduler queries.
	ListStaleActive(ctx context.Context, t models.AlertType, cutoff time.Time) ([]*models.Alert, error)
	ListEscalatable(ctx context.Context, t models.AlertType, cutoff time.Time) ([]*models.Alert, error)
	ListExpired(ctx context.Context, t models.AlertType, cutoff time.Time, terminalOnly bool) ([]*models.Alert, error)
}

// AlertHistoryRepository defines read access to the append-only action log.
type AlertHistoryRepository interface {
	ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistoryEntry, int64, error)
}

// ChannelRepository defines operations for notification channels. Channels
// are managed by an external surface; the core mostly reads them.
type ChannelRepository interface {
	Create(ctx context.Context, ch *models.NotificationChannel) error
	GetByID(ctx context.Context, id string) (*models.NotificationChannel, error)
	List(ctx context.Context) ([]*models.NotificationChannel, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// RuleRepository defines operations for notification rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.NotificationRule) error
	GetByID(ctx context.Context, id string) (*models.NotificationRule, error)
	Update(ctx context.Context, rule *models.NotificationRule) error
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*models.NotificationRule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (bool, error)
	// ListEnabledByEventType returns enabled rules for the event type,
	// ordered by priority descending then creation time ascending.
	ListEnabledByEventType(ctx context.Context, t models.AlertType) ([]*models.NotificationRule, error)
}

// NotificationHistoryFilter narrows delivery history listings.
type NotificationHistoryFilter struct {
	From      *time.Time
	To        *time.Time
	EventType models.AlertType
	ChannelID string
	Status    models.DeliveryStatus
	Limit     int
	Offset    int
}

// NotificationHistoryRepository records and queries delivery attempts.
// Implemented by SQLite and, optionally, ClickHouse for high-volume fleets.
type NotificationHistoryRepository interface {
	Create(ctx context.Context, entry *models.NotificationHistoryEntry) error
	List(ctx context.Context, filter *NotificationHistoryFilter) ([]*models.NotificationHistoryEntry, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
