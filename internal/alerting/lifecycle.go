package alerting

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/metrics"
	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

// lockStripes is the size of the striped lock table for dedup keys and
// per-alert action serialization.
const lockStripes = 64

// Gate reports whether the alerting pipeline is globally enabled.
type Gate interface {
	Enabled() bool
}

// Manager drives the alert lifecycle: ingestion with deduplication, recorded
// actions, and reads. Writes to one dedup key or alert are serialized via a
// striped lock so concurrent identical events produce a single open alert.
type Manager struct {
	alerts   storage.AlertRepository
	history  storage.AlertHistoryRepository
	registry *Registry
	gate     Gate

	locks [lockStripes]sync.Mutex
}

// NewManager creates a lifecycle manager.
func NewManager(alerts storage.AlertRepository, history storage.AlertHistoryRepository, registry *Registry, gate Gate) *Manager {
	return &Manager{
		alerts:   alerts,
		history:  history,
		registry: registry,
		gate:     gate,
	}
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.locks[h.Sum32()%lockStripes]
}

// IngestResult reports what an event ingestion did.
type IngestResult struct {
	Alert      *models.Alert `json:"alert,omitempty"`
	Created    bool          `json:"created"`
	Dropped    bool          `json:"dropped"`
	DropReason string        `json:"drop_reason,omitempty"`
}

// Ingest runs an event through the gates and creates or refreshes an alert.
func (m *Manager) Ingest(ctx context.Context, event *models.Event) (*IngestResult, error) {
	if event.Type == "" {
		return nil, newValidationError("type", "must not be empty")
	}
	if event.Title == "" {
		return nil, newValidationError("title", "must not be empty")
	}
	if event.Severity != "" && !event.Severity.Valid() {
		return nil, newValidationError("severity", "unknown severity level")
	}

	if !m.gate.Enabled() {
		metrics.EventsDroppedTotal.WithLabelValues("global_disabled").Inc()
		return &IngestResult{Dropped: true, DropReason: "alerting disabled"}, nil
	}

	cfg, err := m.registry.Get(ctx, event.Type)
	if err != nil {
		return nil, err
	}
	if !cfg.IsEnabled {
		metrics.EventsDroppedTotal.WithLabelValues("type_disabled").Inc()
		return &IngestResult{Dropped: true, DropReason: fmt.Sprintf("alert type %s disabled", event.Type)}, nil
	}

	severity := cfg.DefaultSeverity
	if event.Severity != "" {
		severity = event.Severity
	}

	key := event.DedupKey()
	if key != "" {
		lock := m.lockFor(key)
		lock.Lock()
		defer lock.Unlock()

		existing, err := m.alerts.FindOpenByDedupKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return m.refresh(ctx, existing, event, severity)
		}
	}

	return m.create(ctx, event, cfg, severity, key)
}

func (m *Manager) create(ctx context.Context, event *models.Event, cfg *models.AlertConfig, severity models.Severity, key string) (*IngestResult, error) {
	now := time.Now().UTC()
	alert := &models.Alert{
		ID:         uuid.New().String(),
		Type:       event.Type,
		Severity:   severity,
		Title:      event.Title,
		Message:    event.Message,
		Metadata:   event.Metadata,
		DedupKey:   key,
		AssignedTo: resolveAssignee(cfg, event.MetadataMap()),
		State:      models.StateActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry := &models.AlertHistoryEntry{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Action:    models.ActionCreated,
		CreatedAt: now,
	}
	if err := m.alerts.Create(ctx, alert, entry); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	metrics.EventsIngestedTotal.Inc()
	metrics.AlertsCreatedTotal.Inc()
	log.Printf("alert created: id=%s type=%s severity=%s", alert.ID, alert.Type, alert.Severity)
	return &IngestResult{Alert: alert, Created: true}, nil
}

func (m *Manager) refresh(ctx context.Context, alert *models.Alert, event *models.Event, severity models.Severity) (*IngestResult, error) {
	now := time.Now().UTC()
	alert.Severity = severity
	alert.Title = event.Title
	alert.Message = event.Message
	alert.Metadata = event.Metadata
	alert.UpdatedAt = now

	entry := &models.AlertHistoryEntry{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Action:    models.ActionTriggered,
		CreatedAt: now,
	}
	if err := m.alerts.RefreshOnIngest(ctx, alert, entry); err != nil {
		return nil, fmt.Errorf("refresh alert: %w", err)
	}

	metrics.EventsIngestedTotal.Inc()
	metrics.AlertsDedupedTotal.Inc()
	log.Printf("alert refreshed: id=%s type=%s", alert.ID, alert.Type)
	return &IngestResult{Alert: alert, Created: false}, nil
}

// ActionRequest is a caller-initiated lifecycle action. UserID names the
// assignment target and is only read for assign.
type ActionRequest struct {
	Action models.AlertAction `json:"action"`
	Note   string             `json:"note,omitempty"`
	UserID string             `json:"user_id,omitempty"`
}

// PerformAction applies a caller-initiated action to an alert: the history
// entry and any state change land in one transaction.
func (m *Manager) PerformAction(ctx context.Context, alertID string, req *ActionRequest, actorUserID string) (*models.Alert, error) {
	if !models.RecognizedAction(req.Action) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAction, req.Action)
	}
	if req.Action == models.ActionAssign && req.UserID == "" {
		return nil, newValidationError("user_id", "assign requires a target user")
	}

	lock := m.lockFor(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, err := m.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}

	update := &storage.ActionUpdate{
		Entry: &models.AlertHistoryEntry{
			ID:          uuid.New().String(),
			AlertID:     alertID,
			Action:      req.Action,
			ActorUserID: actorUserID,
			Note:        req.Note,
			CreatedAt:   time.Now().UTC(),
		},
		NewState: req.Action.StateAfter(),
	}
	switch req.Action {
	case models.ActionAssign:
		update.SetAssignee = true
		update.Assignee = req.UserID
	case models.ActionUnassign:
		update.SetAssignee = true
	}

	if err := m.alerts.ApplyAction(ctx, alertID, update); err != nil {
		return nil, fmt.Errorf("apply action %s: %w", req.Action, err)
	}

	metrics.AlertActionsTotal.WithLabelValues(string(req.Action)).Inc()
	log.Printf("alert action: id=%s action=%s actor=%s", alertID, req.Action, actorUserID)
	return m.alerts.GetByID(ctx, alertID)
}

// Assign sets the alert assignee and records the assign action.
func (m *Manager) Assign(ctx context.Context, alertID, userID, actorUserID string) (*models.Alert, error) {
	if userID == "" {
		return nil, newValidationError("user_id", "must not be empty")
	}
	return m.applyAssignment(ctx, alertID, models.ActionAssign, userID, actorUserID)
}

// Unassign clears the alert assignee and records the unassign action.
func (m *Manager) Unassign(ctx context.Context, alertID, actorUserID string) (*models.Alert, error) {
	return m.applyAssignment(ctx, alertID, models.ActionUnassign, "", actorUserID)
}

func (m *Manager) applyAssignment(ctx context.Context, alertID string, action models.AlertAction, userID, actorUserID string) (*models.Alert, error) {
	lock := m.lockFor(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, err := m.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}

	note := ""
	if userID != "" {
		note = "assigned to " + userID
	}
	update := &storage.ActionUpdate{
		Entry: &models.AlertHistoryEntry{
			ID:          uuid.New().String(),
			AlertID:     alertID,
			Action:      action,
			ActorUserID: actorUserID,
			Note:        note,
			CreatedAt:   time.Now().UTC(),
		},
		SetAssignee: true,
		Assignee:    userID,
	}
	if err := m.alerts.ApplyAction(ctx, alertID, update); err != nil {
		return nil, fmt.Errorf("apply %s: %w", action, err)
	}

	metrics.AlertActionsTotal.WithLabelValues(string(action)).Inc()
	return m.alerts.GetByID(ctx, alertID)
}

// Get returns the alert, or nil when it does not exist.
func (m *Manager) Get(ctx context.Context, alertID string) (*models.Alert, error) {
	return m.alerts.GetByID(ctx, alertID)
}

// List returns alerts matching the filter with the unpaginated total.
func (m *Manager) List(ctx context.Context, filter *storage.AlertFilter) ([]*models.Alert, int64, error) {
	return m.alerts.List(ctx, filter)
}

// History returns the recorded actions for an alert, newest first.
func (m *Manager) History(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertHistoryEntry, int64, error) {
	alert, err := m.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, 0, err
	}
	if alert == nil {
		return nil, 0, ErrAlertNotFound
	}
	return m.history.ListByAlert(ctx, alertID, limit, offset)
}

// Stats returns active alert counts by severity.
func (m *Manager) Stats(ctx context.Context) (map[models.Severity]int64, error) {
	return m.alerts.Stats(ctx)
}

// Delete removes an alert and its history. Returns ErrAlertNotFound when the
// alert does not exist.
func (m *Manager) Delete(ctx context.Context, alertID string) error {
	deleted, err := m.alerts.Delete(ctx, alertID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrAlertNotFound
	}
	return nil
}

// BulkDeleteResult reports the outcome of a bulk delete.
type BulkDeleteResult struct {
	Deleted  []string `json:"deleted"`
	NotFound []string `json:"not_found"`
}

// BulkDelete removes the listed alerts, reporting missing ids instead of
// failing the batch.
func (m *Manager) BulkDelete(ctx context.Context, ids []string) (*BulkDeleteResult, error) {
	result := &BulkDeleteResult{Deleted: []string{}, NotFound: []string{}}
	for _, id := range ids {
		deleted, err := m.alerts.Delete(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("delete alert %s: %w", id, err)
		}
		if deleted {
			result.Deleted = append(result.Deleted, id)
		} else {
			result.NotFound = append(result.NotFound, id)
		}
	}
	return result, nil
}
