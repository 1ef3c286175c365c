package cleanup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/alerting"
	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

func setupScheduler(t *testing.T) (*Scheduler, *alerting.Registry, *storage.SQLiteStorage) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "patchwatch-cleanup-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	registry := alerting.NewRegistry(store.AlertConfigs())
	s := NewScheduler(store.Alerts(), store.NotificationHistory(), registry, time.Hour, 30)
	return s, registry, store
}

// insertDelivery writes a delivery history entry with a backdated timestamp.
func insertDelivery(t *testing.T, store *storage.SQLiteStorage, age time.Duration) *models.NotificationHistoryEntry {
	t.Helper()

	entry := &models.NotificationHistoryEntry{
		ID:             uuid.New().String(),
		RuleID:         uuid.New().String(),
		EventType:      models.AlertTypePackageUpdate,
		ChannelID:      uuid.New().String(),
		Status:         models.DeliverySent,
		Attempt:        1,
		MessageTitle:   "[WARNING] 47 packages need updates",
		MessageContent: "updates pending",
		SentAt:         time.Now().UTC().Add(-age),
	}
	if err := store.NotificationHistory().Create(context.Background(), entry); err != nil {
		t.Fatalf("create delivery entry: %v", err)
	}
	return entry
}

// insertAlert writes an alert with backdated timestamps directly through the
// repository, bypassing the lifecycle manager.
func insertAlert(t *testing.T, store *storage.SQLiteStorage, typ models.AlertType, state models.AlertState, age time.Duration) *models.Alert {
	t.Helper()

	created := time.Now().UTC().Add(-age)
	alert := &models.Alert{
		ID:        uuid.New().String(),
		Type:      typ,
		Severity:  models.SeverityWarning,
		Title:     "47 packages need updates",
		Message:   "updates pending",
		Metadata:  json.RawMessage(`{"host_id":"web-01"}`),
		DedupKey:  string(typ) + ":web-01-" + uuid.New().String(),
		State:     models.StateActive,
		CreatedAt: created,
		UpdatedAt: created,
	}
	entry := &models.AlertHistoryEntry{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Action:    models.ActionCreated,
		CreatedAt: created,
	}
	if err := store.Alerts().Create(context.Background(), alert, entry); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	if state != models.StateActive {
		update := &storage.ActionUpdate{
			Entry: &models.AlertHistoryEntry{
				ID:        uuid.New().String(),
				AlertID:   alert.ID,
				Action:    models.ActionResolve,
				CreatedAt: created,
			},
			NewState: state,
		}
		if err := store.Alerts().ApplyAction(context.Background(), alert.ID, update); err != nil {
			t.Fatalf("set alert state: %v", err)
		}
	}
	return alert
}

func configure(t *testing.T, registry *alerting.Registry, typ models.AlertType, update *alerting.ConfigUpdate) {
	t.Helper()
	if _, err := registry.Upsert(context.Background(), typ, update); err != nil {
		t.Fatalf("configure %s: %v", typ, err)
	}
}

func intp(v int) *int { return &v }

func TestScheduler_AutoResolve(t *testing.T) {
	s, registry, store := setupScheduler(t)
	ctx := context.Background()

	configure(t, registry, models.AlertTypePackageUpdate,
		&alerting.ConfigUpdate{AutoResolveAfterDays: intp(7)})

	stale := insertAlert(t, store, models.AlertTypePackageUpdate, models.StateActive, 10*24*time.Hour)
	fresh := insertAlert(t, store, models.AlertTypePackageUpdate, models.StateActive, 2*24*time.Hour)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.AutoResolved != 1 {
		t.Fatalf("expected 1 auto-resolved, got %d", res.AutoResolved)
	}

	got, err := store.Alerts().GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got.State != models.StateResolved {
		t.Errorf("stale alert state = %s, want resolved", got.State)
	}

	entries, _, err := store.AlertHistory().ListByAlert(ctx, stale.ID, 10, 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if entries[0].Action != models.ActionAutoResolved {
		t.Errorf("newest history action = %s, want auto_resolved", entries[0].Action)
	}
	if entries[0].ActorUserID != "" {
		t.Errorf("auto-resolve must be system-initiated, actor=%q", entries[0].ActorUserID)
	}

	got, _ = store.Alerts().GetByID(ctx, fresh.ID)
	if got.State != models.StateActive {
		t.Errorf("fresh alert must stay active, got %s", got.State)
	}

	// Second run finds nothing
	res, err = s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.AutoResolved != 0 {
		t.Errorf("second run auto-resolved %d, want 0", res.AutoResolved)
	}
}

func TestScheduler_EscalateOnce(t *testing.T) {
	s, registry, store := setupScheduler(t)
	ctx := context.Background()

	on := true
	configure(t, registry, models.AlertTypeSecurityUpdate, &alerting.ConfigUpdate{
		EscalationEnabled:    &on,
		EscalationAfterHours: intp(4),
	})

	overdue := insertAlert(t, store, models.AlertTypeSecurityUpdate, models.StateActive, 6*time.Hour)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Escalated != 1 {
		t.Fatalf("expected 1 escalated, got %d", res.Escalated)
	}

	got, err := store.Alerts().GetByID(ctx, overdue.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got.Severity != models.SeverityError {
		t.Errorf("severity = %s, want error (bumped from warning)", got.Severity)
	}
	if got.EscalatedAt == nil {
		t.Error("escalated_at must be stamped")
	}
	if got.State != models.StateActive {
		t.Errorf("escalation must not change state, got %s", got.State)
	}

	// The stamp makes the pass one-shot
	res, err = s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Escalated != 0 {
		t.Errorf("second run escalated %d, want 0", res.Escalated)
	}
	got, _ = store.Alerts().GetByID(ctx, overdue.ID)
	if got.Severity != models.SeverityError {
		t.Errorf("second run changed severity to %s", got.Severity)
	}
}

func TestScheduler_RetentionResolvedOnly(t *testing.T) {
	s, registry, store := setupScheduler(t)
	ctx := context.Background()

	resolvedOnly := true
	configure(t, registry, models.AlertTypeHostDown, &alerting.ConfigUpdate{
		RetentionDays:       intp(30),
		CleanupResolvedOnly: &resolvedOnly,
	})

	oldResolved := insertAlert(t, store, models.AlertTypeHostDown, models.StateResolved, 45*24*time.Hour)
	oldActive := insertAlert(t, store, models.AlertTypeHostDown, models.StateActive, 45*24*time.Hour)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", res.Deleted)
	}

	if got, _ := store.Alerts().GetByID(ctx, oldResolved.ID); got != nil {
		t.Error("old resolved alert should be deleted")
	}
	if got, _ := store.Alerts().GetByID(ctx, oldActive.ID); got == nil {
		t.Error("old active alert must survive resolved-only cleanup")
	}
}

func TestScheduler_RetentionAllStates(t *testing.T) {
	s, registry, store := setupScheduler(t)
	ctx := context.Background()

	configure(t, registry, models.AlertTypeHostDown, &alerting.ConfigUpdate{
		RetentionDays: intp(30),
	})

	oldActive := insertAlert(t, store, models.AlertTypeHostDown, models.StateActive, 45*24*time.Hour)
	recent := insertAlert(t, store, models.AlertTypeHostDown, models.StateResolved, 5*24*time.Hour)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", res.Deleted)
	}
	if got, _ := store.Alerts().GetByID(ctx, oldActive.ID); got != nil {
		t.Error("old alert should be deleted regardless of state")
	}
	if got, _ := store.Alerts().GetByID(ctx, recent.ID); got == nil {
		t.Error("alert inside the retention window must survive")
	}
}

func TestScheduler_PreviewHasNoSideEffects(t *testing.T) {
	s, registry, store := setupScheduler(t)
	ctx := context.Background()

	on := true
	configure(t, registry, models.AlertTypePackageUpdate, &alerting.ConfigUpdate{
		AutoResolveAfterDays: intp(7),
		RetentionDays:        intp(30),
		EscalationEnabled:    &on,
		EscalationAfterHours: intp(4),
	})

	stale := insertAlert(t, store, models.AlertTypePackageUpdate, models.StateActive, 45*24*time.Hour)
	insertDelivery(t, store, 45*24*time.Hour)

	res, err := s.Preview(ctx)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if res.AutoResolved != 1 || res.Escalated != 1 || res.Deleted != 1 || res.HistoryDeleted != 1 {
		t.Errorf("preview counts: auto_resolved=%d escalated=%d deleted=%d history_deleted=%d, all want 1",
			res.AutoResolved, res.Escalated, res.Deleted, res.HistoryDeleted)
	}

	_, total, err := store.NotificationHistory().List(ctx, &storage.NotificationHistoryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if total != 1 {
		t.Errorf("preview must not delete history, total = %d", total)
	}

	got, err := store.Alerts().GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got == nil {
		t.Fatal("preview must not delete")
	}
	if got.State != models.StateActive || got.Severity != models.SeverityWarning || got.EscalatedAt != nil {
		t.Error("preview must not mutate the alert")
	}
}

func TestScheduler_HistoryRetention(t *testing.T) {
	s, _, store := setupScheduler(t)
	ctx := context.Background()

	old := insertDelivery(t, store, 45*24*time.Hour)
	recent := insertDelivery(t, store, 5*24*time.Hour)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.HistoryDeleted != 1 {
		t.Fatalf("expected 1 history row deleted, got %d", res.HistoryDeleted)
	}

	entries, total, err := store.NotificationHistory().List(ctx, &storage.NotificationHistoryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if total != 1 {
		t.Fatalf("history total = %d, want 1", total)
	}
	if entries[0].ID != recent.ID {
		t.Errorf("surviving entry = %s, want %s (old entry %s must be gone)", entries[0].ID, recent.ID, old.ID)
	}

	// Second run finds nothing
	res, err = s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.HistoryDeleted != 0 {
		t.Errorf("second run deleted %d history rows, want 0", res.HistoryDeleted)
	}
}

func TestScheduler_HistoryRetentionDisabled(t *testing.T) {
	s, _, store := setupScheduler(t)
	s.historyDays = 0
	ctx := context.Background()

	insertDelivery(t, store, 400*24*time.Hour)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.HistoryDeleted != 0 {
		t.Errorf("disabled history retention deleted %d rows", res.HistoryDeleted)
	}

	_, total, err := store.NotificationHistory().List(ctx, &storage.NotificationHistoryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if total != 1 {
		t.Errorf("history total = %d, want 1", total)
	}
}

func TestScheduler_RunsDoNotOverlap(t *testing.T) {
	s, _, _ := setupScheduler(t)

	s.running.Lock()
	defer s.running.Unlock()

	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("concurrent run must be refused")
	}
}

func TestScheduler_NoRetentionConfigDeletesNothing(t *testing.T) {
	s, registry, store := setupScheduler(t)
	ctx := context.Background()

	configure(t, registry, models.AlertTypeAgentUpdate, &alerting.ConfigUpdate{})
	insertAlert(t, store, models.AlertTypeAgentUpdate, models.StateResolved, 400*24*time.Hour)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Deleted != 0 || res.AutoResolved != 0 || res.Escalated != 0 {
		t.Errorf("unconfigured type must be untouched: %+v", res)
	}
}
