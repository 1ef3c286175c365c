package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

type fakeGate struct{ enabled bool }

func (g *fakeGate) Enabled() bool { return g.enabled }

func setupManager(t *testing.T) (*Manager, *Registry, storage.Storage) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "patchwatch-alerting-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	registry := NewRegistry(store.AlertConfigs())
	manager := NewManager(store.Alerts(), store.AlertHistory(), registry, &fakeGate{enabled: true})
	return manager, registry, store
}

func hostEvent(typ models.AlertType, hostID string) *models.Event {
	return &models.Event{
		Type:     typ,
		Title:    "47 packages need updates",
		Message:  "Host has pending updates",
		Metadata: json.RawMessage(`{"host_id":"` + hostID + `","host_group":"production"}`),
	}
}

func TestManager_Ingest_CreatesAlert(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	result, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Created || result.Dropped {
		t.Fatalf("result = %+v, want created", result)
	}
	if result.Alert.Severity != models.SeverityWarning {
		t.Errorf("severity = %v, want default warning", result.Alert.Severity)
	}
	if result.Alert.State != models.StateActive {
		t.Errorf("state = %v, want active", result.Alert.State)
	}

	entries, total, err := m.History(ctx, result.Alert.ID, 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 1 || entries[0].Action != models.ActionCreated {
		t.Errorf("history = %+v, want single created entry", entries)
	}
}

func TestManager_Ingest_SeverityOverride(t *testing.T) {
	m, _, _ := setupManager(t)

	event := hostEvent(models.AlertTypeSecurityUpdate, "web-01")
	event.Severity = models.SeverityCritical
	result, err := m.Ingest(context.Background(), event)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Alert.Severity != models.SeverityCritical {
		t.Errorf("severity = %v, want critical override", result.Alert.Severity)
	}
}

func TestManager_Ingest_GlobalGate(t *testing.T) {
	m, _, _ := setupManager(t)
	m.gate = &fakeGate{enabled: false}

	result, err := m.Ingest(context.Background(), hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Dropped || result.Alert != nil {
		t.Errorf("result = %+v, want dropped without alert", result)
	}
}

func TestManager_Ingest_DisabledTypeDrops(t *testing.T) {
	m, registry, store := setupManager(t)
	ctx := context.Background()

	disabled := false
	if _, err := registry.Upsert(ctx, models.AlertTypePackageUpdate, &ConfigUpdate{IsEnabled: &disabled}); err != nil {
		t.Fatalf("upsert config: %v", err)
	}

	result, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Dropped {
		t.Fatal("event for disabled type must be dropped")
	}

	_, total, err := store.Alerts().List(ctx, &storage.AlertFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Errorf("alerts = %d, want 0", total)
	}
}

func TestManager_Ingest_AutoAssignFixedUser(t *testing.T) {
	m, registry, _ := setupManager(t)
	ctx := context.Background()

	enabled := true
	user := "oncall-1"
	_, err := registry.Upsert(ctx, models.AlertTypeHostDown, &ConfigUpdate{
		AutoAssignEnabled: &enabled,
		AutoAssignUserID:  &user,
	})
	if err != nil {
		t.Fatalf("upsert config: %v", err)
	}

	result, err := m.Ingest(ctx, hostEvent(models.AlertTypeHostDown, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Alert.AssignedTo != "oncall-1" {
		t.Errorf("assigned_to = %q, want oncall-1", result.Alert.AssignedTo)
	}
}

func TestManager_Ingest_Dedup(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	first, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	second := hostEvent(models.AlertTypePackageUpdate, "web-01")
	second.Title = "52 packages need updates"
	second.Severity = models.SeverityError
	result, err := m.Ingest(ctx, second)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if result.Created {
		t.Fatal("duplicate event must refresh, not create")
	}
	if result.Alert.ID != first.Alert.ID {
		t.Errorf("alert id = %s, want %s", result.Alert.ID, first.Alert.ID)
	}
	if result.Alert.Title != "52 packages need updates" || result.Alert.Severity != models.SeverityError {
		t.Errorf("refresh did not apply: %+v", result.Alert)
	}

	entries, total, err := m.History(ctx, first.Alert.ID, 10, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 2 {
		t.Fatalf("history total = %d, want 2", total)
	}
	if entries[0].Action != models.ActionTriggered {
		t.Errorf("newest action = %v, want triggered", entries[0].Action)
	}

	// Different host creates a separate alert
	other, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-02"))
	if err != nil {
		t.Fatalf("other host ingest: %v", err)
	}
	if !other.Created {
		t.Error("different host must create a new alert")
	}
}

func TestManager_Ingest_DedupAfterResolve(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	first, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	_, err = m.PerformAction(ctx, first.Alert.ID, &ActionRequest{Action: models.ActionResolve}, "admin")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	result, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if !result.Created {
		t.Error("resolved alert must not absorb new events")
	}
}

func TestManager_Ingest_ConcurrentDedup(t *testing.T) {
	m, _, store := setupManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Ingest(ctx, hostEvent(models.AlertTypeHostDown, "web-01")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent ingest: %v", err)
	}

	_, total, err := store.Alerts().List(ctx, &storage.AlertFilter{State: models.StateActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 {
		t.Errorf("open alerts = %d, want exactly 1", total)
	}
}

func TestManager_Ingest_NoHostIDAlwaysCreates(t *testing.T) {
	m, _, store := setupManager(t)
	ctx := context.Background()

	event := &models.Event{Type: models.AlertTypeAgentUpdate, Title: "agent outdated"}
	for i := 0; i < 2; i++ {
		result, err := m.Ingest(ctx, event)
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		if !result.Created {
			t.Error("events without host_id must always create")
		}
	}

	_, total, _ := store.Alerts().List(ctx, &storage.AlertFilter{})
	if total != 2 {
		t.Errorf("alerts = %d, want 2", total)
	}
}

func TestManager_PerformAction_Transitions(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	result, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	id := result.Alert.ID

	steps := []struct {
		action models.AlertAction
		want   models.AlertState
	}{
		{models.ActionSilence, models.StateSilenced},
		{models.ActionReopen, models.StateActive},
		{models.ActionDone, models.StateDone},
		{models.ActionReopen, models.StateActive},
		{models.ActionResolve, models.StateResolved},
	}
	for _, step := range steps {
		alert, err := m.PerformAction(ctx, id, &ActionRequest{Action: step.action, Note: "ops"}, "admin")
		if err != nil {
			t.Fatalf("action %s: %v", step.action, err)
		}
		if alert.State != step.want {
			t.Errorf("after %s state = %v, want %v", step.action, alert.State, step.want)
		}
	}

	// History is append-only: created + 5 actions
	_, total, err := m.History(ctx, id, 20, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 6 {
		t.Errorf("history total = %d, want 6", total)
	}
}

func TestManager_PerformAction_Invalid(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	result, err := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	_, err = m.PerformAction(ctx, result.Alert.ID, &ActionRequest{Action: "escalate"}, "admin")
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("err = %v, want ErrInvalidAction for system action", err)
	}
	_, err = m.PerformAction(ctx, result.Alert.ID, &ActionRequest{Action: "nonsense"}, "admin")
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("err = %v, want ErrInvalidAction", err)
	}
	_, err = m.PerformAction(ctx, "missing", &ActionRequest{Action: models.ActionSilence}, "admin")
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestManager_AssignUnassign(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	result, err := m.Ingest(ctx, hostEvent(models.AlertTypeSecurityUpdate, "web-01"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	id := result.Alert.ID

	alert, err := m.Assign(ctx, id, "user-7", "admin")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if alert.AssignedTo != "user-7" {
		t.Errorf("assigned_to = %q, want user-7", alert.AssignedTo)
	}
	if alert.State != models.StateActive {
		t.Errorf("assign changed state to %v", alert.State)
	}

	alert, err = m.Unassign(ctx, id, "admin")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if alert.AssignedTo != "" {
		t.Errorf("assigned_to = %q, want empty", alert.AssignedTo)
	}

	if _, err := m.Assign(ctx, id, "", "admin"); err == nil {
		t.Error("assign without user_id must fail")
	}
}

func TestManager_BulkDelete_Partial(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	a, _ := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-01"))
	b, _ := m.Ingest(ctx, hostEvent(models.AlertTypePackageUpdate, "web-02"))

	result, err := m.BulkDelete(ctx, []string{a.Alert.ID, "missing-id", b.Alert.ID})
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if len(result.Deleted) != 2 {
		t.Errorf("deleted = %v, want 2 ids", result.Deleted)
	}
	if len(result.NotFound) != 1 || result.NotFound[0] != "missing-id" {
		t.Errorf("not_found = %v, want [missing-id]", result.NotFound)
	}
}

func TestManager_Ingest_Validation(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	var vErr *ValidationError

	_, err := m.Ingest(ctx, &models.Event{Title: "no type"})
	if !errors.As(err, &vErr) {
		t.Errorf("missing type: err = %v, want ValidationError", err)
	}
	_, err = m.Ingest(ctx, &models.Event{Type: models.AlertTypeHostDown})
	if !errors.As(err, &vErr) {
		t.Errorf("missing title: err = %v, want ValidationError", err)
	}
	_, err = m.Ingest(ctx, &models.Event{Type: models.AlertTypeHostDown, Title: "x", Severity: "urgent"})
	if !errors.As(err, &vErr) {
		t.Errorf("bad severity: err = %v, want ValidationError", err)
	}
}

func TestManager_Stats(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	event := hostEvent(models.AlertTypeHostDown, "web-01")
	event.Severity = models.SeverityCritical
	if _, err := m.Ingest(ctx, event); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[models.SeverityCritical] != 1 {
		t.Errorf("critical = %d, want 1", stats[models.SeverityCritical])
	}
}
