package notifier

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
	"github.com/patchwatch/patchwatch/internal/settings"
	"github.com/patchwatch/patchwatch/internal/storage"
)

func setupMatcher(t *testing.T) (*Matcher, *settings.Store, *storage.SQLiteStorage) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "patchwatch-matcher-*")
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

	gate := settings.NewStore(true)
	registry := alerting.NewRegistry(store.AlertConfigs())
	matcher := NewMatcher(store.Rules(), store.Channels(), registry, gate)
	return matcher, gate, store
}

func createChannel(t *testing.T, store *storage.SQLiteStorage, name string) *models.NotificationChannel {
	t.Helper()
	ch := &models.NotificationChannel{
		ID:        uuid.New().String(),
		Name:      name,
		Kind:      models.ChannelWebhook,
		Config:    json.RawMessage(`{"url":"https://hooks.example.com/patchwatch"}`),
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Channels().Create(context.Background(), ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return ch
}

func createRule(t *testing.T, store *storage.SQLiteStorage, name, filter string, priority int, channelIDs ...string) *models.NotificationRule {
	t.Helper()
	now := time.Now().UTC()
	rule := &models.NotificationRule{
		ID:         uuid.New().String(),
		Name:       name,
		EventType:  models.AlertTypePackageUpdate,
		ChannelIDs: channelIDs,
		Priority:   priority,
		Filter:     filter,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.Rules().Create(context.Background(), rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule
}

func TestMatcher_GlobalGateBlocks(t *testing.T) {
	matcher, gate, store := setupMatcher(t)
	ch := createChannel(t, store, "ops")
	createRule(t, store, "all updates", "", 10, ch.ID)

	gate.SetEnabled(false)

	matches, err := matcher.Match(context.Background(), packageEvent())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("disabled gate must match nothing, got %d", len(matches))
	}
}

func TestMatcher_TypeNotificationGateBlocks(t *testing.T) {
	matcher, _, store := setupMatcher(t)
	ch := createChannel(t, store, "ops")
	createRule(t, store, "all updates", "", 10, ch.ID)

	registry := alerting.NewRegistry(store.AlertConfigs())
	off := false
	if _, err := registry.Upsert(context.Background(), models.AlertTypePackageUpdate,
		&alerting.ConfigUpdate{NotificationEnabled: &off}); err != nil {
		t.Fatalf("disable notifications: %v", err)
	}

	matches, err := matcher.Match(context.Background(), packageEvent())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("notification-disabled type must match nothing, got %d", len(matches))
	}
}

func TestMatcher_FilterSelectsRules(t *testing.T) {
	matcher, _, store := setupMatcher(t)
	ch := createChannel(t, store, "ops")

	createRule(t, store, "big backlogs", `metadata.package_count > 40`, 10, ch.ID)
	createRule(t, store, "tiny backlogs", `metadata.package_count < 5`, 5, ch.ID)
	createRule(t, store, "catch all", "", 1, ch.ID)

	matches, err := matcher.Match(context.Background(), packageEvent())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	// Priority descending
	if matches[0].Rule.Name != "big backlogs" || matches[1].Rule.Name != "catch all" {
		t.Errorf("unexpected match order: %q, %q", matches[0].Rule.Name, matches[1].Rule.Name)
	}
}

func TestMatcher_BrokenFilterSkipsRuleOnly(t *testing.T) {
	matcher, _, store := setupMatcher(t)
	ch := createChannel(t, store, "ops")

	createRule(t, store, "broken", `metadata.package_count +`, 10, ch.ID)
	createRule(t, store, "healthy", "", 5, ch.ID)

	matches, err := matcher.Match(context.Background(), packageEvent())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 1 || matches[0].Rule.Name != "healthy" {
		t.Fatalf("broken filter should skip only its rule, got %d matches", len(matches))
	}
}

func TestMatcher_DeletedChannelSkipped(t *testing.T) {
	matcher, _, store := setupMatcher(t)
	keep := createChannel(t, store, "keep")
	gone := createChannel(t, store, "gone")

	createRule(t, store, "two channels", "", 10, keep.ID, gone.ID)
	createRule(t, store, "only gone", "", 5, gone.ID)

	if _, err := store.Channels().Delete(context.Background(), gone.ID); err != nil {
		t.Fatalf("delete channel: %v", err)
	}

	matches, err := matcher.Match(context.Background(), packageEvent())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("rule with no surviving channels must be skipped, got %d matches", len(matches))
	}
	if len(matches[0].Channels) != 1 || matches[0].Channels[0].ID != keep.ID {
		t.Errorf("expected only the surviving channel, got %d", len(matches[0].Channels))
	}
}

func TestMatcher_DisabledRuleExcluded(t *testing.T) {
	matcher, _, store := setupMatcher(t)
	ch := createChannel(t, store, "ops")
	rule := createRule(t, store, "toggled", "", 10, ch.ID)

	if _, err := store.Rules().SetEnabled(context.Background(), rule.ID, false); err != nil {
		t.Fatalf("disable rule: %v", err)
	}

	matches, err := matcher.Match(context.Background(), packageEvent())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("disabled rule must not match, got %d", len(matches))
	}
}

func TestEvalFilter(t *testing.T) {
	event := packageEvent()

	tests := []struct {
		name    string
		filter  string
		want    bool
		wantErr bool
	}{
		{"severity equals", `severity == "warning"`, false, false},
		{"type equals", `type == "package_update"`, true, false},
		{"metadata string", `metadata.host_id == "web-01"`, true, false},
		{"metadata number", `metadata.package_count >= 47`, true, false},
		{"compound", `type == "package_update" && metadata.package_count > 100`, false, false},
		{"title contains", `title contains "openssl"`, true, false},
		{"not a bool", `metadata.package_count`, false, true},
		{"syntax error", `&& nope`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalFilter(tt.filter, event)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("evalFilter: %v", err)
			}
			if got != tt.want {
				t.Errorf("evalFilter(%q) = %t, want %t", tt.filter, got, tt.want)
			}
		})
	}
}
