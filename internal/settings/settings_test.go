package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_Switch(t *testing.T) {
	s := NewStore(true)
	if !s.Enabled() {
		t.Fatal("store should start enabled")
	}
	s.SetEnabled(false)
	if s.Enabled() {
		t.Fatal("store should be disabled after SetEnabled(false)")
	}
}

func TestWatcher_ReloadsSwitch(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "patchwatch-settings-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("alerting:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store := NewStore(true)
	w, err := NewWatcher(store, path)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()
	w.Start()

	if err := os.WriteFile(path, []byte("alerting:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for store.Enabled() {
		select {
		case <-deadline:
			t.Fatal("switch did not reload within deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcher_ReloadSurvivesRename(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "patchwatch-settings-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("alerting:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store := NewStore(true)
	w, err := NewWatcher(store, path)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()
	w.Start()

	// Atomic replace: write sibling then rename over the config
	staging := filepath.Join(tmpDir, "config.yaml.tmp")
	if err := os.WriteFile(staging, []byte("alerting:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatalf("write staging: %v", err)
	}
	if err := os.Rename(staging, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for store.Enabled() {
		select {
		case <-deadline:
			t.Fatal("switch did not reload after rename")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcher_IgnoresBadConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "patchwatch-settings-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("alerting:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store := NewStore(true)
	w, err := NewWatcher(store, path)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()
	w.Start()

	if err := os.WriteFile(path, []byte(":::not yaml"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if !store.Enabled() {
		t.Error("malformed config must not change the switch")
	}
}
