// Package settings holds runtime-tunable pipeline settings, hot-reloaded
// from the config file.
package settings

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Store holds the global alerting switch. Ingestion and rule matching read
// it on every call; the watcher flips it when the config file changes.
type Store struct {
	enabled atomic.Bool
}

// NewStore creates a store with the initial switch position.
func NewStore(enabled bool) *Store {
	s := &Store{}
	s.enabled.Store(enabled)
	return s
}

// Enabled reports whether the alerting pipeline is globally on.
func (s *Store) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled flips the global switch.
func (s *Store) SetEnabled(v bool) {
	s.enabled.Store(v)
}

// alertingSection is the slice of the config file the watcher cares about.
type alertingSection struct {
	Alerting struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"alerting"`
}

// Watcher reloads the global switch when the config file changes. Editors
// and config management tools replace files by rename, so it watches the
// directory and matches events by name.
type Watcher struct {
	store   *Store
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(store *Store, path string) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	return &Watcher{
		store:   store,
		path:    absPath,
		watcher: fw,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Printf("reload config: %v", err)
		return
	}

	var section alertingSection
	if err := yaml.Unmarshal(data, &section); err != nil {
		log.Printf("reload config: parse: %v", err)
		return
	}
	if section.Alerting.Enabled == nil {
		return
	}

	if w.store.Enabled() != *section.Alerting.Enabled {
		w.store.SetEnabled(*section.Alerting.Enabled)
		log.Printf("alerting switch reloaded: enabled=%t", *section.Alerting.Enabled)
	}
}
