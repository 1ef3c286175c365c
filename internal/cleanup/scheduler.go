// Package cleanup runs the periodic maintenance passes: auto-resolve,
// escalation, and retention deletion of alerts and delivery history.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/alerting"
	"github.com/patchwatch/patchwatch/internal/metrics"
	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

// DefaultInterval is how often the scheduler runs when not configured.
const DefaultInterval = 24 * time.Hour

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("cleanup run already in progress")

// DefaultHistoryRetentionDays is how long delivery history is kept when the
// scheduler owns its retention.
const DefaultHistoryRetentionDays = 90

// Result reports what one cleanup run did (or would do, for Preview).
type Result struct {
	AutoResolved   int64 `json:"auto_resolved"`
	Escalated      int64 `json:"escalated"`
	Deleted        int64 `json:"deleted"`
	HistoryDeleted int64 `json:"history_deleted"`
	Errors         int   `json:"errors"`
}

// Scheduler runs the maintenance passes on an interval. Runs never overlap;
// a tick that fires while a run is in progress is skipped.
type Scheduler struct {
	alerts      storage.AlertRepository
	history     storage.NotificationHistoryRepository
	registry    *alerting.Registry
	interval    time.Duration
	historyDays int

	running sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a cleanup scheduler. A non-positive interval falls
// back to DefaultInterval. Delivery history older than historyDays is pruned
// each run; a non-positive historyDays or nil history disables that pass
// (the ClickHouse backend carries its own table TTL).
func NewScheduler(alerts storage.AlertRepository, history storage.NotificationHistoryRepository, registry *alerting.Registry, interval time.Duration, historyDays int) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		alerts:      alerts,
		history:     history,
		registry:    registry,
		interval:    interval,
		historyDays: historyDays,
		done:        make(chan struct{}),
	}
}

// Start begins the interval loop in a background goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				res, err := s.RunOnce(context.Background())
				if err != nil {
					log.Printf("cleanup run failed: %v", err)
					continue
				}
				log.Printf("cleanup run: auto_resolved=%d escalated=%d deleted=%d history_deleted=%d errors=%d",
					res.AutoResolved, res.Escalated, res.Deleted, res.HistoryDeleted, res.Errors)
			}
		}
	}()
}

// Stop stops the interval loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
	s.running.Lock()
	s.running.Unlock()
}

// RunOnce executes one full cleanup pass: auto-resolve stale active alerts,
// escalate overdue ones, then delete alerts past retention. Per-alert
// failures are counted and logged, not fatal. Returns an error only when a
// run is already in progress or configs cannot be listed.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	configs, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alert configs: %w", err)
	}

	now := time.Now().UTC()
	result := &Result{}
	for _, cfg := range configs {
		s.autoResolve(ctx, cfg, now, result)
		s.escalate(ctx, cfg, now, result)
		s.expire(ctx, cfg, now, result)
	}
	s.expireHistory(ctx, now, result)
	return result, nil
}

// Preview reports what a run would do without mutating anything.
func (s *Scheduler) Preview(ctx context.Context) (*Result, error) {
	configs, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alert configs: %w", err)
	}

	now := time.Now().UTC()
	result := &Result{}
	for _, cfg := range configs {
		if cfg.AutoResolveAfterDays != nil {
			cutoff := now.AddDate(0, 0, -*cfg.AutoResolveAfterDays)
			stale, err := s.alerts.ListStaleActive(ctx, cfg.Type, cutoff)
			if err != nil {
				return nil, err
			}
			result.AutoResolved += int64(len(stale))
		}
		if cfg.EscalationEnabled && cfg.EscalationAfterHours != nil {
			cutoff := now.Add(-time.Duration(*cfg.EscalationAfterHours) * time.Hour)
			overdue, err := s.alerts.ListEscalatable(ctx, cfg.Type, cutoff)
			if err != nil {
				return nil, err
			}
			result.Escalated += int64(len(overdue))
		}
		if cfg.RetentionDays != nil {
			cutoff := now.AddDate(0, 0, -*cfg.RetentionDays)
			expired, err := s.alerts.ListExpired(ctx, cfg.Type, cutoff, cfg.CleanupResolvedOnly)
			if err != nil {
				return nil, err
			}
			result.Deleted += int64(len(expired))
		}
	}
	if s.history != nil && s.historyDays > 0 {
		cutoff := now.AddDate(0, 0, -s.historyDays)
		_, total, err := s.history.List(ctx, &storage.NotificationHistoryFilter{To: &cutoff, Limit: 1})
		if err != nil {
			return nil, err
		}
		result.HistoryDeleted = total
	}
	return result, nil
}

// autoResolve moves active alerts untouched for longer than the type's
// auto-resolve window to resolved, with a system history entry each.
func (s *Scheduler) autoResolve(ctx context.Context, cfg *models.AlertConfig, now time.Time, result *Result) {
	if cfg.AutoResolveAfterDays == nil {
		return
	}

	cutoff := now.AddDate(0, 0, -*cfg.AutoResolveAfterDays)
	stale, err := s.alerts.ListStaleActive(ctx, cfg.Type, cutoff)
	if err != nil {
		log.Printf("cleanup: list stale %s alerts: %v", cfg.Type, err)
		metrics.CleanupErrors.WithLabelValues("auto_resolve").Inc()
		result.Errors++
		return
	}

	for _, alert := range stale {
		update := &storage.ActionUpdate{
			Entry: &models.AlertHistoryEntry{
				ID:        uuid.New().String(),
				AlertID:   alert.ID,
				Action:    models.ActionAutoResolved,
				Note:      fmt.Sprintf("no activity for %d days", *cfg.AutoResolveAfterDays),
				CreatedAt: now,
			},
			NewState: models.StateResolved,
		}
		if err := s.alerts.ApplyAction(ctx, alert.ID, update); err != nil {
			log.Printf("cleanup: auto-resolve alert %s: %v", alert.ID, err)
			metrics.CleanupErrors.WithLabelValues("auto_resolve").Inc()
			result.Errors++
			continue
		}
		metrics.CleanupAutoResolvedTotal.Inc()
		result.AutoResolved++
	}
}

// escalate bumps the severity of active alerts older than the type's
// escalation window. EscalatedAt marks the alert so a second run skips it.
func (s *Scheduler) escalate(ctx context.Context, cfg *models.AlertConfig, now time.Time, result *Result) {
	if !cfg.EscalationEnabled || cfg.EscalationAfterHours == nil {
		return
	}

	cutoff := now.Add(-time.Duration(*cfg.EscalationAfterHours) * time.Hour)
	overdue, err := s.alerts.ListEscalatable(ctx, cfg.Type, cutoff)
	if err != nil {
		log.Printf("cleanup: list escalatable %s alerts: %v", cfg.Type, err)
		metrics.CleanupErrors.WithLabelValues("escalate").Inc()
		result.Errors++
		return
	}

	for _, alert := range overdue {
		bumped := alert.Severity.Bump()
		update := &storage.ActionUpdate{
			Entry: &models.AlertHistoryEntry{
				ID:        uuid.New().String(),
				AlertID:   alert.ID,
				Action:    models.ActionEscalate,
				Note:      fmt.Sprintf("severity raised to %s after %d hours", bumped, *cfg.EscalationAfterHours),
				CreatedAt: now,
			},
			NewSeverity:  bumped,
			SetEscalated: true,
			EscalatedAt:  now,
		}
		if err := s.alerts.ApplyAction(ctx, alert.ID, update); err != nil {
			log.Printf("cleanup: escalate alert %s: %v", alert.ID, err)
			metrics.CleanupErrors.WithLabelValues("escalate").Inc()
			result.Errors++
			continue
		}
		metrics.CleanupEscalatedTotal.Inc()
		result.Escalated++
	}
}

// expire deletes alerts past the type's retention window. Deletion cascades
// to alert history.
func (s *Scheduler) expire(ctx context.Context, cfg *models.AlertConfig, now time.Time, result *Result) {
	if cfg.RetentionDays == nil {
		return
	}

	cutoff := now.AddDate(0, 0, -*cfg.RetentionDays)
	expired, err := s.alerts.ListExpired(ctx, cfg.Type, cutoff, cfg.CleanupResolvedOnly)
	if err != nil {
		log.Printf("cleanup: list expired %s alerts: %v", cfg.Type, err)
		metrics.CleanupErrors.WithLabelValues("delete").Inc()
		result.Errors++
		return
	}
	if len(expired) == 0 {
		return
	}

	ids := make([]string, len(expired))
	for i, alert := range expired {
		ids[i] = alert.ID
	}
	deleted, err := s.alerts.DeleteByIDs(ctx, ids)
	result.Deleted += deleted
	metrics.CleanupDeletedTotal.Add(float64(deleted))
	if err != nil {
		log.Printf("cleanup: delete expired %s alerts: %v", cfg.Type, err)
		metrics.CleanupErrors.WithLabelValues("delete").Inc()
		result.Errors++
	}
}

// expireHistory prunes delivery history rows older than the configured
// retention window. Delivery history has no per-type config; the window is
// deployment-wide.
func (s *Scheduler) expireHistory(ctx context.Context, now time.Time, result *Result) {
	if s.history == nil || s.historyDays <= 0 {
		return
	}

	cutoff := now.AddDate(0, 0, -s.historyDays)
	deleted, err := s.history.DeleteBefore(ctx, cutoff)
	result.HistoryDeleted += deleted
	metrics.CleanupHistoryDeletedTotal.Add(float64(deleted))
	if err != nil {
		log.Printf("cleanup: delete expired delivery history: %v", err)
		metrics.CleanupErrors.WithLabelValues("history_delete").Inc()
		result.Errors++
	}
}
