// Package notifier matches events against notification rules and dispatches
// rendered messages to external channels.
package notifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/patchwatch/patchwatch/internal/metrics"
	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

// ChannelAdapter delivers messages over one transport.
type ChannelAdapter interface {
	// Kind returns the channel kind (e.g. "slack", "webhook").
	Kind() models.ChannelKind
	// Send delivers one rendered message.
	Send(ctx context.Context, msg *Message) error
	// Close releases any resources.
	Close() error
}

// AdapterFactory builds an adapter from a stored channel definition.
type AdapterFactory func(ch *models.NotificationChannel) (ChannelAdapter, error)

// DispatcherConfig tunes dispatch behavior.
type DispatcherConfig struct {
	// SendTimeout bounds one delivery attempt (default 10s).
	SendTimeout time.Duration
	// MaxAttempts is the total attempts per channel including the first
	// (default 3).
	MaxAttempts int
	// BackoffBase is the delay before the first retry; it doubles per
	// attempt (default 250ms).
	BackoffBase time.Duration
	// RatePerMinute caps dispatched notifications per minute, 0 disables
	// limiting (default 60).
	RatePerMinute int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.RatePerMinute == 0 {
		c.RatePerMinute = 60
	}
}

// Dispatcher fans a matched event out to its channels. Channels fail
// independently; every attempt lands in the delivery history.
type Dispatcher struct {
	history    storage.NotificationHistoryRepository
	newAdapter AdapterFactory
	limiter    *rate.Limiter
	cfg        DispatcherConfig
}

// NewDispatcher creates a dispatcher recording into the given history store.
func NewDispatcher(history storage.NotificationHistoryRepository, factory AdapterFactory, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	if factory == nil {
		factory = NewAdapter
	}

	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}

	return &Dispatcher{
		history:    history,
		newAdapter: factory,
		limiter:    limiter,
		cfg:        cfg,
	}
}

// Dispatch delivers the event to every channel of every match. Send failures
// are recorded, not returned; the error reports infrastructure problems
// (history writes, context cancellation).
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event, severity models.Severity, matches []*Match) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, match := range matches {
		msg := RenderMessage(match.Rule, event, severity)
		for _, ch := range match.Channels {
			rule, channel := match.Rule, ch
			g.Go(func() error {
				return d.sendToChannel(gctx, rule, channel, msg)
			})
		}
	}
	return g.Wait()
}

// sendToChannel runs the retry loop for one channel and records one history
// entry per attempt.
func (d *Dispatcher) sendToChannel(ctx context.Context, rule *models.NotificationRule, ch *models.NotificationChannel, msg *Message) error {
	if d.limiter != nil && !d.limiter.Allow() {
		metrics.DispatchRateLimitedTotal.Inc()
		log.Printf("dispatch rate limited: rule=%s channel=%s", rule.ID, ch.ID)
		return nil
	}

	adapter, err := d.newAdapter(ch)
	if err != nil {
		// Misconfigured channel: record a single failed attempt.
		metrics.DispatchAttemptsTotal.WithLabelValues(string(ch.Kind), "failed").Inc()
		return d.record(ctx, rule, ch, msg, 1, fmt.Errorf("build adapter: %w", err))
	}
	defer adapter.Close()

	backoff := d.cfg.BackoffBase
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		sendErr := d.sendOnce(ctx, adapter, msg)

		status := "sent"
		if sendErr != nil {
			status = "failed"
		}
		metrics.DispatchAttemptsTotal.WithLabelValues(string(ch.Kind), status).Inc()

		if err := d.record(ctx, rule, ch, msg, attempt, sendErr); err != nil {
			return err
		}
		if sendErr == nil {
			if attempt > 1 {
				log.Printf("dispatch recovered: channel=%s kind=%s attempt=%d", ch.ID, ch.Kind, attempt)
			}
			return nil
		}
		log.Printf("dispatch attempt failed: channel=%s kind=%s attempt=%d: %v", ch.ID, ch.Kind, attempt, sendErr)

		if attempt >= d.cfg.MaxAttempts {
			return nil
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			timer.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (d *Dispatcher) sendOnce(ctx context.Context, adapter ChannelAdapter, msg *Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := adapter.Send(sendCtx, msg)
	metrics.DispatchDuration.WithLabelValues(string(adapter.Kind())).Observe(time.Since(start).Seconds())
	return err
}

func (d *Dispatcher) record(ctx context.Context, rule *models.NotificationRule, ch *models.NotificationChannel, msg *Message, attempt int, sendErr error) error {
	entry := &models.NotificationHistoryEntry{
		ID:             uuid.New().String(),
		RuleID:         rule.ID,
		EventType:      msg.EventType,
		ChannelID:      ch.ID,
		Status:         models.DeliverySent,
		Attempt:        attempt,
		MessageTitle:   msg.Title,
		MessageContent: msg.Body,
		SentAt:         time.Now().UTC(),
	}
	if sendErr != nil {
		entry.Status = models.DeliveryFailed
		entry.ErrorMessage = sendErr.Error()
	}
	if err := d.history.Create(ctx, entry); err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}
