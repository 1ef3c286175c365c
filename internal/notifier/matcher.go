package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/expr-lang/expr"

	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

// Gate reports whether the alerting pipeline is globally enabled.
type Gate interface {
	Enabled() bool
}

// ConfigSource resolves per-type alert configuration.
type ConfigSource interface {
	Get(ctx context.Context, t models.AlertType) (*models.AlertConfig, error)
}

// Match binds one matched rule to its resolved channels.
type Match struct {
	Rule     *models.NotificationRule
	Channels []*models.NotificationChannel
}

// Matcher selects the notification rules an event should fire.
type Matcher struct {
	rules    storage.RuleRepository
	channels storage.ChannelRepository
	configs  ConfigSource
	gate     Gate
}

// NewMatcher creates a rule matcher.
func NewMatcher(rules storage.RuleRepository, channels storage.ChannelRepository, configs ConfigSource, gate Gate) *Matcher {
	return &Matcher{
		rules:    rules,
		channels: channels,
		configs:  configs,
		gate:     gate,
	}
}

// Match returns the rules firing for the event with their channels resolved,
// ordered by rule priority descending then creation time ascending. Rules
// with broken filters or no surviving channels are skipped with a warning.
func (m *Matcher) Match(ctx context.Context, event *models.Event) ([]*Match, error) {
	if !m.gate.Enabled() {
		return nil, nil
	}

	cfg, err := m.configs.Get(ctx, event.Type)
	if err != nil {
		return nil, err
	}
	if !cfg.NotificationEnabled {
		return nil, nil
	}

	rules, err := m.rules.ListEnabledByEventType(ctx, event.Type)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	var matches []*Match
	for _, rule := range rules {
		if rule.Filter != "" {
			ok, err := evalFilter(rule.Filter, event)
			if err != nil {
				log.Printf("rule %s (%s): filter error, skipping: %v", rule.Name, rule.ID, err)
				continue
			}
			if !ok {
				continue
			}
		}

		var channels []*models.NotificationChannel
		for _, id := range rule.ChannelIDs {
			ch, err := m.channels.GetByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get channel %s: %w", id, err)
			}
			if ch == nil {
				log.Printf("rule %s (%s): channel %s no longer exists, skipping channel", rule.Name, rule.ID, id)
				continue
			}
			channels = append(channels, ch)
		}
		if len(channels) == 0 {
			log.Printf("rule %s (%s): no channels left, skipping rule", rule.Name, rule.ID)
			continue
		}

		matches = append(matches, &Match{Rule: rule, Channels: channels})
	}
	return matches, nil
}

// ValidateFilter checks that a rule filter compiles to a boolean predicate.
// An empty filter is valid and matches every event.
func ValidateFilter(filter string) error {
	if filter == "" {
		return nil
	}
	if _, err := expr.Compile(filter, expr.AsBool()); err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}
	return nil
}

// evalFilter compiles and runs an expr-lang predicate against the event.
// Metadata is exposed under "metadata"; type/severity/title/message are
// top-level keys.
func evalFilter(filter string, event *models.Event) (bool, error) {
	env := map[string]any{
		"type":     string(event.Type),
		"severity": string(event.Severity),
		"title":    event.Title,
		"message":  event.Message,
		"metadata": event.MetadataMap(),
	}

	program, err := expr.Compile(filter,
		expr.Env(env),
		expr.AsBool(),
	)
	if err != nil {
		return false, fmt.Errorf("compile filter: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not return bool: got %T", result)
	}
	return matched, nil
}
