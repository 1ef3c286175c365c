package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/patchwatch/patchwatch/internal/models"
	"github.com/patchwatch/patchwatch/internal/storage"
)

// Registry resolves per-type alert configuration. Types without a stored
// config behave as enabled with warning severity and notifications on.
type Registry struct {
	configs storage.AlertConfigRepository
}

// NewRegistry creates a registry backed by the config repository.
func NewRegistry(configs storage.AlertConfigRepository) *Registry {
	return &Registry{configs: configs}
}

// Get returns the stored config for the type, or defaults when none exists.
func (r *Registry) Get(ctx context.Context, t models.AlertType) (*models.AlertConfig, error) {
	cfg, err := r.configs.Get(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("get alert config: %w", err)
	}
	if cfg == nil {
		return models.DefaultAlertConfig(t), nil
	}
	return cfg, nil
}

// List returns all stored configs.
func (r *Registry) List(ctx context.Context) ([]*models.AlertConfig, error) {
	return r.configs.List(ctx)
}

// ConfigUpdate is a partial update to a type's config. Nil fields keep the
// current value.
type ConfigUpdate struct {
	IsEnabled            *bool                    `json:"is_enabled,omitempty"`
	DefaultSeverity      *models.Severity         `json:"default_severity,omitempty"`
	AutoAssignEnabled    *bool                    `json:"auto_assign_enabled,omitempty"`
	AutoAssignUserID     *string                  `json:"auto_assign_user_id,omitempty"`
	AutoAssignRules      *[]models.AutoAssignRule `json:"auto_assign_rules,omitempty"`
	NotificationEnabled  *bool                    `json:"notification_enabled,omitempty"`
	RetentionDays        *int                     `json:"retention_days,omitempty"`
	AutoResolveAfterDays *int                     `json:"auto_resolve_after_days,omitempty"`
	CleanupResolvedOnly  *bool                    `json:"cleanup_resolved_only,omitempty"`
	EscalationEnabled    *bool                    `json:"escalation_enabled,omitempty"`
	EscalationAfterHours *int                     `json:"escalation_after_hours,omitempty"`
}

// Upsert applies a partial update on top of the current (or default) config,
// validates the result, persists it, and returns the stored config.
func (r *Registry) Upsert(ctx context.Context, t models.AlertType, update *ConfigUpdate) (*models.AlertConfig, error) {
	if t == "" {
		return nil, newValidationError("type", "must not be empty")
	}

	cfg, err := r.Get(ctx, t)
	if err != nil {
		return nil, err
	}

	if update.IsEnabled != nil {
		cfg.IsEnabled = *update.IsEnabled
	}
	if update.DefaultSeverity != nil {
		cfg.DefaultSeverity = *update.DefaultSeverity
	}
	if update.AutoAssignEnabled != nil {
		cfg.AutoAssignEnabled = *update.AutoAssignEnabled
	}
	if update.AutoAssignUserID != nil {
		cfg.AutoAssignUserID = *update.AutoAssignUserID
	}
	if update.AutoAssignRules != nil {
		cfg.AutoAssignRules = *update.AutoAssignRules
	}
	if update.NotificationEnabled != nil {
		cfg.NotificationEnabled = *update.NotificationEnabled
	}
	if update.RetentionDays != nil {
		cfg.RetentionDays = zeroToNil(update.RetentionDays)
	}
	if update.AutoResolveAfterDays != nil {
		cfg.AutoResolveAfterDays = zeroToNil(update.AutoResolveAfterDays)
	}
	if update.CleanupResolvedOnly != nil {
		cfg.CleanupResolvedOnly = *update.CleanupResolvedOnly
	}
	if update.EscalationEnabled != nil {
		cfg.EscalationEnabled = *update.EscalationEnabled
	}
	if update.EscalationAfterHours != nil {
		cfg.EscalationAfterHours = zeroToNil(update.EscalationAfterHours)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := r.configs.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("upsert alert config: %w", err)
	}
	return cfg, nil
}

// zeroToNil treats an explicit zero as "clear the window".
func zeroToNil(p *int) *int {
	if *p == 0 {
		return nil
	}
	v := *p
	return &v
}

func validateConfig(cfg *models.AlertConfig) error {
	fields := map[string]string{}

	if !cfg.DefaultSeverity.Valid() {
		fields["default_severity"] = "must be one of informational, warning, error, critical"
	}
	if cfg.RetentionDays != nil && *cfg.RetentionDays < 1 {
		fields["retention_days"] = "must be at least 1"
	}
	if cfg.AutoResolveAfterDays != nil && *cfg.AutoResolveAfterDays < 1 {
		fields["auto_resolve_after_days"] = "must be at least 1"
	}
	if cfg.EscalationAfterHours != nil && *cfg.EscalationAfterHours < 1 {
		fields["escalation_after_hours"] = "must be at least 1"
	}
	for i, rule := range cfg.AutoAssignRules {
		if rule.Match != models.MatchAll && rule.Match != models.MatchAny {
			fields[fmt.Sprintf("auto_assign_rules[%d].match", i)] = "must be all or any"
		}
		if rule.UserID == "" {
			fields[fmt.Sprintf("auto_assign_rules[%d].user_id", i)] = "must not be empty"
		}
		for j, cond := range rule.Conditions {
			if !validOperator(cond.Operator) {
				fields[fmt.Sprintf("auto_assign_rules[%d].conditions[%d].operator", i, j)] = "unknown operator"
			}
			if cond.Field == "" {
				fields[fmt.Sprintf("auto_assign_rules[%d].conditions[%d].field", i, j)] = "must not be empty"
			}
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validOperator(op models.ConditionOperator) bool {
	switch op {
	case models.OpEquals, models.OpNotEquals, models.OpContains, models.OpPrefix, models.OpSuffix:
		return true
	}
	return false
}
