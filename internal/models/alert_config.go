package models

import "time"

// ConditionOperator compares one metadata field against a value.
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "equals"
	OpNotEquals ConditionOperator = "not_equals"
	OpContains  ConditionOperator = "contains"
	OpPrefix    ConditionOperator = "prefix"
	OpSuffix    ConditionOperator = "suffix"
)

// AssignCondition is one leaf of an auto-assignment rule: a field from the
// event metadata, an operator, and the value to compare against.
type AssignCondition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    string            `json:"value" yaml:"value"`
}

// MatchMode decides how condition leaves combine.
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// AutoAssignRule selects an assignee when all (or any) conditions hold
// against the event metadata.
type AutoAssignRule struct {
	Match      MatchMode         `json:"match" yaml:"match"`
	Conditions []AssignCondition `json:"conditions" yaml:"conditions"`
	UserID     string            `json:"user_id" yaml:"user_id"`
}

// AlertConfig holds the per-type alerting configuration. Exactly one config
// exists per AlertType; absent rows behave as DefaultAlertConfig.
type AlertConfig struct {
	Type                 AlertType        `json:"type"`
	IsEnabled            bool             `json:"is_enabled"`
	DefaultSeverity      Severity         `json:"default_severity"`
	AutoAssignEnabled    bool             `json:"auto_assign_enabled"`
	AutoAssignUserID     string           `json:"auto_assign_user_id,omitempty"`
	AutoAssignRules      []AutoAssignRule `json:"auto_assign_rules,omitempty"`
	NotificationEnabled  bool             `json:"notification_enabled"`
	RetentionDays        *int             `json:"retention_days,omitempty"`
	AutoResolveAfterDays *int             `json:"auto_resolve_after_days,omitempty"`
	CleanupResolvedOnly  bool             `json:"cleanup_resolved_only"`
	EscalationEnabled    bool             `json:"escalation_enabled"`
	EscalationAfterHours *int             `json:"escalation_after_hours,omitempty"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// DefaultAlertConfig returns the config used for types with no stored row:
// enabled, warning severity, notifications on, no retention or escalation.
func DefaultAlertConfig(t AlertType) *AlertConfig {
	return &AlertConfig{
		Type:                t,
		IsEnabled:           true,
		DefaultSeverity:     SeverityWarning,
		NotificationEnabled: true,
	}
}
