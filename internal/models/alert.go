// Package models defines domain models for PatchWatch.
package models

import (
	"encoding/json"
	"time"
)

// AlertType categorizes the condition an alert represents. It is an open
// set; these are the types the fleet collectors currently produce.
type AlertType string

const (
	AlertTypePackageUpdate  AlertType = "package_update"
	AlertTypeSecurityUpdate AlertType = "security_update"
	AlertTypeHostDown       AlertType = "host_down"
	AlertTypeAgentUpdate    AlertType = "agent_update"
)

// Severity represents alert severity level.
type Severity string

const (
	SeverityInformational Severity = "informational"
	SeverityWarning       Severity = "warning"
	SeverityError         Severity = "error"
	SeverityCritical      Severity = "critical"
)

// severityRank orders severities for sorting and escalation bumps.
var severityRank = map[Severity]int{
	SeverityInformational: 0,
	SeverityWarning:       1,
	SeverityError:         2,
	SeverityCritical:      3,
}

// Valid reports whether s is one of the four recognized levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the severity ordering value (informational lowest).
func (s Severity) Rank() int {
	return severityRank[s]
}

// Bump returns the next severity level up, capped at critical.
func (s Severity) Bump() Severity {
	switch s {
	case SeverityInformational:
		return SeverityWarning
	case SeverityWarning:
		return SeverityError
	default:
		return SeverityCritical
	}
}

// ParseSeverity converts a string to Severity, defaulting to warning.
func ParseSeverity(s string) Severity {
	switch s {
	case "informational":
		return SeverityInformational
	case "warning":
		return SeverityWarning
	case "error":
		return SeverityError
	case "critical":
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// AlertState is the current lifecycle state of an alert. It is stored
// explicitly and updated in the same transaction as the history entry that
// caused the transition, never recomputed at read time.
type AlertState string

const (
	StateActive   AlertState = "active"
	StateSilenced AlertState = "silenced"
	StateDone     AlertState = "done"
	StateResolved AlertState = "resolved"
)

// Terminal reports whether the state ends notification eligibility.
// Escalation and cleanup read this; it does not forbid reopening.
func (s AlertState) Terminal() bool {
	return s == StateSilenced || s == StateDone || s == StateResolved
}

// Alert is a persisted record of one detected condition needing attention.
// Mutations go through recorded actions so history stays authoritative.
type Alert struct {
	ID          string          `json:"id"`
	Type        AlertType       `json:"type"`
	Severity    Severity        `json:"severity"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	DedupKey    string          `json:"-"`
	AssignedTo  string          `json:"assigned_to_user_id,omitempty"`
	State       AlertState      `json:"current_state"`
	EscalatedAt *time.Time      `json:"escalated_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MetadataMap decodes the metadata payload into a map. A nil or empty
// payload yields an empty map.
func (a *Alert) MetadataMap() map[string]any {
	if len(a.Metadata) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(a.Metadata, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
