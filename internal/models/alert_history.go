package models

import "time"

// AlertAction is a recorded lifecycle action on an alert.
type AlertAction string

const (
	// Caller-initiated actions.
	ActionAssign   AlertAction = "assign"
	ActionUnassign AlertAction = "unassign"
	ActionSilence  AlertAction = "silence"
	ActionResolve  AlertAction = "resolve"
	ActionDone     AlertAction = "done"
	ActionReopen   AlertAction = "reopen"

	// System-initiated actions, recorded internally.
	ActionCreated      AlertAction = "created"
	ActionTriggered    AlertAction = "triggered"
	ActionAutoResolved AlertAction = "auto_resolved"
	ActionEscalate     AlertAction = "escalate"
)

// callerActions are the actions accepted through the action endpoint.
var callerActions = map[AlertAction]bool{
	ActionAssign:   true,
	ActionUnassign: true,
	ActionSilence:  true,
	ActionResolve:  true,
	ActionDone:     true,
	ActionReopen:   true,
}

// RecognizedAction reports whether a is a caller-performable action.
func RecognizedAction(a AlertAction) bool {
	return callerActions[a]
}

// StateAfter returns the state an alert enters after the action, or ""
// when the action does not change state (assign/unassign/escalate).
func (a AlertAction) StateAfter() AlertState {
	switch a {
	case ActionSilence:
		return StateSilenced
	case ActionResolve, ActionAutoResolved:
		return StateResolved
	case ActionDone:
		return StateDone
	case ActionReopen, ActionCreated, ActionTriggered:
		return StateActive
	default:
		return ""
	}
}

// AlertHistoryEntry records one action taken on an alert. Append-only;
// deleted only together with its alert. A nil ActorUserID means the action
// was system-initiated.
type AlertHistoryEntry struct {
	ID          string      `json:"id"`
	AlertID     string      `json:"alert_id"`
	Action      AlertAction `json:"action"`
	ActorUserID string      `json:"actor_user_id,omitempty"`
	Note        string      `json:"note,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
