package alerting

import (
	"fmt"
	"strings"

	"github.com/patchwatch/patchwatch/internal/models"
)

// resolveAssignee picks the auto-assignment target for an event under the
// given config. Condition rules are checked in order; the first match wins.
// A fixed user id acts as the fallback when no rule matches. Returns ""
// when auto-assignment is off or nothing applies.
func resolveAssignee(cfg *models.AlertConfig, metadata map[string]any) string {
	if !cfg.AutoAssignEnabled {
		return ""
	}
	for _, rule := range cfg.AutoAssignRules {
		if ruleMatches(&rule, metadata) {
			return rule.UserID
		}
	}
	return cfg.AutoAssignUserID
}

func ruleMatches(rule *models.AutoAssignRule, metadata map[string]any) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		matched := conditionMatches(&cond, metadata)
		if rule.Match == models.MatchAny && matched {
			return true
		}
		if rule.Match != models.MatchAny && !matched {
			return false
		}
	}
	return rule.Match != models.MatchAny
}

func conditionMatches(cond *models.AssignCondition, metadata map[string]any) bool {
	raw, ok := metadata[cond.Field]
	if !ok {
		// Absent fields only satisfy not_equals.
		return cond.Operator == models.OpNotEquals
	}
	value := stringify(raw)

	switch cond.Operator {
	case models.OpEquals:
		return value == cond.Value
	case models.OpNotEquals:
		return value != cond.Value
	case models.OpContains:
		return strings.Contains(value, cond.Value)
	case models.OpPrefix:
		return strings.HasPrefix(value, cond.Value)
	case models.OpSuffix:
		return strings.HasSuffix(value, cond.Value)
	default:
		return false
	}
}

// stringify renders a metadata value for comparison. JSON numbers decode as
// float64; whole values print without the fraction.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
