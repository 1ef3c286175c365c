package alerting

import (
	"testing"

	"github.com/patchwatch/patchwatch/internal/models"
)

func TestConditionMatches(t *testing.T) {
	metadata := map[string]any{
		"host_group":    "production-eu",
		"package_count": float64(47),
		"reboot":        true,
	}

	tests := []struct {
		name string
		cond models.AssignCondition
		want bool
	}{
		{"equals match", models.AssignCondition{Field: "host_group", Operator: models.OpEquals, Value: "production-eu"}, true},
		{"equals mismatch", models.AssignCondition{Field: "host_group", Operator: models.OpEquals, Value: "staging"}, false},
		{"not_equals match", models.AssignCondition{Field: "host_group", Operator: models.OpNotEquals, Value: "staging"}, true},
		{"not_equals mismatch", models.AssignCondition{Field: "host_group", Operator: models.OpNotEquals, Value: "production-eu"}, false},
		{"contains match", models.AssignCondition{Field: "host_group", Operator: models.OpContains, Value: "duction"}, true},
		{"contains mismatch", models.AssignCondition{Field: "host_group", Operator: models.OpContains, Value: "xyz"}, false},
		{"prefix match", models.AssignCondition{Field: "host_group", Operator: models.OpPrefix, Value: "production"}, true},
		{"prefix mismatch", models.AssignCondition{Field: "host_group", Operator: models.OpPrefix, Value: "eu"}, false},
		{"suffix match", models.AssignCondition{Field: "host_group", Operator: models.OpSuffix, Value: "-eu"}, true},
		{"suffix mismatch", models.AssignCondition{Field: "host_group", Operator: models.OpSuffix, Value: "production"}, false},
		{"numeric equals", models.AssignCondition{Field: "package_count", Operator: models.OpEquals, Value: "47"}, true},
		{"bool equals", models.AssignCondition{Field: "reboot", Operator: models.OpEquals, Value: "true"}, true},
		{"absent field equals", models.AssignCondition{Field: "missing", Operator: models.OpEquals, Value: "x"}, false},
		{"absent field not_equals", models.AssignCondition{Field: "missing", Operator: models.OpNotEquals, Value: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conditionMatches(&tt.cond, metadata); got != tt.want {
				t.Errorf("conditionMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveAssignee(t *testing.T) {
	metadata := map[string]any{"host_group": "production"}

	prodRule := models.AutoAssignRule{
		Match: models.MatchAll,
		Conditions: []models.AssignCondition{
			{Field: "host_group", Operator: models.OpEquals, Value: "production"},
		},
		UserID: "prod-oncall",
	}
	stagingRule := models.AutoAssignRule{
		Match: models.MatchAll,
		Conditions: []models.AssignCondition{
			{Field: "host_group", Operator: models.OpEquals, Value: "staging"},
		},
		UserID: "staging-owner",
	}

	t.Run("disabled", func(t *testing.T) {
		cfg := &models.AlertConfig{AutoAssignEnabled: false, AutoAssignUserID: "user-1"}
		if got := resolveAssignee(cfg, metadata); got != "" {
			t.Errorf("assignee = %q, want empty", got)
		}
	})

	t.Run("fixed user", func(t *testing.T) {
		cfg := &models.AlertConfig{AutoAssignEnabled: true, AutoAssignUserID: "user-1"}
		if got := resolveAssignee(cfg, metadata); got != "user-1" {
			t.Errorf("assignee = %q, want user-1", got)
		}
	})

	t.Run("first matching rule wins", func(t *testing.T) {
		cfg := &models.AlertConfig{
			AutoAssignEnabled: true,
			AutoAssignUserID:  "fallback",
			AutoAssignRules:   []models.AutoAssignRule{stagingRule, prodRule},
		}
		if got := resolveAssignee(cfg, metadata); got != "prod-oncall" {
			t.Errorf("assignee = %q, want prod-oncall", got)
		}
	})

	t.Run("fallback to fixed user when no rule matches", func(t *testing.T) {
		cfg := &models.AlertConfig{
			AutoAssignEnabled: true,
			AutoAssignUserID:  "fallback",
			AutoAssignRules:   []models.AutoAssignRule{stagingRule},
		}
		if got := resolveAssignee(cfg, metadata); got != "fallback" {
			t.Errorf("assignee = %q, want fallback", got)
		}
	})

	t.Run("any mode", func(t *testing.T) {
		cfg := &models.AlertConfig{
			AutoAssignEnabled: true,
			AutoAssignRules: []models.AutoAssignRule{{
				Match: models.MatchAny,
				Conditions: []models.AssignCondition{
					{Field: "host_group", Operator: models.OpEquals, Value: "staging"},
					{Field: "host_group", Operator: models.OpPrefix, Value: "prod"},
				},
				UserID: "either",
			}},
		}
		if got := resolveAssignee(cfg, metadata); got != "either" {
			t.Errorf("assignee = %q, want either", got)
		}
	})

	t.Run("empty conditions never match", func(t *testing.T) {
		cfg := &models.AlertConfig{
			AutoAssignEnabled: true,
			AutoAssignRules:   []models.AutoAssignRule{{Match: models.MatchAll, UserID: "nobody"}},
		}
		if got := resolveAssignee(cfg, metadata); got != "" {
			t.Errorf("assignee = %q, want empty", got)
		}
	})
}
