package notifier

import (
	"fmt"
	"strings"

	"github.com/patchwatch/patchwatch/internal/models"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	Title     string
	Body      string
	Severity  models.Severity
	EventType models.AlertType
}

// RenderMessage builds the outbound message for a rule and event. Rules with
// a blank title or template fall back to defaults built from the event.
func RenderMessage(rule *models.NotificationRule, event *models.Event, severity models.Severity) *Message {
	vars := templateVars(event, severity)

	title := rule.MessageTitle
	if title == "" {
		title = fmt.Sprintf("[%s] %s", strings.ToUpper(string(severity)), event.Title)
	} else {
		title = renderTemplate(title, vars)
	}

	body := rule.MessageTemplate
	if body == "" {
		body = event.Message
		if body == "" {
			body = event.Title
		}
	} else {
		body = renderTemplate(body, vars)
	}

	return &Message{
		Title:     title,
		Body:      body,
		Severity:  severity,
		EventType: event.Type,
	}
}

// templateVars exposes event metadata plus builtin keys for substitution.
// Metadata keys shadow builtins when both exist.
func templateVars(event *models.Event, severity models.Severity) map[string]string {
	vars := map[string]string{
		"title":    event.Title,
		"message":  event.Message,
		"type":     string(event.Type),
		"severity": string(severity),
	}
	for k, v := range event.MetadataMap() {
		vars[k] = stringifyValue(v)
	}
	return vars
}

// renderTemplate substitutes {{key}} placeholders. Unknown keys render as
// empty strings; malformed braces pass through untouched.
func renderTemplate(tmpl string, vars map[string]string) string {
	var sb strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			sb.WriteString(rest)
			return sb.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			sb.WriteString(rest)
			return sb.String()
		}
		sb.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : start+end])
		sb.WriteString(vars[key])
		rest = rest[start+end+2:]
	}
}

func stringifyValue(v any) string {
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
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
