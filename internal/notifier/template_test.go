package notifier

import (
	"encoding/json"
	"testing"

	"github.com/patchwatch/patchwatch/internal/models"
)

func testRule(title, template string) *models.NotificationRule {
	return &models.NotificationRule{
		ID:              "rule-1",
		Name:            "test rule",
		EventType:       models.AlertTypePackageUpdate,
		ChannelIDs:      []string{"ch-1"},
		MessageTitle:    title,
		MessageTemplate: template,
		Enabled:         true,
	}
}

func packageEvent() *models.Event {
	return &models.Event{
		Type:     models.AlertTypePackageUpdate,
		Title:    "Package openssl needs attention",
		Message:  "openssl 3.0.2 has a pending security update",
		Metadata: json.RawMessage(`{"host_id":"web-01","package":"openssl","package_count":47}`),
	}
}

func TestRenderMessage_Defaults(t *testing.T) {
	msg := RenderMessage(testRule("", ""), packageEvent(), models.SeverityCritical)

	if msg.Title != "[CRITICAL] Package openssl needs attention" {
		t.Errorf("unexpected default title: %q", msg.Title)
	}
	if msg.Body != "openssl 3.0.2 has a pending security update" {
		t.Errorf("default body should be the event message, got %q", msg.Body)
	}
	if msg.Severity != models.SeverityCritical {
		t.Errorf("severity not carried: %q", msg.Severity)
	}
	if msg.EventType != models.AlertTypePackageUpdate {
		t.Errorf("event type not carried: %q", msg.EventType)
	}
}

func TestRenderMessage_BodyFallsBackToTitle(t *testing.T) {
	event := packageEvent()
	event.Message = ""

	msg := RenderMessage(testRule("", ""), event, models.SeverityWarning)
	if msg.Body != event.Title {
		t.Errorf("body should fall back to event title, got %q", msg.Body)
	}
}

func TestRenderMessage_Substitution(t *testing.T) {
	rule := testRule(
		"{{severity}} on {{host_id}}",
		"{{package}} needs updates on {{host_id}} ({{package_count}} packages)",
	)

	msg := RenderMessage(rule, packageEvent(), models.SeverityError)

	if msg.Title != "error on web-01" {
		t.Errorf("unexpected title: %q", msg.Title)
	}
	if msg.Body != "openssl needs updates on web-01 (47 packages)" {
		t.Errorf("unexpected body: %q", msg.Body)
	}
}

func TestRenderMessage_UnknownKeyRendersEmpty(t *testing.T) {
	msg := RenderMessage(testRule("", "host={{host_id}} rack={{rack}}!"), packageEvent(), models.SeverityWarning)
	if msg.Body != "host=web-01 rack=!" {
		t.Errorf("unknown key should render empty, got %q", msg.Body)
	}
}

func TestRenderMessage_MalformedBracesPassThrough(t *testing.T) {
	msg := RenderMessage(testRule("", "open {{host_id but never closed"), packageEvent(), models.SeverityWarning)
	if msg.Body != "open {{host_id but never closed" {
		t.Errorf("malformed braces should pass through, got %q", msg.Body)
	}
}

func TestRenderMessage_MetadataShadowsBuiltins(t *testing.T) {
	event := packageEvent()
	event.Metadata = json.RawMessage(`{"severity":"from-metadata"}`)

	msg := RenderMessage(testRule("", "{{severity}}"), event, models.SeverityCritical)
	if msg.Body != "from-metadata" {
		t.Errorf("metadata key should shadow builtin, got %q", msg.Body)
	}
}
