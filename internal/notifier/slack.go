package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patchwatch/patchwatch/internal/models"
)

// SlackConfig holds Slack webhook configuration.
type SlackConfig struct {
	WebhookURL string `json:"webhook_url"` // Slack incoming webhook URL
}

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// SlackAdapter sends notifications to Slack via an incoming webhook.
type SlackAdapter struct {
	config     SlackConfig
	httpClient *http.Client
}

// NewSlackAdapter creates a new Slack adapter.
func NewSlackAdapter(config SlackConfig) (*SlackAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}

	return &SlackAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Kind returns "slack".
func (s *SlackAdapter) Kind() models.ChannelKind {
	return models.ChannelSlack
}

// Send sends the message to Slack.
func (s *SlackAdapter) Send(ctx context.Context, msg *Message) error {
	payload := s.buildPayload(msg)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for the Slack adapter.
func (s *SlackAdapter) Close() error {
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// buildPayload builds the Slack Block Kit message payload.
func (s *SlackAdapter) buildPayload(msg *Message) slackMessage {
	emoji := severityEmoji(msg.Severity)
	timestamp := time.Now().Format("2006-01-02 15:04:05 MST")

	blocks := []slackBlock{
		// Header
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  fmt.Sprintf("%s %s", emoji, truncate(msg.Title, 140)),
				Emoji: true,
			},
		},
		// Severity and Time fields
		{
			Type: "section",
			Fields: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Severity:*\n%s %s", emoji, strings.ToUpper(string(msg.Severity))),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Time:*\n%s", timestamp),
				},
			},
		},
		// Message
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: truncate(msg.Body, 2900),
			},
		},
		// Event type context
		{
			Type: "context",
			Elements: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("Event: `%s`", msg.EventType),
				},
			},
		},
	}

	return slackMessage{Blocks: blocks}
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "\U0001F534" // red circle
	case models.SeverityError:
		return "\U0001F7E0" // orange circle
	case models.SeverityWarning:
		return "\U0001F7E1" // yellow circle
	case models.SeverityInformational:
		return "\U0001F7E2" // green circle
	default:
		return "\u26AA" // white circle
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
