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

// WebhookConfig holds generic HTTP webhook configuration.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`  // defaults to POST
	Headers map[string]string `json:"headers,omitempty"` // extra request headers
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("webhook URL must be http or https")
	}
	return nil
}

// WebhookAdapter posts notifications as JSON to an arbitrary HTTP endpoint.
type WebhookAdapter struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookAdapter creates a new webhook adapter.
func NewWebhookAdapter(config WebhookConfig) (*WebhookAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}

	return &WebhookAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Kind returns "webhook".
func (w *WebhookAdapter) Kind() models.ChannelKind {
	return models.ChannelWebhook
}

// webhookPayload is the JSON body posted to the endpoint.
type webhookPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Severity  string `json:"severity"`
	EventType string `json:"event_type"`
	SentAt    string `json:"sent_at"`
}

// Send posts the message to the configured endpoint. Any 2xx response counts
// as delivered.
func (w *WebhookAdapter) Send(ctx context.Context, msg *Message) error {
	payload := webhookPayload{
		Title:     msg.Title,
		Body:      msg.Body,
		Severity:  string(msg.Severity),
		EventType: string(msg.EventType),
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.config.Method, w.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for the webhook adapter.
func (w *WebhookAdapter) Close() error {
	return nil
}
