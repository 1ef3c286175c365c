package models

import (
	"encoding/json"
	"time"
)

// ChannelKind identifies the delivery transport of a channel.
type ChannelKind string

const (
	ChannelWebhook  ChannelKind = "webhook"
	ChannelSlack    ChannelKind = "slack"
	ChannelEmail    ChannelKind = "email"
	ChannelTelegram ChannelKind = "telegram"
)

// NotificationChannel is an external delivery target. Config is opaque to
// the core; each adapter decodes its own shape.
type NotificationChannel struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      ChannelKind     `json:"kind"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
}

// NotificationRule maps an event type to one or more channels with an
// optional message template and filter predicate.
type NotificationRule struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	EventType       AlertType `json:"event_type"`
	ChannelIDs      []string  `json:"channel_ids"`
	Priority        int       `json:"priority"`
	MessageTitle    string    `json:"message_title,omitempty"`
	MessageTemplate string    `json:"message_template,omitempty"`
	Filter          string    `json:"filter,omitempty"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DeliveryStatus is the outcome of one dispatch attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// NotificationHistoryEntry records exactly one delivery attempt for one
// (rule, channel, event) combination. Created once, never mutated.
// Attempt is 1 for the original send and increments per retry.
type NotificationHistoryEntry struct {
	ID             string         `json:"id"`
	RuleID         string         `json:"rule_id"`
	EventType      AlertType      `json:"event_type"`
	ChannelID      string         `json:"channel_id"`
	Status         DeliveryStatus `json:"status"`
	Attempt        int            `json:"attempt"`
	MessageTitle   string         `json:"message_title"`
	MessageContent string         `json:"message_content"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}
