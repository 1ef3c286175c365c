package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/patchwatch/patchwatch/internal/models"
)

// NewAdapter builds the adapter for a stored channel, decoding its opaque
// config into the kind-specific shape.
func NewAdapter(ch *models.NotificationChannel) (ChannelAdapter, error) {
	switch ch.Kind {
	case models.ChannelWebhook:
		var cfg WebhookConfig
		if err := decodeConfig(ch.Config, &cfg); err != nil {
			return nil, err
		}
		return NewWebhookAdapter(cfg)
	case models.ChannelSlack:
		var cfg SlackConfig
		if err := decodeConfig(ch.Config, &cfg); err != nil {
			return nil, err
		}
		return NewSlackAdapter(cfg)
	case models.ChannelEmail:
		var cfg EmailConfig
		if err := decodeConfig(ch.Config, &cfg); err != nil {
			return nil, err
		}
		return NewEmailAdapter(cfg)
	case models.ChannelTelegram:
		var cfg TelegramConfig
		if err := decodeConfig(ch.Config, &cfg); err != nil {
			return nil, err
		}
		return NewTelegramAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown channel kind: %q", ch.Kind)
	}
}

func decodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("channel config is empty")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode channel config: %w", err)
	}
	return nil
}
