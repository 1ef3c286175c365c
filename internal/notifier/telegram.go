package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/patchwatch/patchwatch/internal/models"
)

// TelegramConfig holds Telegram Bot API configuration.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"` // numeric chat id or @channelname
}

// Validate validates the Telegram configuration.
func (c *TelegramConfig) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("bot token is required")
	}
	if strings.TrimSpace(c.ChatID) == "" {
		return fmt.Errorf("chat_id is required")
	}
	return nil
}

// TelegramAdapter sends notifications through the Telegram Bot API.
type TelegramAdapter struct {
	client *tgbot.Bot
	chatID any
}

// NewTelegramAdapter creates a new Telegram adapter.
func NewTelegramAdapter(config TelegramConfig) (*TelegramAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telegram config: %w", err)
	}

	// Skip the GetMe call so a bad token fails on send, not on channel load.
	client, err := tgbot.New(config.BotToken, tgbot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	return &TelegramAdapter{
		client: client,
		chatID: normalizeChatID(config.ChatID),
	}, nil
}

// Kind returns "telegram".
func (t *TelegramAdapter) Kind() models.ChannelKind {
	return models.ChannelTelegram
}

// Send posts the message to the configured chat.
func (t *TelegramAdapter) Send(ctx context.Context, msg *Message) error {
	text := fmt.Sprintf("<b>%s</b>\n\n%s", htmlEscape(msg.Title), htmlEscape(msg.Body))

	sent, err := t.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return fmt.Errorf("telegram send returned empty message id")
	}
	return nil
}

// Close is a no-op for the Telegram adapter.
func (t *TelegramAdapter) Close() error {
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric
// IDs (like @channelname) as strings.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
