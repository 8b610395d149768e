package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/retry"
	"gopkg.in/telebot.v3"
)

// TelegramSender pushes alerts to one operator chat.
type TelegramSender struct {
	bot      *telebot.Bot
	chat     *telebot.Chat
	channels map[Channel]bool
}

// NewTelegramSender returns nil when no bot is configured. The bot runs
// offline: it only sends, so no poller or getMe round trip is needed.
func NewTelegramSender(cfg *config.Config, channels ...Channel) (*TelegramSender, error) {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		return nil, nil
	}
	return newTelegramSender(telebot.Settings{Token: cfg.TelegramToken, Offline: true}, cfg.TelegramChatID, channels)
}

func newTelegramSender(settings telebot.Settings, chatID int64, channels []Channel) (*TelegramSender, error) {
	b, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSender{bot: b, chat: &telebot.Chat{ID: chatID}, channels: routes(channels)}, nil
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, channel Channel, text string) error {
	if !s.channels[channel] {
		return ErrNoRoute
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.bot.Send(s.chat, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		var flood telebot.FloodError
		if errors.As(err, &flood) {
			return retry.Transient(err)
		}
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
