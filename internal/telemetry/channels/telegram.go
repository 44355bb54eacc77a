// Package channels implements telemetry delivery over Telegram, SMTP and
// HTTP webhooks.
package channels

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"hotcron/internal/telemetry"
	"hotcron/pkg/retry"
)

// telegramMaxText is the Bot API limit for message text.
const telegramMaxText = 4096

// TelegramAPI is the subset of *bot.Bot used for notifications.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram posts messages to one chat.
type Telegram struct {
	api     TelegramAPI
	chatID  string
	limiter *rate.Limiter
}

// NewTelegram rate limits to one message per second with a small burst,
// which stays under the per-chat Bot API limits.
func NewTelegram(api TelegramAPI, chatID string) *Telegram {
	return &Telegram{
		api:     api,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, msg telemetry.Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   truncate(msg.Text, telegramMaxText),
	})
	if errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorForbidden) || errors.Is(err, bot.ErrorUnauthorized) {
		return retry.Permanent(err)
	}
	return err
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
