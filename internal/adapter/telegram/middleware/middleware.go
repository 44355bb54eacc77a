// Package middleware содержит телеграм‑middleware: ACL по списку
// разрешённых пользователей и ограничение частоты запросов.
package middleware

import (
	"context"

	"github.com/go-telegram/bot"

	"hotcron/internal/adapter/telegram"
)

// Middleware wraps telegram.HandlerFunc.
type Middleware func(telegram.HandlerFunc) telegram.HandlerFunc

// Chain applies middlewares in order.
func Chain(h telegram.HandlerFunc, mws ...Middleware) telegram.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func reply(ctx context.Context, s telegram.Sender, chat int64, text string) {
	if chat == 0 || s == nil {
		return
	}
	_, _ = s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: text})
}
