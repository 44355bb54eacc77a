package app

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"hotcron/internal/adapter/telegram"
	"hotcron/internal/adapter/telegram/handlers"
	"hotcron/internal/adapter/telegram/middleware"
	"hotcron/internal/jobs"
	"hotcron/internal/platform/httpclient"
	"hotcron/internal/telemetry"
	"hotcron/internal/telemetry/channels"
	"hotcron/pkg/retry"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// telegramBot returns nil when no token is configured. The client never
// calls getMe at construction so startup does not depend on Telegram.
func (a *App) telegramBot() (*bot.Bot, error) {
	if !a.cfg.TelegramEnabled() {
		return nil, nil
	}
	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithAllowedUpdates([]string{"message"}),
	}
	if a.cfg.Telegram.Commands {
		// updates are routed through the dispatcher installed by commandBot
		opts = append(opts, bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, upd *models.Update) {
			if d := a.commands.Load(); d != nil {
				d.Dispatch(ctx, upd)
			}
		}))
	}
	return bot.New(a.cfg.Telegram.Token, opts...)
}

// notifier builds the telemetry dispatcher with one route per configured channel.
func (a *App) notifier(tg *bot.Bot) (*telemetry.Dispatcher, error) {
	var routes []telemetry.Route
	if tg != nil && a.cfg.Telegram.ChatID != "" {
		routes = append(routes, telemetry.Route{
			Channel:    channels.NewTelegram(tg, a.cfg.Telegram.ChatID),
			AlertsOnly: a.cfg.Telegram.AlertsOnly,
		})
	}
	if a.cfg.EmailEnabled() {
		client, err := channels.NewSMTPClient(channels.SMTPConfig{
			Host:     a.cfg.SMTP.Host,
			Port:     a.cfg.SMTP.Port,
			Secure:   a.cfg.SMTP.Secure,
			Username: a.cfg.SMTP.Username,
			Password: a.cfg.SMTP.Password,
		})
		if err != nil {
			return nil, err
		}
		routes = append(routes, telemetry.Route{
			Channel:    channels.NewEmail(client, a.cfg.SMTP.Sender, a.cfg.SMTP.Receivers),
			AlertsOnly: !a.cfg.SMTP.Debug,
		})
	}
	if a.cfg.Webhook.URL != "" {
		client := httpclient.New(
			httpclient.WithLogger(a.log),
			httpclient.WithTimeout(10*time.Second),
		)
		routes = append(routes, telemetry.Route{Channel: channels.NewWebhook(client, a.cfg.Webhook.URL)})
	}

	return telemetry.NewDispatcher(telemetry.Options{
		Logger:    a.log,
		QueueSize: a.cfg.Notify.QueueSize,
		Workers:   a.cfg.Notify.Workers,
		Retry: retry.Config{
			MaxAttempts:  a.cfg.Notify.RetryAttempts,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
	}, routes...), nil
}

// commandBot starts long polling when commands are enabled and returns the
// dispatcher to close on shutdown.
func (a *App) commandBot(ctx context.Context, tg *bot.Bot, svc *jobs.Scheduler) *telegram.Dispatcher {
	if tg == nil || !a.cfg.Telegram.Commands {
		return nil
	}
	allowed := a.cfg.Telegram.AllowedIDs
	if len(allowed) == 0 {
		// a private alert chat has the same id as its user
		if id, err := strconv.ParseInt(a.cfg.Telegram.ChatID, 10, 64); err == nil && id > 0 {
			allowed = []int64{id}
		}
	}

	cmds := handlers.New(svc, a.log)
	h := middleware.Chain(cmds.Handle,
		middleware.NewRateLimiter(time.Second).Middleware,
		middleware.NewACL(allowed, a.log).Middleware,
	)
	d := telegram.NewDispatcher(tg, 4, h)
	a.commands.Store(d)

	go tg.Start(ctx)
	a.log.Info("telegram command bot started", "allowed_users", len(allowed))
	return d
}
