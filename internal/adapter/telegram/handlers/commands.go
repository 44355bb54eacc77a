// Package handlers implements the bot commands.
package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"hotcron/internal/adapter/telegram"
	"hotcron/internal/jobs"
)

// Service is the part of the scheduler commands drive.
type Service interface {
	Snapshots() []jobs.Snapshot
	Reload(ctx context.Context) error
	TriggerJob(index int) error
}

// Commands routes slash commands to their handlers.
type Commands struct {
	svc Service
	log *slog.Logger
}

func New(svc Service, log *slog.Logger) *Commands {
	if log == nil {
		log = slog.Default()
	}
	return &Commands{svc: svc, log: log.With("component", "telegram")}
}

// Handle routes updates to command handlers. Non-command messages are ignored.
func (c *Commands) Handle(ctx context.Context, s telegram.Sender, upd *models.Update) {
	msg := upd.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	cmd, args := parse(msg.Text)
	c.log.Debug("command received", "command", cmd, "chat_id", msg.Chat.ID)

	var text string
	switch cmd {
	case "start":
		text = c.start()
	case "ping":
		text = "pong"
	case "jobs":
		text = c.jobs()
	case "reload":
		text = c.reload(ctx)
	case "run":
		text = c.run(args)
	default:
		text = "unknown command, try /jobs, /reload or /run N"
	}
	c.send(ctx, s, msg.Chat.ID, text)
}

// parse splits "/run@hotcron_bot 3" into "run" and ["3"].
func parse(text string) (string, []string) {
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func (c *Commands) send(ctx context.Context, s telegram.Sender, chat int64, text string) {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: text})
	if err != nil {
		c.log.Warn("reply failed", "chat_id", chat, "err", err)
	}
}
