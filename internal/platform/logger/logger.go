// Package logger builds the process slog.Logger: a tint console handler and
// an optional rotated JSON file, both behind attribute redaction.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultRedactKeys are attribute keys whose values never reach a sink.
var DefaultRedactKeys = []string{"token", "secret", "password", "api_key", "bot_token", "smtp_password"}

// Options defines parameters for logger creation.
type Options struct {
	Env          string // "dev" uses short timestamps
	ConsoleLevel string // default: info
	FileLevel    string // default: debug
	File         string // rotated JSON log, disabled when empty
	App          string
	// Console overrides os.Stdout.
	Console io.Writer
	// RedactKeys replaces DefaultRedactKeys when set.
	RedactKeys []string
}

// New returns the logger and a closer for the file sink. The closer is safe
// to call when no file is configured.
func New(o Options) (*slog.Logger, func() error) {
	keys := o.RedactKeys
	if len(keys) == 0 {
		keys = DefaultRedactKeys
	}

	console := o.Console
	if console == nil {
		console = os.Stdout
	}
	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}
	handlers := []slog.Handler{
		NewRedactingHandler(tint.NewHandler(console, &tint.Options{
			Level:      ParseLevel(o.ConsoleLevel, slog.LevelInfo),
			TimeFormat: timeFormat,
			NoColor:    console != os.Stdout,
		}), keys),
	}

	closer := func() error { return nil }
	if o.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		closer = rotated.Close
		handlers = append(handlers, NewRedactingHandler(
			slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: ParseLevel(o.FileLevel, slog.LevelDebug)}),
			keys,
		))
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(h)
	if o.App != "" {
		l = l.With(slog.String("app", o.App))
	}
	if o.Env != "" {
		l = l.With(slog.String("env", o.Env))
	}
	return l, closer
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps debug/info/warn/error to a slog level, falling back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}
