// Package config loads hotcron settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"hotcron/internal/shared"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`

	Crontab struct {
		Path         string        `validate:"required"`
		PollInterval time.Duration `validate:"gte=1s"`
		Timezone     string
	}

	// Exec is the process-wide execution context applied to every job.
	Exec struct {
		WorkDir string
		UID     *uint32
		GID     *uint32
	}

	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}

	Admin struct {
		Addr string
	}

	Telegram struct {
		Token      string
		ChatID     string `validate:"required_with=Token"`
		AlertsOnly bool
		Commands   bool
		AllowedIDs []int64
	}

	SMTP struct {
		Host      string
		Port      int `validate:"omitempty,min=1,max=65535"`
		Secure    bool
		Username  string
		Password  string
		Sender    string   `validate:"required_with=Host"`
		Receivers []string `validate:"required_with=Host,dive,email"`
		Debug     bool
	}

	Webhook struct {
		URL string `validate:"omitempty,url"`
	}

	Notify struct {
		QueueSize     int `validate:"min=1"`
		Workers       int `validate:"min=1,max=32"`
		RetryAttempts int `validate:"min=1,max=10"`
	}
}

// TelegramEnabled reports whether the Telegram channel is configured.
func (c Config) TelegramEnabled() bool { return c.Telegram.Token != "" }

// EmailEnabled reports whether the SMTP channel is configured.
func (c Config) EmailEnabled() bool { return c.SMTP.Host != "" }

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (Config, error) {
	p := &parser{}

	var c Config
	c.Env = getenv("ENV", "prod")

	c.Crontab.Path = getenv("CRONTAB_FILE_ABS_PATH", "crontab.json")
	c.Crontab.PollInterval = p.duration("CRONTAB_POLL_INTERVAL", 60*time.Second)
	c.Crontab.Timezone = os.Getenv("SCHEDULER_TIMEZONE")

	c.Exec.WorkDir = os.Getenv("PROJECT_BASE_PATH")
	c.Exec.UID = p.id("WWW_DATA_UID")
	c.Exec.GID = p.id("WWW_DATA_GID")

	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = os.Getenv("LOG_FILE")

	c.Admin.Addr = os.Getenv("ADMIN_HTTP_ADDR")

	c.Telegram.Token = os.Getenv("SCHEDULER_TELEGRAM_BOT_TOKEN")
	c.Telegram.ChatID = os.Getenv("SCHEDULER_TELEGRAM_BOT_CHAT_ID")
	c.Telegram.AlertsOnly = p.boolean("SCHEDULER_TELEGRAM_ALERTS_ONLY")
	c.Telegram.Commands = p.boolean("SCHEDULER_TELEGRAM_COMMANDS")
	c.Telegram.AllowedIDs = p.ids("SCHEDULER_TELEGRAM_ALLOWED_IDS")

	c.SMTP.Host = os.Getenv("SCHEDULER_NODEMAILER_HOST")
	c.SMTP.Port = p.integer("SCHEDULER_NODEMAILER_PORT", 587)
	c.SMTP.Secure = p.boolean("SCHEDULER_NODEMAILER_SECURE")
	c.SMTP.Username = os.Getenv("SCHEDULER_NODEMAILER_USERNAME")
	c.SMTP.Password = os.Getenv("SCHEDULER_NODEMAILER_PASSWORD")
	c.SMTP.Sender = os.Getenv("SCHEDULER_EMAIL_SENDER_ADDRESS")
	c.SMTP.Receivers = list(os.Getenv("SCHEDULER_EMAIL_RECEIVERS"))
	c.SMTP.Debug = p.boolean("SCHEDULER_EMAIL_DEBUG_MODE")

	c.Webhook.URL = os.Getenv("SCHEDULER_WEBHOOK_URL")

	c.Notify.QueueSize = p.integer("NOTIFY_QUEUE_SIZE", 256)
	c.Notify.Workers = p.integer("NOTIFY_WORKERS", 1)
	c.Notify.RetryAttempts = p.integer("NOTIFY_RETRY_ATTEMPTS", 3)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	if c.Crontab.Timezone != "" {
		if _, err := time.LoadLocation(c.Crontab.Timezone); err != nil {
			return Config{}, shared.MarkKind(fmt.Errorf("SCHEDULER_TIMEZONE: %w", err), shared.KindValidation)
		}
	}
	if c.Telegram.Commands && c.Telegram.Token == "" {
		return Config{}, shared.MarkKind(errors.New("SCHEDULER_TELEGRAM_COMMANDS requires SCHEDULER_TELEGRAM_BOT_TOKEN"), shared.KindValidation)
	}
	return c, nil
}

// Location returns the cron time zone, or time.Local when unset.
func (c Config) Location() *time.Location {
	if c.Crontab.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Crontab.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects conversion errors so one Load reports all bad variables.
type parser struct {
	errs []error
}

func (p *parser) fail(key, raw string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (p *parser) boolean(key string) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return v
}

func (p *parser) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) id(key string) *uint32 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		p.fail(key, raw, err)
		return nil
	}
	u := uint32(v)
	return &u
}

func (p *parser) ids(key string) []int64 {
	raw := os.Getenv(key)
	var out []int64
	for _, part := range list(raw) {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			p.fail(key, raw, err)
			continue
		}
		out = append(out, v)
	}
	return out
}
