package channels

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"hotcron/internal/telemetry"
	"hotcron/pkg/retry"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Secure   bool // implicit TLS, usually port 465
	Username string
	Password string
}

// Mailer is the subset of *mail.Client used for notifications.
type Mailer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// NewSMTPClient builds a go-mail client. STARTTLS is used when offered.
func NewSMTPClient(c SMTPConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(c.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if c.Secure {
		opts = append(opts, mail.WithSSL())
	}
	if c.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.Username),
			mail.WithPassword(c.Password),
		)
	}
	client, err := mail.NewClient(c.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

// Email sends plain text messages to a fixed receiver list.
type Email struct {
	mailer Mailer
	from   string
	to     []string
}

func NewEmail(m Mailer, from string, to []string) *Email {
	return &Email{mailer: m, from: from, to: to}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, msg telemetry.Message) error {
	m := mail.NewMsg()
	if err := m.From(e.from); err != nil {
		return retry.Permanent(fmt.Errorf("sender %q: %w", e.from, err))
	}
	if err := m.To(e.to...); err != nil {
		return retry.Permanent(fmt.Errorf("receivers: %w", err))
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	return e.mailer.DialAndSendWithContext(ctx, m)
}
