package channels

import (
	"context"
	"errors"
	"net/http"

	"hotcron/internal/platform/httpclient"
	"hotcron/internal/telemetry"
	"hotcron/pkg/retry"
)

// WebhookPayload is the JSON body posted for every event.
type WebhookPayload struct {
	Event   telemetry.Event `json:"event"`
	Subject string          `json:"subject"`
	Text    string          `json:"text"`
}

// Webhook posts events as JSON to a URL.
type Webhook struct {
	client *httpclient.Client
	url    string
}

func NewWebhook(client *httpclient.Client, url string) *Webhook {
	return &Webhook{client: client, url: url}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, msg telemetry.Message) error {
	err := w.client.DoJSON(ctx, http.MethodPost, w.url, WebhookPayload{
		Event:   msg.Event,
		Subject: msg.Subject,
		Text:    msg.Text,
	}, nil)

	var se *httpclient.StatusError
	if errors.As(err, &se) && !se.Temporary() {
		return retry.Permanent(err)
	}
	return err
}
