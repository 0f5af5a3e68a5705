package httpd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
)

// WebhookResponder answers interactive callbacks. Ordinary replies go out
// over the message bus like any command response; interactive replies go
// back through the payload's response URL and replace the original message.
type WebhookResponder struct {
	bus    *bus.MessageBus
	client *http.Client
}

// NewWebhookResponder creates a responder. client may be nil.
func NewWebhookResponder(b *bus.MessageBus, client *http.Client) *WebhookResponder {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookResponder{bus: b, client: client}
}

// Reply posts a normal message to the channel the interaction came from.
func (r *WebhookResponder) Reply(ctx context.Context, ev *bus.InboundEvent, text string) error {
	if ev.ChannelID == "" {
		return errors.New("httpd: interaction has no channel")
	}
	r.bus.PublishOutbound(&bus.OutboundMessage{
		Token:     ev.Token,
		ChannelID: ev.ChannelID,
		UserID:    ev.UserID,
		Text:      text,
		TraceID:   ev.TraceID,
	})
	return nil
}

// ReplyInteractive updates the original interactive message in place.
func (r *WebhookResponder) ReplyInteractive(ctx context.Context, ev *bus.InboundEvent, text string) error {
	if ev.ResponseURL == "" {
		return errors.New("httpd: interaction has no response url")
	}
	return slack.PostWebhookCustomHTTPContext(ctx, ev.ResponseURL, r.client, &slack.WebhookMessage{
		Text:            text,
		ReplaceOriginal: true,
	})
}
