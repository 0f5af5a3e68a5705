// Package bus provides the async message bus between team sessions and dispatch.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// Scope classifies where an inbound event happened relative to the bot.
type Scope string

const (
	ScopeDirectMessage  Scope = "direct_message"
	ScopeDirectMention  Scope = "direct_mention"
	ScopeAmbientMention Scope = "ambient_mention"
	ScopeAmbient        Scope = "ambient"
	ScopeInteractive    Scope = "interactive"
	ScopeUnrecognized   Scope = "unrecognized"
)

// InboundEvent is a single classified message or interactive callback received
// over a team's live connection. Immutable once published.
type InboundEvent struct {
	Token       string    `json:"token"`
	TeamID      string    `json:"team_id"`
	Scope       Scope     `json:"scope"`
	UserID      string    `json:"user_id"`
	ChannelID   string    `json:"channel_id"`
	Text        string    `json:"text"`
	TraceID     string    `json:"trace_id"`
	Timestamp   time.Time `json:"timestamp"`
	CallbackID  string    `json:"callback_id,omitempty"`
	ActionValue string    `json:"action_value,omitempty"`
	ResponseURL string    `json:"response_url,omitempty"`
}

// Interactive reports whether the event is an interactive-button callback.
func (e *InboundEvent) Interactive() bool {
	return e.Scope == ScopeInteractive
}

// OutboundMessage is a reply from a handler back to a team's connection.
type OutboundMessage struct {
	Token       string             `json:"token"`
	ChannelID   string             `json:"channel_id"`
	UserID      string             `json:"user_id,omitempty"`
	Text        string             `json:"text"`
	Username    string             `json:"username,omitempty"`
	IconURL     string             `json:"icon_url,omitempty"`
	TraceID     string             `json:"trace_id,omitempty"`
	Attachments []slack.Attachment `json:"attachments,omitempty"`
}

// MessageBus decouples team connections from command dispatch. Inbound events
// for a given team are delivered in the order they were published; there is no
// ordering guarantee across teams.
type MessageBus struct {
	inbound  chan *InboundEvent
	outbound chan *OutboundMessage
	subs     map[string][]func(*OutboundMessage)
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundEvent, 100),
		outbound: make(chan *OutboundMessage, 100),
		subs:     make(map[string][]func(*OutboundMessage)),
	}
}

// PublishInbound sends an event from a team session toward dispatch.
func (b *MessageBus) PublishInbound(ev *InboundEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.inbound <- ev
}

// ConsumeInbound blocks until an event is available or the context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundEvent, error) {
	select {
	case ev := <-b.inbound:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound sends a reply from a handler to the owning team's session.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// Subscribe registers a callback for outbound messages addressed to a team token.
func (b *MessageBus) Subscribe(token string, callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[token] = append(b.subs[token], callback)
}

// Unsubscribe drops all callbacks for a team token, used on session teardown.
func (b *MessageBus) Unsubscribe(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, token)
}

// DispatchOutbound runs the outbound message dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := b.subs[msg.Token]
			b.mu.RUnlock()

			for _, cb := range callbacks {
				cb(msg)
			}
		}
	}
}

// InboundSize returns the number of pending inbound events.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
