// Package convo runs short multi-turn exchanges with a single user without
// blocking event processing. Suspension is explicit: a conversation registers
// interest in the next inbound event from its user on its session and is
// resumed when that event arrives.
package convo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
)

// ErrActive reports that the user already has a conversation in progress on
// that session.
var ErrActive = errors.New("convo: conversation already active")

// DefaultIdleTimeout expires conversations whose user stopped replying.
const DefaultIdleTimeout = 10 * time.Minute

type key struct {
	token  string
	userID string
}

// TurnFunc handles the user's next reply in a conversation.
type TurnFunc func(c *Conversation, text string)

// Conversation tracks one in-progress exchange: participant, current step
// and accumulated answers.
type Conversation struct {
	ID        string
	Token     string
	UserID    string
	ChannelID string

	engine *Engine

	mu         sync.Mutex
	answers    []string
	next       TurnFunc
	lastActive time.Time
	ended      bool
}

// Say enqueues an outbound message as part of the exchange. Messages for a
// session that is no longer live are dropped: continuations must not deliver
// to a torn-down session.
func (c *Conversation) Say(text string) {
	if c.engine.alive != nil && !c.engine.alive(c.Token) {
		c.End()
		return
	}
	c.engine.bus.PublishOutbound(&bus.OutboundMessage{
		Token:     c.Token,
		ChannelID: c.ChannelID,
		UserID:    c.UserID,
		Text:      text,
	})
}

// Ask sends a prompt and suspends until the user's next message, which is
// passed to next.
func (c *Conversation) Ask(text string, next TurnFunc) {
	c.Say(text)
	c.Await(next)
}

// Await registers the continuation for the user's next message without
// sending anything first.
func (c *Conversation) Await(next TurnFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ended {
		c.next = next
	}
}

// Answers returns the replies collected so far, one per completed turn.
func (c *Conversation) Answers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.answers))
	copy(out, c.answers)
	return out
}

// Step returns the number of completed turns.
func (c *Conversation) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.answers)
}

// End finishes the conversation and removes it from active tracking.
func (c *Conversation) End() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.next = nil
	c.mu.Unlock()
	c.engine.remove(c)
}

// Engine owns all active conversations, keyed by (session token, user id).
type Engine struct {
	bus     *bus.MessageBus
	timeout time.Duration
	alive   func(token string) bool

	mu     sync.Mutex
	active map[key]*Conversation
}

// NewEngine creates a conversation engine. alive reports whether a session
// token still has a live connection; nil means always live (tests). A zero
// timeout falls back to DefaultIdleTimeout.
func NewEngine(b *bus.MessageBus, timeout time.Duration, alive func(token string) bool) *Engine {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	return &Engine{
		bus:     b,
		timeout: timeout,
		alive:   alive,
		active:  make(map[key]*Conversation),
	}
}

// Begin starts a conversation with a user and runs start, which typically
// Says an opening and may Ask for a reply. A conversation that registered no
// continuation after start is already complete.
func (e *Engine) Begin(token, userID, channelID string, start func(c *Conversation)) (*Conversation, error) {
	c := &Conversation{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    userID,
		ChannelID: channelID,
		engine:    e,
	}
	c.lastActive = time.Now()

	k := key{token: token, userID: userID}
	e.mu.Lock()
	if _, exists := e.active[k]; exists {
		e.mu.Unlock()
		return nil, ErrActive
	}
	e.active[k] = c
	e.mu.Unlock()

	start(c)
	e.completeIfDone(c)
	return c, nil
}

// Resume feeds an inbound event to the conversation awaiting this user on
// this session, if any. It reports whether the event was consumed.
func (e *Engine) Resume(ev *bus.InboundEvent) bool {
	e.mu.Lock()
	c, ok := e.active[key{token: ev.Token, userID: ev.UserID}]
	e.mu.Unlock()
	if !ok {
		return false
	}

	c.mu.Lock()
	next := c.next
	if next == nil || c.ended {
		c.mu.Unlock()
		return false
	}
	c.next = nil
	c.answers = append(c.answers, ev.Text)
	c.lastActive = time.Now()
	c.mu.Unlock()

	next(c, ev.Text)
	e.completeIfDone(c)
	return true
}

// Abandon drops every conversation scoped to a session, without delivering
// further messages. Called on session teardown.
func (e *Engine) Abandon(token string) {
	e.mu.Lock()
	var doomed []*Conversation
	for k, c := range e.active {
		if k.token == token {
			doomed = append(doomed, c)
			delete(e.active, k)
		}
	}
	e.mu.Unlock()

	for _, c := range doomed {
		c.mu.Lock()
		c.ended = true
		c.next = nil
		c.mu.Unlock()
	}
}

// Active returns the number of tracked conversations.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Sweep expires conversations idle past the timeout and returns how many.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	var expired []*Conversation
	for k, c := range e.active {
		c.mu.Lock()
		idle := now.Sub(c.lastActive) > e.timeout
		c.mu.Unlock()
		if idle {
			expired = append(expired, c)
			delete(e.active, k)
		}
	}
	e.mu.Unlock()

	for _, c := range expired {
		c.mu.Lock()
		c.ended = true
		c.next = nil
		c.mu.Unlock()
	}
	return len(expired)
}

// Run sweeps periodically until the context is cancelled.
// This should be run as a goroutine.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Sweep(now)
		}
	}
}

func (e *Engine) completeIfDone(c *Conversation) {
	c.mu.Lock()
	done := c.next == nil && !c.ended
	c.mu.Unlock()
	if done {
		c.End()
	}
}

func (e *Engine) remove(c *Conversation) {
	e.mu.Lock()
	k := key{token: c.Token, userID: c.UserID}
	if cur, ok := e.active[k]; ok && cur == c {
		delete(e.active, k)
	}
	e.mu.Unlock()
}
