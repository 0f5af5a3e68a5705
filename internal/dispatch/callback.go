package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
)

// ErrMalformedCallback reports a callback identifier that does not have the
// expected {user_id}-{item_id} shape.
var ErrMalformedCallback = errors.New("dispatch: malformed callback id")

// CallbackID is the compound key embedded in an interactive event's payload.
// It correlates a button click back to the context that created it. Parsed on
// dispatch, never stored.
type CallbackID struct {
	Raw    string
	UserID string
	ItemID string
}

// ParseCallbackID splits a raw identifier into its user and item components.
// The shape is exactly two hyphen-delimited non-empty components; anything
// else is malformed and yields zero components alongside the error, never
// undefined values.
func ParseCallbackID(raw string) (CallbackID, error) {
	id := CallbackID{Raw: raw}
	parts := strings.Split(raw, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return id, fmt.Errorf("%w: %q", ErrMalformedCallback, raw)
	}
	id.UserID = parts[0]
	id.ItemID = parts[1]
	return id, nil
}

// Responder is how callback handlers answer. Interactive replies use a
// constrained response channel that may update or replace the original
// message; Reply is the ordinary message path.
type Responder interface {
	Reply(ctx context.Context, ev *bus.InboundEvent, text string) error
	ReplyInteractive(ctx context.Context, ev *bus.InboundEvent, text string) error
}

// CallbackHandler processes one interactive callback. id carries the parsed
// compound components for the handler's own use; routing already happened on
// the whole identifier string.
type CallbackHandler func(ctx context.Context, ev *bus.InboundEvent, id CallbackID, r Responder)

// CallbackRouter maps interactive callback identifiers to handlers. Unknown
// identifiers go to the default handler, which must answer visibly: an
// unmapped identifier is a registration bug that should surface immediately,
// not a silent drop.
type CallbackRouter struct {
	mu     sync.RWMutex
	routes map[string]CallbackHandler
	def    CallbackHandler
}

// NewCallbackRouter creates a router with a log-only default.
func NewCallbackRouter() *CallbackRouter {
	return &CallbackRouter{
		routes: make(map[string]CallbackHandler),
		def: func(ctx context.Context, ev *bus.InboundEvent, id CallbackID, r Responder) {
			slog.Warn("unrouted interactive callback", "callback_id", id.Raw, "team", ev.TeamID)
		},
	}
}

// Handle registers a handler for a whole callback identifier.
func (c *CallbackRouter) Handle(callbackID string, handler CallbackHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.routes[callbackID] = handler
}

// SetDefault replaces the fallback handler for unknown identifiers.
func (c *CallbackRouter) SetDefault(handler CallbackHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.def = handler
}

// Dispatch routes an interactive event by its whole callback identifier.
// Malformed compound identifiers are logged and still routed, with zero
// components, so a registered handler keeps working when it never needed them.
func (c *CallbackRouter) Dispatch(ctx context.Context, ev *bus.InboundEvent, r Responder) {
	if ev == nil || !ev.Interactive() {
		return
	}
	id, err := ParseCallbackID(ev.CallbackID)
	if err != nil {
		slog.Warn("malformed callback id", "callback_id", ev.CallbackID, "team", ev.TeamID)
	}

	c.mu.RLock()
	handler, ok := c.routes[ev.CallbackID]
	def := c.def
	c.mu.RUnlock()

	if !ok {
		handler = def
	}
	handler(ctx, ev, id, r)
}
