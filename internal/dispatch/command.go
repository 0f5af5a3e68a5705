// Package dispatch routes classified inbound events to registered handlers.
package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
)

// Match carries what a command pattern captured from the event text.
type Match struct {
	// Pattern is the raw pattern that matched.
	Pattern string
	// Captures holds the pattern's capture groups, first group at index 0.
	Captures []string
}

// Capture returns capture group i, or "" when the pattern captured less.
func (m *Match) Capture(i int) string {
	if m == nil || i < 0 || i >= len(m.Captures) {
		return ""
	}
	return m.Captures[i]
}

// Handler processes a matched command event.
type Handler func(ctx context.Context, ev *bus.InboundEvent, m *Match)

type rule struct {
	raw      []string
	patterns []*regexp.Regexp
	scopes   map[bus.Scope]bool
	handler  Handler
}

// CommandDispatcher matches text events against an ordered rule set.
// Rules are evaluated in registration order and the first match wins.
type CommandDispatcher struct {
	mu    sync.RWMutex
	rules []rule
}

// NewCommandDispatcher creates an empty dispatcher.
func NewCommandDispatcher() *CommandDispatcher {
	return &CommandDispatcher{}
}

// Hears registers a rule: the handler fires for events whose scope is in
// scopes and whose text matches at least one of patterns. Patterns are
// regular expressions; a plain phrase matches anywhere in the text, a
// parametrized command anchors itself with ^ and captures arguments.
func (d *CommandDispatcher) Hears(patterns []string, scopes []bus.Scope, handler Handler) error {
	if len(patterns) == 0 {
		return fmt.Errorf("dispatch: rule needs at least one pattern")
	}
	if handler == nil {
		return fmt.Errorf("dispatch: rule needs a handler")
	}
	r := rule{
		raw:    patterns,
		scopes: make(map[bus.Scope]bool, len(scopes)),
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("dispatch: pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	for _, s := range scopes {
		r.scopes[s] = true
	}
	r.handler = handler

	d.mu.Lock()
	d.rules = append(d.rules, r)
	d.mu.Unlock()
	return nil
}

// Dispatch evaluates rules in registration order and invokes the earliest
// matching rule's handler. It reports whether any rule fired. No match is a
// silent no-op: most ambient chatter is expected to match nothing.
func (d *CommandDispatcher) Dispatch(ctx context.Context, ev *bus.InboundEvent) bool {
	if ev == nil || ev.Interactive() || ev.Scope == bus.ScopeUnrecognized {
		return false
	}

	d.mu.RLock()
	rules := d.rules
	d.mu.RUnlock()

	for _, r := range rules {
		if !r.scopes[ev.Scope] {
			continue
		}
		for i, re := range r.patterns {
			groups := re.FindStringSubmatch(ev.Text)
			if groups == nil {
				continue
			}
			m := &Match{Pattern: r.raw[i]}
			if len(groups) > 1 {
				m.Captures = groups[1:]
			}
			r.handler(ctx, ev, m)
			return true
		}
	}
	return false
}
