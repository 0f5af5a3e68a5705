// Package registry tracks the live session for each team credential token.
package registry

import (
	"sync"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/session"
)

// Registry is the process-wide table of live sessions keyed by team token.
// At most one session exists per token; a losing registration attempt is
// reported via the bool return so the caller can discard its session without
// touching the winner's.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]session.Handle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]session.Handle),
	}
}

// Register inserts the session for token and returns true, or returns false
// without side effects when a session for token already exists. A duplicate
// is an expected race during startup reconciliation, not an error.
func (r *Registry) Register(token string, s session.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[token]; exists {
		return false
	}
	r.sessions[token] = s
	return true
}

// Lookup returns the live session for token, if any.
func (r *Registry) Lookup(token string) (session.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	return s, ok
}

// Remove drops the session for token. Removing an absent token is a no-op.
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
}

// Tokens returns a snapshot of registered tokens.
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessions))
	for token := range r.sessions {
		out = append(out, token)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
