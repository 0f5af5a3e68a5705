package gateway

import (
	"context"
	"time"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/session"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/store"
)

// Dialer opens a live session for a team. The real implementation dials
// Slack RTM; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, team store.Team) (session.Handle, error)
}

// SlackDialer dials real RTM connections with a bounded handshake.
type SlackDialer struct {
	// HandshakeTimeout bounds the connect handshake. Zero means 30s.
	HandshakeTimeout time.Duration
	// Options are passed to the underlying Slack client (tests point these
	// at a local server).
	Options []session.Option
}

func (d *SlackDialer) Dial(ctx context.Context, team store.Team) (session.Handle, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s := session.New(team.BotToken, d.Options...)
	if err := s.Connect(dialCtx); err != nil {
		return nil, err
	}
	return s, nil
}
