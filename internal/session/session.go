// Package session provides the live handle for one team's real-time connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// Connection faults surfaced by Connect. Callers branch on these to pick
// retry behavior, so they are sentinels rather than plain fmt errors.
var (
	ErrAuthRejected = errors.New("session: authentication rejected")
	ErrUnreachable  = errors.New("session: transport unreachable")
	ErrClosed       = errors.New("session: closed")
)

// State is the connection state of a session. Closed is terminal: a new
// Session object is required to reconnect.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Identity is the bot's own user identity on a team, learned on connect.
type Identity struct {
	UserID string
	Name   string
}

// EventKind tags events emitted by a session's transport pump.
type EventKind int

const (
	// EventMessage carries a raw inbound message for classification.
	EventMessage EventKind = iota
	// EventClosed signals the connection is gone; emitted exactly once.
	EventClosed
)

// Event is what a session's transport pump delivers to the gateway.
type Event struct {
	Kind    EventKind
	Message *slack.MessageEvent
	Cause   error
}

// Handle is the session surface consumed by the registry, the gateway and
// command handlers. *Session implements it over a Slack RTM connection;
// tests substitute fakes.
type Handle interface {
	Token() string
	TeamID() string
	TeamName() string
	Identity() Identity
	State() State
	StartedAt() time.Time
	Alive() bool
	Events() <-chan Event
	Say(ctx context.Context, channelID, text string) error
	Post(ctx context.Context, channelID string, opts ...slack.MsgOption) error
	OpenDM(ctx context.Context, userID string) (string, error)
	Close() error
}

// Session is one team's live RTM connection plus bot identity.
type Session struct {
	token    string
	teamID   string
	teamName string

	api *slack.Client
	rtm *slack.RTM

	mu        sync.Mutex
	state     State
	identity  Identity
	startedAt time.Time

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	emitOnce  sync.Once
}

// Option customizes the underlying Slack client, e.g. for tests pointing at
// an httptest server.
type Option = slack.Option

// New creates a disconnected session for a team credential token.
func New(token string, opts ...Option) *Session {
	return &Session{
		token:  token,
		api:    slack.New(token, opts...),
		state:  StateDisconnected,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) Token() string    { return s.token }
func (s *Session) TeamID() string   { return s.teamID }
func (s *Session) TeamName() string { return s.teamName }

func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Alive reports whether the session may still deliver messages. Conversation
// continuations check this before acting.
func (s *Session) Alive() bool {
	return s.State() == StateConnected
}

// Events returns the transport pump channel. Closed-kind is the last event.
func (s *Session) Events() <-chan Event { return s.events }

// Connect opens the real-time connection and blocks until the handshake
// completes or fails. On success the session is Connected with its identity
// populated and the event pump running.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: connect from state %s", state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.rtm = s.api.NewRTM()
	go s.rtm.ManageConnection()

	for {
		select {
		case <-ctx.Done():
			s.failConnect()
			return fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
		case ev, ok := <-s.rtm.IncomingEvents:
			if !ok {
				s.failConnect()
				return ErrUnreachable
			}
			switch data := ev.Data.(type) {
			case *slack.ConnectedEvent:
				s.mu.Lock()
				s.state = StateConnected
				s.startedAt = time.Now()
				if data.Info != nil {
					if data.Info.User != nil {
						s.identity = Identity{UserID: data.Info.User.ID, Name: data.Info.User.Name}
					}
					if data.Info.Team != nil {
						s.teamID = data.Info.Team.ID
						s.teamName = data.Info.Team.Name
					}
				}
				s.mu.Unlock()
				go s.pump()
				return nil
			case *slack.InvalidAuthEvent:
				s.failConnect()
				return ErrAuthRejected
			case *slack.ConnectionErrorEvent:
				s.failConnect()
				return fmt.Errorf("%w: %v", ErrUnreachable, data.ErrorObj)
			case *slack.RTMError:
				s.failConnect()
				return fmt.Errorf("%w: %s", ErrUnreachable, data.Msg)
			default:
				// Hello, connecting progress etc. Keep waiting.
			}
		}
	}
}

func (s *Session) failConnect() {
	if s.rtm != nil {
		_ = s.rtm.Disconnect()
	}
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
}

// pump forwards raw messages until the connection goes away, then emits a
// single Closed event.
func (s *Session) pump() {
	for {
		select {
		case <-s.done:
			s.emitClosed(nil)
			return
		case ev, ok := <-s.rtm.IncomingEvents:
			if !ok {
				s.emitClosed(ErrClosed)
				return
			}
			switch data := ev.Data.(type) {
			case *slack.MessageEvent:
				select {
				case s.events <- Event{Kind: EventMessage, Message: data}:
				case <-s.done:
					s.emitClosed(nil)
					return
				}
			case *slack.DisconnectedEvent:
				if data.Intentional {
					s.emitClosed(nil)
					return
				}
				_ = s.rtm.Disconnect()
				cause := data.Cause
				if cause == nil {
					cause = ErrClosed
				}
				s.emitClosed(cause)
				return
			case *slack.RTMError:
				slog.Warn("RTM error", "team", s.teamID, "error", data.Msg)
			default:
				// Presence, typing, latency and friends are not our business.
			}
		}
	}
}

func (s *Session) transitionClosed() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

func (s *Session) emitClosed(cause error) {
	s.emitOnce.Do(func() {
		s.transitionClosed()
		s.events <- Event{Kind: EventClosed, Cause: cause}
	})
}

// Close tears the connection down. Idempotent; the pump emits the final
// Closed event.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.transitionClosed()
		close(s.done)
		if s.rtm != nil {
			_ = s.rtm.Disconnect()
		}
	})
	return nil
}

// Say sends a plain text message to a channel or DM.
func (s *Session) Say(ctx context.Context, channelID, text string) error {
	return s.Post(ctx, channelID, slack.MsgOptionText(text, false))
}

// Post sends a message with arbitrary options, retrying on rate limiting.
func (s *Session) Post(ctx context.Context, channelID string, opts ...slack.MsgOption) error {
	if !s.Alive() {
		return ErrClosed
	}
	return withRetry(3, func() (bool, error) {
		_, _, err := s.api.PostMessageContext(ctx, channelID, opts...)
		return retryDecision(err)
	})
}

// OpenDM opens (or returns) the direct-message channel with a user.
func (s *Session) OpenDM(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("session: empty user id")
	}
	var channelID string
	err := withRetry(3, func() (bool, error) {
		ch, _, _, err := s.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{userID},
		})
		if err == nil && ch != nil && strings.TrimSpace(ch.ID) != "" {
			channelID = strings.TrimSpace(ch.ID)
			return false, nil
		}
		return retryDecision(err)
	})
	if err != nil {
		return "", err
	}
	return channelID, nil
}

// retryDecision sleeps out a Slack rate limit and asks for another attempt.
func retryDecision(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) && rle != nil {
		if rle.RetryAfter > 0 {
			time.Sleep(rle.RetryAfter)
		}
		return true, err
	}
	return false, err
}

func withRetry(attempts int, fn func() (bool, error)) error {
	var err error
	for i := 0; i < attempts; i++ {
		var again bool
		again, err = fn()
		if err == nil || !again {
			return err
		}
	}
	return err
}
