// Package gateway owns the lifecycle of team sessions: connect, classify and
// feed inbound events, detect closure, and decide whether to reconnect.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/convo"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/dispatch"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/events"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/journal"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/registry"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/session"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/store"
)

// Greeting sent once to the installing user after a team first connects.
var Greeting = []string{
	"I am a bot that has just joined your team",
	"You must now /invite me to a channel so that I can be of use!",
}

// LifecycleFunc observes session lifecycle transitions ("connected",
// "closed", "reconnect_giveup"). Optional operator hook.
type LifecycleFunc func(kind, teamID string, cause error)

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Registry      *registry.Registry
	Store         *store.Store
	Bus           *bus.MessageBus
	Conversations *convo.Engine
	Journal       *journal.Journal // nil disables journaling
	Dialer        Dialer
	Policy        ReconnectPolicy // nil means NoReconnect
	Lifecycle     LifecycleFunc   // optional
	// BaseContext bounds everything that outlives a SpawnAndConnect call:
	// the event pump, outbound delivery and reconnect attempts. Nil means
	// context.Background().
	BaseContext context.Context
}

// Manager brings team sessions online and keeps the registry honest.
type Manager struct {
	registry  *registry.Registry
	store     *store.Store
	bus       *bus.MessageBus
	convos    *convo.Engine
	journal   *journal.Journal
	dialer    Dialer
	policy    ReconnectPolicy
	lifecycle LifecycleFunc
	base      context.Context
}

// NewManager creates a connection manager.
func NewManager(cfg ManagerConfig) *Manager {
	policy := cfg.Policy
	if policy == nil {
		policy = NoReconnect{}
	}
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	return &Manager{
		registry:  cfg.Registry,
		store:     cfg.Store,
		bus:       cfg.Bus,
		convos:    cfg.Conversations,
		journal:   cfg.Journal,
		dialer:    cfg.Dialer,
		policy:    policy,
		lifecycle: cfg.Lifecycle,
		base:      base,
	}
}

// SpawnAndConnect creates a session from the team's credentials, opens the
// real-time connection and registers it. A team that is already online is a
// no-op returning the live session. Losing a concurrent registration race
// discards the new session and keeps the winner's.
//
// ctx bounds the dial only. The session's pump, outbound delivery and any
// reconnects run under the manager's base context, so a short-lived caller
// (an authorization request, say) does not take the session down with it.
func (m *Manager) SpawnAndConnect(ctx context.Context, team store.Team) (session.Handle, error) {
	token := team.BotToken
	if existing, ok := m.registry.Lookup(token); ok {
		return existing, nil
	}

	s, err := m.dialer.Dial(ctx, team)
	if err != nil {
		return nil, fmt.Errorf("connect team %s: %w", team.ID, err)
	}

	if !m.registry.Register(token, s) {
		// Lost the race: a session for this token went live first.
		_ = s.Close()
		winner, _ := m.registry.Lookup(token)
		return winner, nil
	}

	m.bus.Subscribe(token, func(msg *bus.OutboundMessage) {
		m.deliver(m.base, s, msg)
	})

	ident := s.Identity()
	slog.Info("session connected", "team", s.TeamID(), "team_name", s.TeamName(), "bot", ident.Name)
	m.journal.Record(m.base, journal.Envelope{Kind: "connected", TeamID: s.TeamID()})
	m.emit("connected", s.TeamID(), nil)

	go m.pump(m.base, team, s)
	return s, nil
}

// Greet delivers the one-time greeting direct message to the team's creator.
// Fire-and-forget: delivery failure is logged, never fatal.
func (m *Manager) Greet(ctx context.Context, s session.Handle, createdBy string) {
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return
	}
	channelID, err := s.OpenDM(ctx, createdBy)
	if err != nil {
		slog.Warn("greeting delivery failed", "team", s.TeamID(), "user", createdBy, "error", err)
		return
	}
	_, err = m.convos.Begin(s.Token(), createdBy, channelID, func(c *convo.Conversation) {
		for _, line := range Greeting {
			c.Say(line)
		}
	})
	if err != nil {
		slog.Warn("greeting conversation failed", "team", s.TeamID(), "user", createdBy, "error", err)
	}
}

// Reconcile connects every stored team that has a known bot identity. One
// bad team cannot prevent others from coming online: per-team failures are
// logged and skipped. It returns how many teams ended up connected.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	teams, err := m.store.AllTeams()
	if err != nil {
		return 0, fmt.Errorf("list teams: %w", err)
	}
	connected := 0
	for _, team := range teams {
		if !team.HasBot() {
			continue
		}
		if _, err := m.SpawnAndConnect(ctx, team); err != nil {
			slog.Error("error connecting bot to Slack", "team", team.ID, "error", err)
			continue
		}
		connected++
	}
	return connected, nil
}

// Teardown closes a team's session. The pump handles deregistration and
// conversation abandonment; explicit teardown never triggers reconnection.
func (m *Manager) Teardown(token string) {
	if s, ok := m.registry.Lookup(token); ok {
		_ = s.Close()
	}
}

// RunDispatch consumes classified inbound events and routes them: interactive
// callbacks to the callback router, conversation continuations to the engine,
// everything else to the command dispatcher. Blocks until ctx is cancelled.
func (m *Manager) RunDispatch(ctx context.Context, commands *dispatch.CommandDispatcher, callbacks *dispatch.CallbackRouter, responder dispatch.Responder) error {
	for {
		ev, err := m.bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		if ev.Interactive() {
			callbacks.Dispatch(ctx, ev, responder)
			continue
		}
		if m.convos.Resume(ev) {
			continue
		}
		commands.Dispatch(ctx, ev)
	}
}

// pump translates one session's transport events into classified bus events
// until the connection closes.
func (m *Manager) pump(ctx context.Context, team store.Team, s session.Handle) {
	// A drained event channel without a Closed event still means the
	// connection is gone; treat it as an intentional close.
	defer func() {
		if cur, ok := m.registry.Lookup(s.Token()); ok && cur == s {
			m.handleClosed(ctx, team, s, nil)
		}
	}()
	for ev := range s.Events() {
		switch ev.Kind {
		case session.EventClosed:
			m.handleClosed(ctx, team, s, ev.Cause)
			return
		case session.EventMessage:
			scope, text := events.Classify(ev.Message, s.Identity())
			if scope == bus.ScopeUnrecognized {
				slog.Debug("dropping unclassifiable event", "team", s.TeamID())
				continue
			}
			ie := &bus.InboundEvent{
				Token:     s.Token(),
				TeamID:    s.TeamID(),
				Scope:     scope,
				UserID:    ev.Message.User,
				ChannelID: ev.Message.Channel,
				Text:      text,
				TraceID:   uuid.NewString(),
				Timestamp: slackTimestamp(ev.Message.Timestamp),
			}
			m.journal.Record(ctx, journal.Envelope{
				Kind:      "event",
				TeamID:    ie.TeamID,
				UserID:    ie.UserID,
				ChannelID: ie.ChannelID,
				Scope:     string(ie.Scope),
				TraceID:   ie.TraceID,
			})
			m.bus.PublishInbound(ie)
		}
	}
}

// handleClosed removes the dead session and consults the reconnect policy.
// cause == nil means an explicit teardown, which never reconnects.
func (m *Manager) handleClosed(ctx context.Context, team store.Team, s session.Handle, cause error) {
	token := s.Token()
	m.registry.Remove(token)
	m.bus.Unsubscribe(token)
	m.convos.Abandon(token)

	if cause == nil {
		slog.Info("session closed", "team", s.TeamID())
	} else {
		slog.Warn("session closed unexpectedly", "team", s.TeamID(), "cause", cause)
	}
	m.journal.Record(ctx, journal.Envelope{Kind: "closed", TeamID: s.TeamID()})
	m.emit("closed", s.TeamID(), cause)

	if cause == nil {
		return
	}
	go m.reconnect(ctx, team)
}

// reconnect retries with a fresh session object per the policy. Closed
// sessions are terminal, so every attempt dials anew.
func (m *Manager) reconnect(ctx context.Context, team store.Team) {
	for attempt := 1; ; attempt++ {
		delay, ok := m.policy.NextDelay(attempt)
		if !ok {
			if attempt == 1 {
				slog.Info("reconnect disabled, team stays offline", "team", team.ID)
			} else {
				slog.Warn("reconnect attempts exhausted", "team", team.ID, "attempts", attempt-1)
			}
			m.emit("reconnect_giveup", team.ID, nil)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		m.journal.Record(ctx, journal.Envelope{Kind: "reconnect", TeamID: team.ID, Detail: strconv.Itoa(attempt)})
		if _, err := m.SpawnAndConnect(ctx, team); err != nil {
			slog.Warn("reconnect attempt failed", "team", team.ID, "attempt", attempt, "error", err)
			continue
		}
		slog.Info("reconnected", "team", team.ID, "attempt", attempt)
		return
	}
}

// deliver posts one outbound message over the session.
func (m *Manager) deliver(ctx context.Context, s session.Handle, msg *bus.OutboundMessage) {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if msg.Username != "" {
		opts = append(opts, slack.MsgOptionUsername(msg.Username))
	}
	if msg.IconURL != "" {
		opts = append(opts, slack.MsgOptionIconURL(msg.IconURL))
	}
	if len(msg.Attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(msg.Attachments...))
	}
	if err := s.Post(ctx, msg.ChannelID, opts...); err != nil {
		slog.Warn("outbound delivery failed", "team", s.TeamID(), "channel", msg.ChannelID, "error", err)
	}
}

func (m *Manager) emit(kind, teamID string, cause error) {
	if m.lifecycle != nil {
		m.lifecycle(kind, teamID, cause)
	}
}

// slackTimestamp parses Slack's "seconds.fraction" event timestamps.
func slackTimestamp(ts string) time.Time {
	f, err := strconv.ParseFloat(strings.TrimSpace(ts), 64)
	if err != nil || f <= 0 {
		return time.Now()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
