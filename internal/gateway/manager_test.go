package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/convo"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/registry"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/session"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/store"
)

type fakeSession struct {
	token  string
	teamID string
	events chan session.Event

	mu     sync.Mutex
	closed bool
	posts  []string
}

func newFakeSession(token, teamID string) *fakeSession {
	return &fakeSession{token: token, teamID: teamID, events: make(chan session.Event, 4)}
}

func (f *fakeSession) Token() string                { return f.token }
func (f *fakeSession) TeamID() string               { return f.teamID }
func (f *fakeSession) TeamName() string             { return "team-" + f.teamID }
func (f *fakeSession) Identity() session.Identity   { return session.Identity{UserID: "U0BOT", Name: "buttonbot"} }
func (f *fakeSession) State() session.State         { return session.StateConnected }
func (f *fakeSession) StartedAt() time.Time         { return time.Now() }
func (f *fakeSession) Events() <-chan session.Event { return f.events }

func (f *fakeSession) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeSession) Say(ctx context.Context, channelID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	return nil
}

func (f *fakeSession) Post(ctx context.Context, channelID string, opts ...slack.MsgOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, channelID)
	return nil
}

func (f *fakeSession) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeSession) OpenDM(ctx context.Context, userID string) (string, error) { return "D1", nil }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  map[string]error
	dials []string
	last  *fakeSession
}

func (d *fakeDialer) Dial(ctx context.Context, team store.Team) (session.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, team.BotToken)
	if err := d.fail[team.BotToken]; err != nil {
		return nil, err
	}
	s := newFakeSession(team.BotToken, team.ID)
	d.last = s
	return s, nil
}

func (d *fakeDialer) dialCount(token string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.dials {
		if t == token {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, dialer Dialer, policy ReconnectPolicy) (*Manager, *registry.Registry, *store.Store, *bus.MessageBus) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "teams.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	reg := registry.New()
	b := bus.NewMessageBus()
	convos := convo.NewEngine(b, time.Minute, nil)
	m := NewManager(ManagerConfig{
		Registry:      reg,
		Store:         st,
		Bus:           b,
		Conversations: convos,
		Dialer:        dialer,
		Policy:        policy,
	})
	return m, reg, st, b
}

func saveTeam(t *testing.T, st *store.Store, id, token string) store.Team {
	t.Helper()
	team := store.Team{ID: id, Name: "team-" + id, BotToken: token, BotUserID: "U0BOT"}
	if err := st.SaveTeam(team); err != nil {
		t.Fatal(err)
	}
	return team
}

func TestReconcileSkipsFailingTeam(t *testing.T) {
	dialer := &fakeDialer{fail: map[string]error{"xoxb-b": session.ErrAuthRejected}}
	m, reg, st, _ := newTestManager(t, dialer, nil)

	saveTeam(t, st, "TA", "xoxb-a")
	saveTeam(t, st, "TB", "xoxb-b")
	saveTeam(t, st, "TC", "xoxb-c")

	connected, err := m.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if connected != 2 {
		t.Fatalf("connected = %d, want 2", connected)
	}
	if _, ok := reg.Lookup("xoxb-a"); !ok {
		t.Fatal("team A should be online")
	}
	if _, ok := reg.Lookup("xoxb-c"); !ok {
		t.Fatal("team C should be online")
	}
	if _, ok := reg.Lookup("xoxb-b"); ok {
		t.Fatal("team B must not be registered")
	}
}

func TestSpawnAndConnectIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	m, reg, st, _ := newTestManager(t, dialer, nil)
	team := saveTeam(t, st, "TA", "xoxb-a")

	first, err := m.SpawnAndConnect(context.Background(), team)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.SpawnAndConnect(context.Background(), team)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("second spawn should return the live session")
	}
	if dialer.dialCount("xoxb-a") != 1 {
		t.Fatalf("dials = %d, want 1", dialer.dialCount("xoxb-a"))
	}
	if reg.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", reg.Len())
	}
}

func TestTeardownDoesNotReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	m, reg, st, _ := newTestManager(t, dialer, Backoff{Initial: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3})
	team := saveTeam(t, st, "TA", "xoxb-a")

	if _, err := m.SpawnAndConnect(context.Background(), team); err != nil {
		t.Fatal(err)
	}

	// Explicit teardown closes the transport; the pump observes the channel
	// closing without a Closed event, which counts as intentional.
	m.Teardown("xoxb-a")
	time.Sleep(50 * time.Millisecond)

	if _, ok := reg.Lookup("xoxb-a"); ok {
		t.Fatal("session should be deregistered after teardown")
	}
	if dialer.dialCount("xoxb-a") != 1 {
		t.Fatalf("dials = %d, want no reconnect after teardown", dialer.dialCount("xoxb-a"))
	}
}

func TestUnexpectedCloseReconnects(t *testing.T) {
	dialer := &fakeDialer{}
	m, reg, st, _ := newTestManager(t, dialer, Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: 3})
	team := saveTeam(t, st, "TA", "xoxb-a")

	if _, err := m.SpawnAndConnect(context.Background(), team); err != nil {
		t.Fatal(err)
	}
	first := dialer.last

	first.events <- session.Event{Kind: session.EventClosed, Cause: session.ErrClosed}

	deadline := time.After(2 * time.Second)
	for dialer.dialCount("xoxb-a") < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reconnect dial")
		case <-time.After(5 * time.Millisecond):
		}
	}
	deadline = time.After(2 * time.Second)
	for {
		if s, ok := reg.Lookup("xoxb-a"); ok && s != session.Handle(first) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the replacement session")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNoReconnectPolicyStaysOffline(t *testing.T) {
	dialer := &fakeDialer{}
	m, reg, st, _ := newTestManager(t, dialer, NoReconnect{})
	team := saveTeam(t, st, "TA", "xoxb-a")

	if _, err := m.SpawnAndConnect(context.Background(), team); err != nil {
		t.Fatal(err)
	}
	dialer.last.events <- session.Event{Kind: session.EventClosed, Cause: errors.New("network lost")}
	time.Sleep(50 * time.Millisecond)

	if _, ok := reg.Lookup("xoxb-a"); ok {
		t.Fatal("session should be gone after unexpected close")
	}
	if dialer.dialCount("xoxb-a") != 1 {
		t.Fatalf("dials = %d, want 1 with reconnect disabled", dialer.dialCount("xoxb-a"))
	}
}

func TestSessionOutlivesSpawnContext(t *testing.T) {
	dialer := &fakeDialer{}
	m, reg, st, b := newTestManager(t, dialer, Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: 3})
	team := saveTeam(t, st, "TA", "xoxb-a")

	// Connect under a short-lived context, as the authorization handler does,
	// and cancel it once the session is up.
	reqCtx, cancelReq := context.WithCancel(context.Background())
	if _, err := m.SpawnAndConnect(reqCtx, team); err != nil {
		t.Fatal(err)
	}
	cancelReq()
	first := dialer.last

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	go b.DispatchOutbound(dispatchCtx)

	b.PublishOutbound(&bus.OutboundMessage{Token: "xoxb-a", ChannelID: "C1", Text: "hello"})

	deadline := time.After(2 * time.Second)
	for first.postCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for outbound delivery after spawn context cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}

	first.events <- session.Event{Kind: session.EventClosed, Cause: session.ErrClosed}

	deadline = time.After(2 * time.Second)
	for {
		if s, ok := reg.Lookup("xoxb-a"); ok && s != session.Handle(first) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("reconnect should not be bound to the spawn context")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBackoffDelays(t *testing.T) {
	p := Backoff{Initial: time.Second, Max: 4 * time.Second, MaxAttempts: 4}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		d, ok := p.NextDelay(i + 1)
		if !ok || d != w {
			t.Errorf("NextDelay(%d) = (%v,%v), want (%v,true)", i+1, d, ok, w)
		}
	}
	if _, ok := p.NextDelay(5); ok {
		t.Error("NextDelay past MaxAttempts should report exhaustion")
	}
	if _, ok := (NoReconnect{}).NextDelay(1); ok {
		t.Error("NoReconnect must never allow a retry")
	}
}
