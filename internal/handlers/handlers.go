// Package handlers holds the bot's built-in commands and interactive
// callback routes.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/dispatch"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/registry"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/store"
)

const (
	catImageURL = "http://thecatapi.com/api/images/get?format=src&type=gif"
	catIconURL  = "https://emoji.slack-edge.com/T02/cat/1f431.png"

	// TestButtonCallbackID routes the demo button's click back to its handler.
	TestButtonCallbackID = "123"
)

var conversationScopes = []bus.Scope{
	bus.ScopeDirectMessage,
	bus.ScopeDirectMention,
	bus.ScopeAmbientMention,
}

// Handlers wires the built-in commands to the services they need.
type Handlers struct {
	Bus      *bus.MessageBus
	Store    *store.Store
	Registry *registry.Registry

	help *dispatch.Table[string]
}

// New creates the built-in handler set.
func New(b *bus.MessageBus, st *store.Store, reg *registry.Registry) *Handlers {
	h := &Handlers{Bus: b, Store: st, Registry: reg}
	h.help = dispatch.NewTable[string]()
	h.help.Set("weather", "I can't check the weather yet, but ask me for a cat and I'll cheer you up.")
	h.help.Set("cat", "Say `cat` or `get me a cat` and I will fetch a fresh cat gif.")
	h.help.Set("room status", "Room status tracking is not hooked up on this team yet.")
	h.help.Set("uptime", "Ask `uptime` or `who are you` and I'll tell you my name, host and run time.")
	topics := h.help.Keys()
	sort.Strings(topics)
	h.help.Default("I can help with these topics: " + strings.Join(topics, ", ") + ". Try `help <topic>`.")
	return h
}

// Register installs every built-in rule and callback route.
func (h *Handlers) Register(commands *dispatch.CommandDispatcher, callbacks *dispatch.CallbackRouter) error {
	// The anchored help rule goes first: the plain-phrase rules below match
	// anywhere in the text and would otherwise swallow "help cat".
	rules := []struct {
		patterns []string
		scopes   []bus.Scope
		handler  dispatch.Handler
	}{
		{[]string{"^help[ ]?(.*)"}, []bus.Scope{bus.ScopeDirectMessage, bus.ScopeDirectMention}, h.helpTopic},
		{[]string{"get me a cat", "cat"}, conversationScopes, h.cat},
		{[]string{"test button"}, conversationScopes, h.testButton},
		{[]string{"uptime", "identify yourself", "who are you", "what is your name"}, conversationScopes, h.uptime},
	}
	for _, r := range rules {
		if err := commands.Hears(r.patterns, r.scopes, r.handler); err != nil {
			return fmt.Errorf("register %q: %w", r.patterns[0], err)
		}
	}

	callbacks.Handle(TestButtonCallbackID, h.testButtonClicked)
	callbacks.SetDefault(h.unknownCallback)
	return nil
}

// cat records who asked and sends a cat gif under the CatBot persona.
func (h *Handlers) cat(ctx context.Context, ev *bus.InboundEvent, _ *dispatch.Match) {
	user, err := h.Store.GetUser(ev.UserID)
	if errors.Is(err, store.ErrNotFound) {
		user = store.User{ID: ev.UserID, Name: "cat lover"}
	} else if err != nil {
		slog.Warn("user lookup failed", "user", ev.UserID, "error", err)
		user = store.User{ID: ev.UserID, Name: "cat lover"}
	}
	if err := h.Store.SaveUser(user); err != nil {
		slog.Warn("user save failed", "user", ev.UserID, "error", err)
	}

	h.reply(ev, &bus.OutboundMessage{
		Text:     "Here you go, " + user.Name + ": " + catImageURL,
		Username: "CatBot",
		IconURL:  catIconURL,
	})
}

// testButton posts a message carrying one interactive button.
func (h *Handlers) testButton(ctx context.Context, ev *bus.InboundEvent, _ *dispatch.Match) {
	h.reply(ev, &bus.OutboundMessage{
		Text: "Here is a button for you to test.",
		Attachments: []slack.Attachment{{
			Fallback:   "Do you want to interact with my buttons?",
			Title:      "Do you want to interact with my buttons?",
			CallbackID: TestButtonCallbackID,
			Color:      "#3AA3E3",
			Actions: []slack.AttachmentAction{{
				Name:  "yes",
				Text:  "Yes",
				Type:  "button",
				Value: "yes",
			}},
		}},
	})
}

// uptime answers with the bot's identity, host and how long the session has
// been connected.
func (h *Handlers) uptime(ctx context.Context, ev *bus.InboundEvent, _ *dispatch.Match) {
	s, ok := h.Registry.Lookup(ev.Token)
	if !ok {
		return
	}
	hostname, _ := os.Hostname()
	running := FormatUptime(time.Since(s.StartedAt()))
	h.reply(ev, &bus.OutboundMessage{
		Text: fmt.Sprintf(":robot_face: I am a bot named <@%s>. I have been running for %s on %s.",
			s.Identity().Name, running, hostname),
	})
}

// helpTopic answers help requests, listing known topics when the requested
// one is unknown or absent.
func (h *Handlers) helpTopic(ctx context.Context, ev *bus.InboundEvent, m *dispatch.Match) {
	topic := strings.TrimSpace(m.Capture(0))
	text, _ := h.help.Lookup(topic)
	h.reply(ev, &bus.OutboundMessage{Text: text})
}

// testButtonClicked acknowledges the demo button by updating the original
// message in place.
func (h *Handlers) testButtonClicked(ctx context.Context, ev *bus.InboundEvent, _ dispatch.CallbackID, r dispatch.Responder) {
	if err := r.ReplyInteractive(ctx, ev, "Button works!"); err != nil {
		slog.Warn("interactive reply failed", "callback_id", ev.CallbackID, "error", err)
	}
}

// unknownCallback surfaces clicks whose identifier nothing registered for.
func (h *Handlers) unknownCallback(ctx context.Context, ev *bus.InboundEvent, id dispatch.CallbackID, r dispatch.Responder) {
	slog.Warn("unrouted interactive callback", "callback_id", id.Raw, "team", ev.TeamID)
	if err := r.Reply(ctx, ev, "The callback ID has not been defined"); err != nil {
		slog.Warn("callback reply failed", "callback_id", id.Raw, "error", err)
	}
}

func (h *Handlers) reply(ev *bus.InboundEvent, msg *bus.OutboundMessage) {
	msg.Token = ev.Token
	msg.ChannelID = ev.ChannelID
	msg.UserID = ev.UserID
	msg.TraceID = ev.TraceID
	h.Bus.PublishOutbound(msg)
}
