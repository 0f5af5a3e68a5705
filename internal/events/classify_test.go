package events

import (
	"testing"

	"github.com/slack-go/slack"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/session"
)

func msg(channel, user, text string) *slack.MessageEvent {
	m := &slack.MessageEvent{}
	m.Channel = channel
	m.User = user
	m.Text = text
	return m
}

func TestClassify(t *testing.T) {
	ident := session.Identity{UserID: "U0BOT", Name: "buttonbot"}

	cases := []struct {
		name     string
		msg      *slack.MessageEvent
		want     bus.Scope
		wantText string
	}{
		{"direct message", msg("D1234", "U1", "hello"), bus.ScopeDirectMessage, "hello"},
		{"direct mention", msg("C1234", "U1", "<@U0BOT> uptime"), bus.ScopeDirectMention, "uptime"},
		{"direct mention with colon", msg("C1234", "U1", "<@U0BOT>: uptime"), bus.ScopeDirectMention, "uptime"},
		{"ambient mention", msg("C1234", "U1", "ask <@U0BOT> something"), bus.ScopeAmbientMention, "ask  something"},
		{"ambient chatter", msg("C1234", "U1", "lunch anyone?"), bus.ScopeAmbient, "lunch anyone?"},
		{"missing channel", msg("", "U1", "hi"), bus.ScopeUnrecognized, ""},
		{"missing user", msg("C1234", "", "hi"), bus.ScopeUnrecognized, ""},
		{"nil event", nil, bus.ScopeUnrecognized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scope, text := Classify(tc.msg, ident)
			if scope != tc.want {
				t.Errorf("scope = %q, want %q", scope, tc.want)
			}
			if text != tc.wantText {
				t.Errorf("text = %q, want %q", text, tc.wantText)
			}
		})
	}
}

func TestClassifyIgnoresBots(t *testing.T) {
	ident := session.Identity{UserID: "U0BOT"}

	own := msg("C1", "U0BOT", "echo")
	if scope, _ := Classify(own, ident); scope != bus.ScopeUnrecognized {
		t.Errorf("own message scope = %q, want unrecognized", scope)
	}

	other := msg("C1", "U9", "posted by app")
	other.BotID = "B42"
	if scope, _ := Classify(other, ident); scope != bus.ScopeUnrecognized {
		t.Errorf("bot message scope = %q, want unrecognized", scope)
	}

	sub := msg("C1", "U9", "posted by app")
	sub.SubType = "bot_message"
	if scope, _ := Classify(sub, ident); scope != bus.ScopeUnrecognized {
		t.Errorf("bot_message subtype scope = %q, want unrecognized", scope)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	ident := session.Identity{UserID: "U0BOT"}
	m := msg("C77", "U5", "<@U0BOT> help cat")
	s1, t1 := Classify(m, ident)
	for i := 0; i < 10; i++ {
		s2, t2 := Classify(m, ident)
		if s2 != s1 || t2 != t1 {
			t.Fatalf("classification changed on repeat: (%q,%q) vs (%q,%q)", s1, t1, s2, t2)
		}
	}
}
