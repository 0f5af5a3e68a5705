// Package events classifies raw inbound platform events before dispatch.
package events

import (
	"strings"

	"github.com/slack-go/slack"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/bus"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/session"
)

// Classify tags a raw inbound message given the session's bot identity.
// Classification is purely structural: channel type plus whether the bot's
// identity is referenced. It never inspects command content, so the same
// (message, identity) input always yields the same tag.
//
// The returned text has a leading bot mention stripped so command patterns
// match the same way in direct messages and mentions.
func Classify(msg *slack.MessageEvent, ident session.Identity) (bus.Scope, string) {
	if msg == nil {
		return bus.ScopeUnrecognized, ""
	}
	channel := strings.TrimSpace(msg.Channel)
	user := strings.TrimSpace(msg.User)
	if channel == "" || user == "" {
		return bus.ScopeUnrecognized, ""
	}
	// The bot's own messages, and other bots, never reach dispatch.
	if msg.BotID != "" || msg.SubType == "bot_message" || user == ident.UserID {
		return bus.ScopeUnrecognized, ""
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(channel, "D") {
		return bus.ScopeDirectMessage, text
	}

	mention := mentionTag(ident.UserID)
	if mention == "" || !strings.Contains(text, mention) {
		return bus.ScopeAmbient, text
	}
	if strings.HasPrefix(text, mention) {
		return bus.ScopeDirectMention, stripMention(text, mention)
	}
	return bus.ScopeAmbientMention, stripMention(text, mention)
}

func mentionTag(botUserID string) string {
	botUserID = strings.TrimSpace(botUserID)
	if botUserID == "" {
		return ""
	}
	return "<@" + botUserID + ">"
}

func stripMention(text, mention string) string {
	cleaned := strings.Replace(text, mention, "", 1)
	// Slack renders "<@U123>: hi" for some clients; drop the dangling colon.
	cleaned = strings.TrimPrefix(strings.TrimSpace(cleaned), ":")
	return strings.TrimSpace(cleaned)
}
