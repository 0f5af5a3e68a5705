// Package config provides configuration types and loading for buttonbot.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Slack, HTTP, Storage, Reconnect, Conversation, Journal.
type Config struct {
	Slack        SlackConfig        `json:"slack"`
	HTTP         HTTPConfig         `json:"http"`
	Storage      StorageConfig      `json:"storage"`
	Reconnect    ReconnectConfig    `json:"reconnect"`
	Conversation ConversationConfig `json:"conversation"`
	Journal      JournalConfig      `json:"journal"`
}

// SlackConfig holds app credentials. Token, ClientID and ClientSecret are
// required; the process refuses to start without them.
type SlackConfig struct {
	Token         string   `json:"token" envconfig:"TOKEN"`                  // seed bot token for the home team
	ClientID      string   `json:"clientId" envconfig:"CLIENT_ID"`           // app client id for the authorization flow
	ClientSecret  string   `json:"clientSecret" envconfig:"CLIENT_SECRET"`   // app client secret
	SigningSecret string   `json:"signingSecret" envconfig:"SIGNING_SECRET"` // webhook request verification
	UserToken     string   `json:"userToken" envconfig:"USER_TOKEN"`         // optional, read-only profile lookups
	RedirectURL   string   `json:"redirectUrl" envconfig:"REDIRECT_URL"`
	Scopes        []string `json:"scopes" envconfig:"SCOPES"`
}

// HTTPConfig configures the webhook/authorization listener.
type HTTPConfig struct {
	Port int `json:"port" envconfig:"PORT"`
}

// StorageConfig locates the team/user database.
type StorageConfig struct {
	Path string `json:"path" envconfig:"PATH"`
}

// ReconnectConfig controls what happens after an unexpected disconnect.
// Disabled by default: unbounded automatic retry against a rate-limited
// platform is a known failure mode, so retry is opt-in and bounded.
type ReconnectConfig struct {
	Enabled      bool          `json:"enabled" envconfig:"ENABLED"`
	InitialDelay time.Duration `json:"initialDelay" envconfig:"INITIAL_DELAY"`
	MaxDelay     time.Duration `json:"maxDelay" envconfig:"MAX_DELAY"`
	MaxAttempts  int           `json:"maxAttempts" envconfig:"MAX_ATTEMPTS"`
}

// ConversationConfig bounds multi-turn exchanges.
type ConversationConfig struct {
	Timeout time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

// JournalConfig enables the Kafka event journal when brokers are set.
type JournalConfig struct {
	Brokers []string `json:"brokers" envconfig:"BROKERS"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
}

// Enabled reports whether the journal should be wired up.
func (j JournalConfig) Enabled() bool {
	return len(j.Brokers) > 0
}

// DefaultScopes are the OAuth scopes requested during team authorization.
var DefaultScopes = []string{
	"bot", "incoming-webhook", "team:read", "users:read", "users.profile:read",
	"channels:read", "im:read", "im:write", "groups:read", "emoji:read", "chat:write:bot",
}
