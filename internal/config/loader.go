package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".buttonbot"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("BUTTONBOT_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load reads the config file (if present), applies environment overrides and
// validates required fields. Missing required credentials are an error: the
// process must not start without them.
func Load() (*Config, error) {
	cfg := Defaults()

	path, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a config with every optional knob at its default.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Slack: SlackConfig{
			Scopes: append([]string(nil), DefaultScopes...),
		},
		Storage: StorageConfig{
			Path: filepath.Join(home, ConfigDir, "teams.db"),
		},
		Reconnect: ReconnectConfig{
			InitialDelay: 2 * time.Second,
			MaxDelay:     2 * time.Minute,
			MaxAttempts:  8,
		},
		Conversation: ConversationConfig{
			Timeout: 10 * time.Minute,
		},
		Journal: JournalConfig{
			Topic: "buttonbot.events",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Errors here mean a malformed override value; the subsequent Validate
	// call catches anything that matters.
	_ = envconfig.Process("BUTTONBOT_SLACK", &cfg.Slack)
	_ = envconfig.Process("BUTTONBOT_HTTP", &cfg.HTTP)
	_ = envconfig.Process("BUTTONBOT_STORAGE", &cfg.Storage)
	_ = envconfig.Process("BUTTONBOT_RECONNECT", &cfg.Reconnect)
	_ = envconfig.Process("BUTTONBOT_CONVERSATION", &cfg.Conversation)
	_ = envconfig.Process("BUTTONBOT_JOURNAL", &cfg.Journal)
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Slack.Token) == "" {
		missing = append(missing, "slack.token")
	}
	if strings.TrimSpace(c.Slack.ClientID) == "" {
		missing = append(missing, "slack.clientId")
	}
	if strings.TrimSpace(c.Slack.ClientSecret) == "" {
		missing = append(missing, "slack.clientSecret")
	}
	if c.HTTP.Port <= 0 {
		missing = append(missing, "http.port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Journal.Enabled() && strings.TrimSpace(c.Journal.Topic) == "" {
		return errors.New("config: journal.topic required when brokers are set")
	}
	return nil
}
