// Package config loads the bot's settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omochice/toy-irc-chat/internal/client"
	"github.com/omochice/toy-irc-chat/internal/ratelimit"
)

// Environment variables that override the file.
const (
	EnvToken    = "TWITCH_TOKEN"
	EnvClientID = "TWITCH_CLIENT_ID"
	EnvNick     = "TWITCH_NICK"
	EnvChannel  = "TWITCH_CHANNEL"
	EnvHost     = "TWITCH_HOST"
	EnvPort     = "TWITCH_PORT"
)

// Config holds all bot configuration.
type Config struct {
	Twitch  TwitchConfig  `yaml:"twitch"`
	Rate    RateConfig    `yaml:"rate"`
	Feed    FeedConfig    `yaml:"feed"`
	Logging LoggingConfig `yaml:"logging"`
}

// TwitchConfig is the chat account and endpoint.
type TwitchConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
	Token    string `yaml:"token"`
	Nick     string `yaml:"nick"`
	Channel  string `yaml:"channel"`
}

// RateConfig is the outbound budget. Moderators and verified bots may raise it.
type RateConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// FeedConfig configures the overlay WebSocket feed.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// DefaultConfig returns a config with everything but the secrets filled in.
func DefaultConfig() *Config {
	return &Config{
		Twitch: TwitchConfig{
			Host: client.DefaultHost,
			Port: client.DefaultPort,
		},
		Rate: RateConfig{
			Limit:  ratelimit.DefaultLimit,
			Window: ratelimit.DefaultWindow.String(),
		},
		Feed: FeedConfig{
			Address: "127.0.0.1:8080",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; secrets may come from the environment alone.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// The file holds the oauth token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvToken); v != "" {
		c.Twitch.Token = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		c.Twitch.ClientID = v
	}
	if v := os.Getenv(EnvNick); v != "" {
		c.Twitch.Nick = v
	}
	if v := os.Getenv(EnvChannel); v != "" {
		c.Twitch.Channel = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		c.Twitch.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.Twitch.Port = port
	}
	return nil
}

// Validate reports missing credentials and unusable limits.
func (c *Config) Validate() error {
	if err := c.Credentials().Validate(); err != nil {
		return fmt.Errorf("twitch: %w (set it in the config file or the environment)", err)
	}
	if _, err := c.RateLimit(); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	if c.Feed.Enabled && c.Feed.Address == "" {
		return errors.New("feed: address is required when the feed is enabled")
	}
	return nil
}

// Credentials returns the values the chat client needs to log in.
func (c *Config) Credentials() client.Credentials {
	return client.Credentials{
		AppID:   c.Twitch.ClientID,
		Token:   c.Twitch.Token,
		Nick:    c.Twitch.Nick,
		Channel: c.Twitch.Channel,
	}
}

// RateLimit parses the outbound budget.
func (c *Config) RateLimit() (ratelimit.Config, error) {
	window, err := time.ParseDuration(c.Rate.Window)
	if err != nil {
		return ratelimit.Config{}, fmt.Errorf("invalid window %q: %w", c.Rate.Window, err)
	}
	cfg := ratelimit.Config{Limit: c.Rate.Limit, Window: window}
	if err := cfg.Validate(); err != nil {
		return ratelimit.Config{}, err
	}
	return cfg, nil
}
