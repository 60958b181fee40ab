// Package imessage is the reference macOS channel adapter: it polls the
// local Messages.app SQLite database for inbound texts and sends outbound
// replies via AppleScript. It exists to prove the ChannelAdapter contract
// against a transport that is neither a bot API nor a socket.
//go:build darwin
// +build darwin

package imessage

import (
	"fmt"
	"time"
)

// Config holds iMessage adapter configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// DatabasePath is the path to the iMessage SQLite database.
	// Defaults to ~/Library/Messages/chat.db
	DatabasePath string `yaml:"database_path"`

	// PollInterval is how often to poll for new messages.
	PollInterval string `yaml:"poll_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		DatabasePath: "~/Library/Messages/chat.db",
		PollInterval: "1s",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("imessage: database_path is required")
	}
	if c.PollInterval != "" {
		if _, err := time.ParseDuration(c.PollInterval); err != nil {
			return fmt.Errorf("imessage: invalid poll_interval %q: %w", c.PollInterval, err)
		}
	}
	return nil
}
