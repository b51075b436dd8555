package config

import (
	"fmt"
	"time"

	"github.com/vovakirdan/roomrelay/internal/core"
)

const (
	OverflowDropOldest = "drop_oldest"
	OverflowDisconnect = "disconnect"

	RenameIgnore = "ignore"
	RenameRename = "rename"
)

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format"`
	DefaultRoom        string        `mapstructure:"default_room" yaml:"default_room"`
	OutboxLimit        int           `mapstructure:"outbox_limit" yaml:"outbox_limit"`
	OutboxOverflow     string        `mapstructure:"outbox_overflow" yaml:"outbox_overflow"`
	RenamePolicy       string        `mapstructure:"rename_policy" yaml:"rename_policy"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DefaultRoom:        core.DefaultRoom,
		OutboxLimit:        0,
		OutboxOverflow:     OverflowDisconnect,
		RenamePolicy:       RenameIgnore,
		MaxMessageBytes:    64 << 10,
		InsecureSkipVerify: true,
	}
}

// Validate reports values the server cannot run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.OutboxLimit < 0 {
		return fmt.Errorf("outbox_limit must not be negative, got %d", c.OutboxLimit)
	}
	if _, err := c.overflowPolicy(); err != nil {
		return err
	}
	if _, err := c.renamePolicy(); err != nil {
		return err
	}
	return nil
}

// SessionOptions translates the relay and rename settings for the core.
func (c Config) SessionOptions() (core.SessionOptions, error) {
	overflow, err := c.overflowPolicy()
	if err != nil {
		return core.SessionOptions{}, err
	}
	rename, err := c.renamePolicy()
	if err != nil {
		return core.SessionOptions{}, err
	}
	return core.SessionOptions{
		Relay:  core.RelayOptions{Limit: c.OutboxLimit, Overflow: overflow},
		Rename: rename,
	}, nil
}

func (c Config) overflowPolicy() (core.OverflowPolicy, error) {
	switch c.OutboxOverflow {
	case OverflowDisconnect, "":
		return core.OverflowDisconnect, nil
	case OverflowDropOldest:
		return core.OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("unknown outbox_overflow %q", c.OutboxOverflow)
	}
}

func (c Config) renamePolicy() (core.RenamePolicy, error) {
	switch c.RenamePolicy {
	case RenameIgnore, "":
		return core.RenameIgnore, nil
	case RenameRename:
		return core.RenameRename, nil
	default:
		return 0, fmt.Errorf("unknown rename_policy %q", c.RenamePolicy)
	}
}
