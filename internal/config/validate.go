package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Realtime.validate(); err != nil {
		return err
	}

	for i, h := range c.Watch.Hotels {
		if h == "" || strings.Contains(h, ":") {
			return fmt.Errorf("watch.hotels[%d] must be non-empty and contain no ':', got %q", i, h)
		}
	}
	for i, e := range c.Watch.Events {
		if e == "" || strings.Contains(e, ":") {
			return fmt.Errorf("watch.events[%d] must be non-empty and contain no ':', got %q", i, e)
		}
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}
	if c.Writer.BufferSize < 1 {
		return errors.New("writer.buffer_size must be >= 1")
	}
	if c.Writer.FlushInterval <= 0 {
		return errors.New("writer.flush_interval must be > 0")
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}

func (r *RealtimeConfig) validate() error {
	if r.BaseURL == "" {
		return errors.New("realtime.base_url is required")
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return fmt.Errorf("realtime.base_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("realtime.base_url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("realtime.base_url host is required")
	}

	switch strings.ToLower(r.Mode) {
	case ModeDevelopment, ModeProduction:
	default:
		return fmt.Errorf("realtime.mode must be %q or %q, got %q", ModeDevelopment, ModeProduction, r.Mode)
	}

	if r.ConnectTimeout <= 0 {
		return errors.New("realtime.connect_timeout must be > 0")
	}
	if r.ReconnectCeiling < 1 {
		return errors.New("realtime.reconnect_ceiling must be >= 1")
	}
	if r.ReconnectDelay <= 0 {
		return errors.New("realtime.reconnect_delay must be > 0")
	}
	if r.StreamRetryBase <= 0 {
		return errors.New("realtime.stream_retry_base must be > 0")
	}
	if r.StreamRetryMax < r.StreamRetryBase {
		return fmt.Errorf("realtime.stream_retry_max (%s) cannot be less than stream_retry_base (%s)", r.StreamRetryMax, r.StreamRetryBase)
	}
	if r.PingTimeout <= r.PingInterval {
		return fmt.Errorf("realtime.ping_timeout (%s) must exceed ping_interval (%s)", r.PingTimeout, r.PingInterval)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
