package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL          = "http://localhost:3000"
	DefaultMode             = ModeDevelopment
	DefaultConnectTimeout   = 3 * time.Second
	DefaultReconnectCeiling = 2
	DefaultReconnectDelay   = 1 * time.Second
	DefaultStreamRetryBase  = 5 * time.Second
	DefaultStreamRetryMax   = 30 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 10000
	DefaultHealthPort       = 8081
	DefaultLogLevel         = "info"
)

// DefaultEvents are the event names watched per hotel when none are configured.
var DefaultEvents = []string{"roomUpdate", "activityUpdate"}

func (c *Config) applyDefaults() {
	// Realtime defaults
	if c.Realtime.BaseURL == "" {
		c.Realtime.BaseURL = DefaultBaseURL
	}
	if c.Realtime.Mode == "" {
		c.Realtime.Mode = DefaultMode
	}
	if c.Realtime.ConnectTimeout == 0 {
		c.Realtime.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Realtime.ReconnectCeiling == 0 {
		c.Realtime.ReconnectCeiling = DefaultReconnectCeiling
	}
	if c.Realtime.ReconnectDelay == 0 {
		c.Realtime.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Realtime.StreamRetryBase == 0 {
		c.Realtime.StreamRetryBase = DefaultStreamRetryBase
	}
	if c.Realtime.StreamRetryMax == 0 {
		c.Realtime.StreamRetryMax = DefaultStreamRetryMax
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = DefaultPingInterval
	}
	if c.Realtime.PingTimeout == 0 {
		c.Realtime.PingTimeout = DefaultPingTimeout
	}

	// Watch defaults
	if len(c.Watch.Events) == 0 {
		c.Watch.Events = append([]string(nil), DefaultEvents...)
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
