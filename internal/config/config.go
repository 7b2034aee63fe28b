package config

import (
	"log/slog"
	"strings"
	"time"
)

// Deployment modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config is the root configuration for dashsync.
type Config struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Watch    WatchConfig    `yaml:"watch"`
	Database DBConfig       `yaml:"database"`
	Writer   WriterConfig   `yaml:"writer"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// RealtimeConfig holds the dashboard endpoint and Connection Manager policy.
type RealtimeConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Mode             string        `yaml:"mode"` // development tries the socket first; production goes straight to streams
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	ReconnectCeiling int           `yaml:"reconnect_ceiling"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	StreamRetryBase  time.Duration `yaml:"stream_retry_base"`
	StreamRetryMax   time.Duration `yaml:"stream_retry_max"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
}

// Production reports whether the bidirectional attempt should be skipped.
func (r RealtimeConfig) Production() bool {
	return strings.EqualFold(r.Mode, ModeProduction)
}

// WatchConfig selects what dashsync watch subscribes to.
type WatchConfig struct {
	Hotels []string `yaml:"hotels"`
	Events []string `yaml:"events"` // Event names; each is subscribed as "name:hotel"
}

// DBConfig holds the optional activity archive connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HealthConfig holds the health endpoint settings. Port 0 disables it.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
