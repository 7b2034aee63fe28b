package realtime

import (
	"log/slog"
	"time"

	"github.com/rickgao/hotel-realtime/internal/clock"
	"github.com/rickgao/hotel-realtime/internal/connection"
)

// Config holds the Connection Manager policy.
type Config struct {
	BaseURL          string        // e.g. https://dashboard.example.com; socket and stream URLs derive from it
	Production       bool          // Production skips the bidirectional attempt entirely
	ConnectTimeout   time.Duration // Max time in ConnectingBidirectional before falling back
	ReconnectCeiling int           // Failed bidirectional attempts before committing to fallback; also bounds stream retries
	ReconnectDelay   time.Duration // Fixed delay before a bidirectional retry
	StreamRetryBase  time.Duration // First push-only retry delay, doubled per attempt
	StreamRetryMax   time.Duration // Cap for push-only retry delay
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   3 * time.Second,
		ReconnectCeiling: 2,
		ReconnectDelay:   1 * time.Second,
		StreamRetryBase:  5 * time.Second,
		StreamRetryMax:   30 * time.Second,
	}
}

// withDefaults fills zero policy values.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReconnectCeiling <= 0 {
		c.ReconnectCeiling = d.ReconnectCeiling
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.StreamRetryBase <= 0 {
		c.StreamRetryBase = d.StreamRetryBase
	}
	if c.StreamRetryMax < c.StreamRetryBase {
		c.StreamRetryMax = d.StreamRetryMax
		if c.StreamRetryMax < c.StreamRetryBase {
			c.StreamRetryMax = c.StreamRetryBase
		}
	}
	return c
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	State             State
	Mode              Mode
	ReconnectAttempts int
	Keys              int // Registered event keys, including empty ones
	Listeners         int // Total listener entries
	Topics            int // Topics with a push-only stream entry
	OpenStreams       int // Push-only streams that reported open
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces the scheduler, e.g. with clock.Fake in tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithSocketDialer replaces the bidirectional driver.
// Dialers must not invoke the handler before DialSocket returns.
func WithSocketDialer(d connection.SocketDialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.sockets = d
		}
	}
}

// WithStreamDialer replaces the push-only driver.
// Dialers must not invoke the handler before OpenStream returns.
func WithStreamDialer(d connection.StreamDialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.streams = d
		}
	}
}

// WithStateHook registers a callback for every state transition. It runs
// outside the manager lock.
func WithStateHook(fn func(from, to State)) Option {
	return func(m *Manager) {
		m.onState = fn
	}
}

// WithErrorHook registers a callback for transport, decode and send errors
// that are otherwise only logged. It runs outside the manager lock.
func WithErrorHook(fn func(error)) Option {
	return func(m *Manager) {
		m.onError = fn
	}
}
