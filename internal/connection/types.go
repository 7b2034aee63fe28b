package connection

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrInvalidURL      = errors.New("invalid endpoint url")
	ErrBadStatus       = errors.New("unexpected stream status")
	ErrStreamEnded     = errors.New("stream ended")
)

// CloseAbnormal is reported when a socket drops without a close frame or
// fails its handshake. The manager reads it as "actively blocked".
const CloseAbnormal = websocket.CloseAbnormalClosure // 1006

// SocketHandler receives lifecycle callbacks for one bidirectional socket.
// Calls for a single socket never overlap. After OnClose or OnError no
// further callbacks are made.
type SocketHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(code int, reason string)
	OnError(err error)
}

// Socket is an open or opening bidirectional connection.
type Socket interface {
	// Send writes one text frame.
	Send(data []byte) error

	// Close tears the socket down without invoking the handler.
	Close() error

	// IsOpen reports whether the handshake completed and the socket is live.
	IsOpen() bool
}

// SocketDialer creates sockets. An error means the socket could not be
// constructed at all; connect failures are reported asynchronously via
// the handler.
type SocketDialer interface {
	DialSocket(url string, h SocketHandler) (Socket, error)
}

// StreamHandler receives callbacks for one push-only stream.
// After OnError no further callbacks are made.
type StreamHandler interface {
	OnOpen()
	// OnMessage is called per dispatched event. event is the SSE "event:"
	// field, empty when the server sent none.
	OnMessage(event string, data []byte)
	OnError(err error)
}

// Stream is an open or opening push-only stream.
type Stream interface {
	Close() error
}

// StreamDialer opens push-only streams.
type StreamDialer interface {
	OpenStream(url string, h StreamHandler) (Stream, error)
}

// SocketConfig configures the WebSocket driver.
type SocketConfig struct {
	HandshakeTimeout time.Duration // Upper bound for the HTTP upgrade
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping period (0 disables)
	PingTimeout      time.Duration // Max time without pong before the socket is stale
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
	Header           http.Header   // Extra handshake headers
}

// DefaultSocketConfig returns sensible defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// StreamConfig configures the push-only driver.
type StreamConfig struct {
	HTTPClient   *http.Client // Must not set a total Timeout; streams are long-lived
	MaxEventSize int          // Max bytes per SSE line
	Header       http.Header  // Extra request headers
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HTTPClient:   http.DefaultClient,
		MaxEventSize: 1 << 20,
	}
}
