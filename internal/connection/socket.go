package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// socketDialer implements SocketDialer with gorilla/websocket.
type socketDialer struct {
	cfg    SocketConfig
	logger *slog.Logger
}

// NewSocketDialer creates a WebSocket driver.
func NewSocketDialer(cfg SocketConfig, logger *slog.Logger) SocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &socketDialer{cfg: cfg, logger: logger}
}

// DialSocket validates the URL and starts the handshake in the background.
func (d *socketDialer) DialSocket(rawURL string, h SocketHandler) (Socket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &socket{
		cfg:     d.cfg,
		logger:  d.logger.With("url", rawURL),
		url:     rawURL,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.run()

	return s, nil
}

// socket implements the Socket interface.
type socket struct {
	cfg     SocketConfig
	logger  *slog.Logger
	url     string
	handler SocketHandler

	ctx    context.Context
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// Callback serialization
	cbMu     sync.Mutex
	finished bool

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	open       bool
	closed     bool
	lastPongAt time.Time
}

// run dials, reports the outcome, then reads until the socket dies.
func (s *socket) run() {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(s.ctx, s.url, s.cfg.Header)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		reason := err.Error()
		if resp != nil {
			reason = fmt.Sprintf("handshake rejected: %s", resp.Status)
		}
		s.logger.Debug("websocket dial failed", "error", err)
		s.emit(true, func() { s.handler.OnClose(CloseAbnormal, reason) })
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.open = true
	s.lastPongAt = time.Now()
	s.mu.Unlock()

	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}

	// Server pings count as liveness too
	conn.SetPingHandler(func(data string) error {
		s.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	s.logger.Debug("websocket connected")
	s.emit(false, s.handler.OnOpen)

	if s.cfg.PingInterval > 0 {
		go s.heartbeatLoop(conn)
	}
	s.readLoop(conn)
}

// Send writes one text frame.
func (s *socket) Send(data []byte) error {
	s.mu.RLock()
	conn, open := s.conn, s.open
	s.mu.RUnlock()
	if !open {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close gracefully closes the socket. Safe to call more than once.
func (s *socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.open = false
	conn := s.conn
	s.mu.Unlock()

	// Abort a pending dial and stop goroutines
	s.cancel()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// IsOpen returns the current connection state.
func (s *socket) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// readLoop reads frames and forwards them to the handler.
func (s *socket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			if s.ctx.Err() != nil {
				return
			}
			s.markDown()
			conn.Close()

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.emit(true, func() { s.handler.OnClose(ce.Code, ce.Text) })
			} else {
				s.emit(true, func() { s.handler.OnError(err) })
			}
			return
		}

		s.emit(false, func() { s.handler.OnMessage(data) })
	}
}

// heartbeatLoop sends keepalive pings and detects stale connections.
func (s *socket) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			s.mu.RLock()
			lastPong := s.lastPongAt
			s.mu.RUnlock()

			if s.cfg.PingTimeout > 0 && time.Since(lastPong) > s.cfg.PingTimeout {
				s.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", s.cfg.PingTimeout,
				)
				s.markDown()
				s.emit(true, func() { s.handler.OnError(ErrStaleConnection) })
				conn.Close()
				return
			}
		}
	}
}

// emit runs f under the callback lock unless the socket already reported a
// terminal event or was closed by the owner.
func (s *socket) emit(terminal bool, f func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	if s.finished || s.ctx.Err() != nil {
		return
	}
	if terminal {
		s.finished = true
	}
	f()
}

func (s *socket) touch() {
	s.mu.Lock()
	s.lastPongAt = time.Now()
	s.mu.Unlock()
}

func (s *socket) markDown() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
}
