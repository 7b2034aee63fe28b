package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jpillora/backoff"

	"github.com/rickgao/hotel-realtime/internal/clock"
	"github.com/rickgao/hotel-realtime/internal/connection"
	"github.com/rickgao/hotel-realtime/internal/events"
)

// Manager owns transport selection, reconnection policy and the listener
// registry. All methods are safe for concurrent use and never block on
// network I/O; results surface later through listener callbacks.
type Manager struct {
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	sockets connection.SocketDialer
	streams connection.StreamDialer
	onState func(from, to State)
	onError func(error)

	mu       sync.Mutex
	state    State
	registry *registry
	attempts int // failed bidirectional attempts since last open or teardown
	notices  []notice

	// Bidirectional transport
	socket         connection.Socket
	socketID       uint64 // bumped per attempt; stale socket callbacks are ignored
	connectTimer   pendingTimer
	reconnectTimer pendingTimer

	// Push-only transport, one stream per topic
	topics    map[string]*topicStream
	streamSeq uint64
}

// topicStream tracks the push-only stream for one topic.
type topicStream struct {
	topic    string
	id       uint64
	stream   connection.Stream
	open     bool
	failed   bool // retries exhausted or construction failed
	attempts int
	retry    pendingTimer
	backoff  *backoff.Backoff
}

// notice is a hook invocation deferred until the lock is released.
type notice struct {
	from, to State
	err      error
}

// New creates a Manager. Nothing is dialed until Connect or Subscribe.
func New(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg.withDefaults(),
		clock:    clock.Real(),
		logger:   slog.Default(),
		registry: newRegistry(),
		topics:   make(map[string]*topicStream),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sockets == nil {
		m.sockets = connection.NewSocketDialer(connection.DefaultSocketConfig(), m.logger)
	}
	if m.streams == nil {
		m.streams = connection.NewStreamDialer(connection.DefaultStreamConfig(), m.logger)
	}
	return m
}

// Connect initiates a connection. It is a no-op unless the manager is
// Disconnected. In production mode it goes straight to push-only fallback.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.unlock()
	m.connectLocked()
}

// Disconnect tears down every transport and timer, clears the listener
// registry and resets to Disconnected. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.unlock()

	m.connectTimer.stop()
	m.reconnectTimer.stop()
	m.closeSocket()

	for _, ts := range m.topics {
		ts.retry.stop()
		if ts.stream != nil {
			ts.stream.Close()
		}
	}
	m.topics = make(map[string]*topicStream)

	m.registry.clear()
	m.attempts = 0

	if m.state != StateDisconnected {
		m.logger.Info("realtime disconnected")
	}
	m.setState(StateDisconnected)
}

// Subscribe registers l under key. Topic-scoped keys ("name:topic") get a
// push-only stream while in fallback. Subscribing while Disconnected
// triggers Connect. A nil listener is ignored.
func (m *Manager) Subscribe(key string, l *Listener) {
	if l == nil || key == "" {
		return
	}

	m.mu.Lock()
	defer m.unlock()

	m.registry.add(key, l)

	switch m.state {
	case StateDisconnected:
		m.connectLocked()
	case StateFallbackActive:
		if _, topic, ok := events.SplitKey(key); ok {
			m.ensureStream(topic)
		}
	}
}

// SubscribeTopic registers l under "name:topic".
func (m *Manager) SubscribeTopic(topic, name string, l *Listener) {
	m.Subscribe(events.Key(name, topic), l)
}

// On wraps fn in a new handle, subscribes it and returns the handle.
func (m *Manager) On(key string, fn Callback) *Listener {
	l := NewListener(fn)
	m.Subscribe(key, l)
	return l
}

// Unsubscribe removes the first entry under key equal to l. Missing keys,
// unknown handles and nil are no-ops.
func (m *Manager) Unsubscribe(key string, l *Listener) {
	if l == nil {
		return
	}

	m.mu.Lock()
	defer m.unlock()
	m.registry.remove(key, l)
}

// UnsubscribeTopic removes l from "name:topic".
func (m *Manager) UnsubscribeTopic(topic, name string, l *Listener) {
	m.Unsubscribe(events.Key(name, topic), l)
}

// Emit sends {event: name, data: ...} over the bidirectional socket. One
// argument becomes data as-is, several are sent as an array, none omits
// data. Returns false when the frame was dropped because no bidirectional
// connection is open, or when encoding or the write failed. Nothing is
// queued.
func (m *Manager) Emit(name string, args ...any) bool {
	var data any
	switch len(args) {
	case 0:
	case 1:
		data = args[0]
	default:
		data = args
	}

	m.mu.Lock()
	sock := m.socket
	live := m.state == StateConnectedBidirectional && sock != nil
	m.mu.Unlock()

	if !live {
		m.logger.Debug("emit dropped, no bidirectional connection", "event", name)
		return false
	}

	frame, err := events.Encode(name, data)
	if err != nil {
		m.logger.Warn("emit encode failed", "event", name, "error", err)
		m.reportUnlocked(err)
		return false
	}

	if err := sock.Send(frame); err != nil {
		m.logger.Warn("emit failed", "event", name, "error", err)
		m.reportUnlocked(fmt.Errorf("emit %s: %w", name, err))
		return false
	}
	return true
}

// IsConnected reports whether events can currently arrive: an open
// bidirectional socket, or fallback with at least one open stream.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateConnectedBidirectional:
		return true
	case StateFallbackActive:
		for _, ts := range m.topics {
			if ts.open {
				return true
			}
		}
	}
	return false
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mode returns the transport owning the current state.
func (m *Manager) Mode() Mode {
	return modeFor(m.State())
}

// ReconnectAttempts returns the failed bidirectional attempt counter.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Topics returns the topics with a push-only stream entry, sorted.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.topics))
	for topic := range m.topics {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// ListenerCount returns the entries registered under key.
func (m *Manager) ListenerCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.count(key)
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, entries := m.registry.size()
	open := 0
	for _, ts := range m.topics {
		if ts.open {
			open++
		}
	}
	return Stats{
		State:             m.state,
		Mode:              modeFor(m.state),
		ReconnectAttempts: m.attempts,
		Keys:              keys,
		Listeners:         entries,
		Topics:            len(m.topics),
		OpenStreams:       open,
	}
}

// -----------------------------------------------------------------------------
// State machine (all *Locked helpers require m.mu)
// -----------------------------------------------------------------------------

func (m *Manager) connectLocked() {
	if m.state != StateDisconnected {
		return
	}
	if m.cfg.Production {
		m.enterFallback("production mode")
		return
	}
	m.openSocket()
}

// openSocket starts one bidirectional attempt and arms the connect timeout.
func (m *Manager) openSocket() {
	m.socketID++
	id := m.socketID

	u, err := socketURL(m.cfg.BaseURL)
	var sock connection.Socket
	if err == nil {
		sock, err = m.sockets.DialSocket(u, socketEvents{m: m, id: id})
	}
	if err != nil {
		// Construction failures are not retried
		m.logger.Error("failed to create websocket", "base_url", m.cfg.BaseURL, "error", err)
		m.report(fmt.Errorf("create websocket: %w", err))
		m.connectTimer.stop()
		m.reconnectTimer.stop()
		m.setState(StateDisconnected)
		return
	}

	m.socket = sock
	m.setState(StateConnectingBidirectional)
	m.logger.Debug("websocket connecting", "url", u, "attempt", m.attempts+1)

	m.connectTimer.schedule(m.clock, m.cfg.ConnectTimeout, m.connectTimedOut)
}

// closeSocket drops the current socket and invalidates its callbacks.
func (m *Manager) closeSocket() {
	if m.socket != nil {
		m.socket.Close()
		m.socket = nil
	}
	m.socketID++
}

// enterFallback commits to push-only mode for the rest of the session and
// opens streams for every topic that already has listeners.
func (m *Manager) enterFallback(reason string) {
	m.connectTimer.stop()
	m.reconnectTimer.stop()
	m.closeSocket()

	m.logger.Warn("falling back to push-only streams",
		"reason", reason,
		"attempts", m.attempts,
	)
	m.setState(StateFallbackActive)

	for _, topic := range m.registry.topics() {
		m.ensureStream(topic)
	}
}

func (m *Manager) connectTimedOut(gen uint64) {
	m.mu.Lock()
	defer m.unlock()

	if !m.connectTimer.claim(gen) || m.state != StateConnectingBidirectional {
		return
	}
	m.logger.Warn("websocket connect timed out", "timeout", m.cfg.ConnectTimeout)
	m.enterFallback("connect timeout")
}

func (m *Manager) reconnectFired(gen uint64) {
	m.mu.Lock()
	defer m.unlock()

	if !m.reconnectTimer.claim(gen) || m.state != StateReconnectingBidirectional {
		return
	}
	m.openSocket()
}

func (m *Manager) socketOpened(id uint64) {
	m.mu.Lock()
	defer m.unlock()

	if id != m.socketID || m.state != StateConnectingBidirectional {
		return
	}
	m.connectTimer.stop()
	m.attempts = 0
	m.setState(StateConnectedBidirectional)
	m.logger.Info("websocket connected")
}

func (m *Manager) socketClosed(id uint64, code int, reason string) {
	m.mu.Lock()
	defer m.unlock()

	if id != m.socketID {
		return
	}
	if m.state != StateConnectingBidirectional && m.state != StateConnectedBidirectional {
		return
	}
	m.connectTimer.stop()
	m.closeSocket()

	if code == connection.CloseAbnormal {
		// Blocked: direct jump, not a counted retry
		m.logger.Warn("websocket blocked", "code", code, "reason", reason)
		m.enterFallback("websocket blocked")
		return
	}

	m.attempts++
	m.logger.Info("websocket closed",
		"code", code,
		"reason", reason,
		"attempts", m.attempts,
		"ceiling", m.cfg.ReconnectCeiling,
	)
	if m.attempts >= m.cfg.ReconnectCeiling {
		m.enterFallback("reconnect ceiling reached")
		return
	}

	m.setState(StateReconnectingBidirectional)
	m.reconnectTimer.schedule(m.clock, m.cfg.ReconnectDelay, m.reconnectFired)
}

func (m *Manager) socketFailed(id uint64, err error) {
	m.mu.Lock()
	defer m.unlock()

	if id != m.socketID {
		return
	}
	if m.state != StateConnectingBidirectional && m.state != StateConnectedBidirectional {
		return
	}
	m.logger.Warn("websocket error", "error", err)
	m.report(fmt.Errorf("websocket: %w", err))
	m.enterFallback("websocket error")
}

// -----------------------------------------------------------------------------
// Push-only streams
// -----------------------------------------------------------------------------

// ensureStream makes sure topic has a stream that is open, opening or
// scheduled for retry. A topic that gave up is restarted.
func (m *Manager) ensureStream(topic string) {
	ts, ok := m.topics[topic]
	if ok && !ts.failed {
		return
	}
	if !ok {
		ts = &topicStream{
			topic: topic,
			backoff: &backoff.Backoff{
				Min:    m.cfg.StreamRetryBase,
				Max:    m.cfg.StreamRetryMax,
				Factor: 2,
			},
		}
		m.topics[topic] = ts
	}
	ts.failed = false
	ts.attempts = 0
	ts.backoff.Reset()
	m.openStream(ts)
}

func (m *Manager) openStream(ts *topicStream) {
	m.streamSeq++
	ts.id = m.streamSeq
	ts.open = false

	u, err := streamURL(m.cfg.BaseURL, ts.topic)
	var s connection.Stream
	if err == nil {
		s, err = m.streams.OpenStream(u, streamEvents{m: m, topic: ts.topic, id: ts.id})
	}
	if err != nil {
		m.logger.Error("failed to create stream", "topic", ts.topic, "error", err)
		m.report(fmt.Errorf("create stream %s: %w", ts.topic, err))
		ts.failed = true
		return
	}

	ts.stream = s
	m.logger.Debug("stream connecting", "topic", ts.topic, "url", u)
}

// liveStream returns the topic entry if id is its current stream.
func (m *Manager) liveStream(topic string, id uint64) *topicStream {
	ts, ok := m.topics[topic]
	if !ok || ts.id != id || m.state != StateFallbackActive {
		return nil
	}
	return ts
}

func (m *Manager) streamOpened(topic string, id uint64) {
	m.mu.Lock()
	defer m.unlock()

	ts := m.liveStream(topic, id)
	if ts == nil {
		return
	}
	ts.open = true
	ts.attempts = 0
	ts.backoff.Reset()
	m.logger.Info("stream connected", "topic", topic)
}

func (m *Manager) streamFailed(topic string, id uint64, err error) {
	m.mu.Lock()
	defer m.unlock()

	ts := m.liveStream(topic, id)
	if ts == nil {
		return
	}
	if ts.stream != nil {
		ts.stream.Close()
		ts.stream = nil
	}
	ts.open = false
	ts.id = 0
	m.report(fmt.Errorf("stream %s: %w", topic, err))

	if ts.attempts >= m.cfg.ReconnectCeiling {
		m.logger.Error("stream retries exhausted",
			"topic", topic,
			"attempts", ts.attempts,
			"error", err,
		)
		ts.failed = true
		return
	}

	ts.attempts++
	wait := ts.backoff.Duration()
	m.logger.Warn("stream error, retrying",
		"topic", topic,
		"attempt", ts.attempts,
		"wait", wait,
		"error", err,
	)
	ts.retry.schedule(m.clock, wait, func(gen uint64) {
		m.streamRetryFired(topic, gen)
	})
}

func (m *Manager) streamRetryFired(topic string, gen uint64) {
	m.mu.Lock()
	defer m.unlock()

	ts, ok := m.topics[topic]
	if !ok || !ts.retry.claim(gen) || m.state != StateFallbackActive {
		return
	}
	m.openStream(ts)
}

// -----------------------------------------------------------------------------
// Inbound dispatch
// -----------------------------------------------------------------------------

// socketMessage decodes a socket frame and dispatches it.
func (m *Manager) socketMessage(id uint64, data []byte) {
	m.mu.Lock()
	if id != m.socketID || m.state != StateConnectedBidirectional {
		m.unlock()
		return
	}
	m.unlock()

	ev, err := events.Decode(data)
	if err != nil {
		m.dropMalformed("websocket", err)
		return
	}
	m.dispatch(ev)
}

// streamMessage decodes a stream event and dispatches it. The SSE event
// field names the event when the JSON carries no identifier.
func (m *Manager) streamMessage(topic string, id uint64, sseEvent string, data []byte) {
	m.mu.Lock()
	if m.liveStream(topic, id) == nil {
		m.unlock()
		return
	}
	m.unlock()

	ev, err := events.Decode(data)
	if errors.Is(err, events.ErrMissingEvent) && sseEvent != "" && sseEvent != "message" {
		ev, err = events.Event{Name: sseEvent, Data: data}, nil
	}
	if err != nil {
		m.dropMalformed("stream "+topic, err)
		return
	}
	m.dispatch(ev)
}

// dispatch delivers ev to a snapshot of the listeners for its key, outside
// the lock so callbacks may subscribe or unsubscribe.
func (m *Manager) dispatch(ev events.Event) {
	m.mu.Lock()
	listeners := m.registry.snapshot(ev.Name)
	m.mu.Unlock()

	for _, l := range listeners {
		m.invoke(l, ev)
	}
}

func (m *Manager) invoke(l *Listener, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panicked", "event", ev.Name, "panic", r)
		}
	}()
	if err := l.handle(ev); err != nil {
		m.logger.Warn("dropping undecodable payload", "event", ev.Name, "error", err)
	}
}

func (m *Manager) dropMalformed(source string, err error) {
	m.logger.Warn("dropping malformed message", "source", source, "error", err)
	m.reportUnlocked(fmt.Errorf("decode %s message: %w", source, err))
}

// -----------------------------------------------------------------------------
// Hooks
// -----------------------------------------------------------------------------

// setState records a transition. Hooks fire on unlock.
func (m *Manager) setState(to State) {
	if m.state == to {
		return
	}
	from := m.state
	m.state = to
	m.logger.Debug("state change", "from", from, "to", to)
	m.notices = append(m.notices, notice{from: from, to: to})
}

// report queues err for the error hook. Requires m.mu.
func (m *Manager) report(err error) {
	m.notices = append(m.notices, notice{err: err})
}

func (m *Manager) reportUnlocked(err error) {
	if m.onError != nil {
		m.onError(err)
	}
}

// unlock releases m.mu and then runs queued hooks in order.
func (m *Manager) unlock() {
	notices := m.notices
	m.notices = nil
	m.mu.Unlock()

	for _, n := range notices {
		if n.err != nil {
			if m.onError != nil {
				m.onError(n.err)
			}
			continue
		}
		if m.onState != nil {
			m.onState(n.from, n.to)
		}
	}
}

// -----------------------------------------------------------------------------
// Driver adapters
// -----------------------------------------------------------------------------

// socketEvents binds driver callbacks to one bidirectional attempt.
type socketEvents struct {
	m  *Manager
	id uint64
}

func (h socketEvents) OnOpen()                         { h.m.socketOpened(h.id) }
func (h socketEvents) OnMessage(data []byte)           { h.m.socketMessage(h.id, data) }
func (h socketEvents) OnClose(code int, reason string) { h.m.socketClosed(h.id, code, reason) }
func (h socketEvents) OnError(err error)               { h.m.socketFailed(h.id, err) }

// streamEvents binds driver callbacks to one stream of one topic.
type streamEvents struct {
	m     *Manager
	topic string
	id    uint64
}

func (h streamEvents) OnOpen() { h.m.streamOpened(h.topic, h.id) }
func (h streamEvents) OnMessage(event string, data []byte) {
	h.m.streamMessage(h.topic, h.id, event, data)
}
func (h streamEvents) OnError(err error) { h.m.streamFailed(h.topic, h.id, err) }
