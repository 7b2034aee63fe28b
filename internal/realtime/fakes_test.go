package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/rickgao/hotel-realtime/internal/clock"
	"github.com/rickgao/hotel-realtime/internal/connection"
	"github.com/rickgao/hotel-realtime/internal/events"
)

var epoch = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// fakeSocket is a scripted bidirectional socket.
type fakeSocket struct {
	url    string
	h      connection.SocketHandler
	mu     sync.Mutex
	sent   [][]byte
	live   bool
	closed bool
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return connection.ErrNotConnected
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = false
	s.closed = true
	return nil
}

func (s *fakeSocket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// Scripted server-side behaviour.

func (s *fakeSocket) accept() {
	s.mu.Lock()
	s.live = true
	s.mu.Unlock()
	s.h.OnOpen()
}

func (s *fakeSocket) closeWith(code int) {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
	s.h.OnClose(code, "")
}

func (s *fakeSocket) fail(err error) {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
	s.h.OnError(err)
}

func (s *fakeSocket) deliver(raw string) {
	s.h.OnMessage([]byte(raw))
}

// fakeSocketDialer records every socket it creates.
type fakeSocketDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	err     error
}

func (d *fakeSocketDialer) DialSocket(url string, h connection.SocketHandler) (connection.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeSocket{url: url, h: h}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeSocketDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeSocketDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// fakeStream is a scripted push-only stream.
type fakeStream struct {
	url    string
	h      connection.StreamHandler
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) accept()                     { s.h.OnOpen() }
func (s *fakeStream) fail(err error)              { s.h.OnError(err) }
func (s *fakeStream) deliver(raw string)          { s.h.OnMessage("", []byte(raw)) }
func (s *fakeStream) deliverNamed(ev, raw string) { s.h.OnMessage(ev, []byte(raw)) }

// fakeStreamDialer records every stream it opens.
type fakeStreamDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (d *fakeStreamDialer) OpenStream(url string, h connection.StreamHandler) (connection.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeStream{url: url, h: h}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeStreamDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *fakeStreamDialer) forURL(url string) []*fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeStream
	for _, s := range d.streams {
		if s.url == url {
			out = append(out, s)
		}
	}
	return out
}

func (d *fakeStreamDialer) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// harness wires a Manager to fakes and records hook output.
type harness struct {
	m       *Manager
	clk     *clock.Fake
	sockets *fakeSocketDialer
	streams *fakeStreamDialer

	mu          sync.Mutex
	transitions []State
	errs        []error
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://dashboard.test"
	}

	h := &harness{
		clk:     clock.NewFake(epoch),
		sockets: &fakeSocketDialer{},
		streams: &fakeStreamDialer{},
	}
	base := []Option{
		WithClock(h.clk),
		WithSocketDialer(h.sockets),
		WithStreamDialer(h.streams),
		WithStateHook(func(from, to State) {
			h.mu.Lock()
			h.transitions = append(h.transitions, to)
			h.mu.Unlock()
		}),
		WithErrorHook(func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		}),
	}
	h.m = New(cfg, append(base, opts...)...)
	t.Cleanup(h.m.Disconnect)
	return h
}

func (h *harness) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.transitions...)
}

func (h *harness) errorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errs)
}

func (h *harness) resetStates() {
	h.mu.Lock()
	h.transitions = nil
	h.mu.Unlock()
}

// connected drives the manager into ConnectedBidirectional.
func (h *harness) connected(t *testing.T) *fakeSocket {
	t.Helper()
	h.m.Connect()
	s := h.sockets.last()
	if s == nil {
		t.Fatal("no socket dialed")
	}
	s.accept()
	if got := h.m.State(); got != StateConnectedBidirectional {
		t.Fatalf("state = %v, want %v", got, StateConnectedBidirectional)
	}
	return s
}

// collector records deliveries for one or more listeners.
type collector struct {
	mu  sync.Mutex
	got []delivery
}

type delivery struct {
	who  string
	name string
	data string
}

func (c *collector) listener(who string) *Listener {
	return NewListener(func(ev events.Event) {
		c.mu.Lock()
		c.got = append(c.got, delivery{who: who, name: ev.Name, data: string(ev.Data)})
		c.mu.Unlock()
	})
}

func (c *collector) all() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery(nil), c.got...)
}
