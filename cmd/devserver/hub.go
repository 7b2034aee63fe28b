package main

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/hotel-realtime/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 << 10

	// Per-client outbound queue; slow clients are dropped when it fills.
	sendQueue = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans published events out to every socket client and to the SSE
// subscribers of the event's topic.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	sockets map[*socketClient]struct{}
	streams map[string]map[chan []byte]struct{} // topic -> subscribers

	published int64
}

type socketClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		sockets: make(map[*socketClient]struct{}),
		streams: make(map[string]map[chan []byte]struct{}),
	}
}

// Publish encodes {event, data} and delivers it. Socket clients receive
// every event; SSE subscribers receive events whose key carries their topic.
func (h *Hub) Publish(name string, data any) error {
	frame, err := events.Encode(name, data)
	if err != nil {
		return err
	}
	h.broadcast(name, frame)
	return nil
}

func (h *Hub) broadcast(name string, frame []byte) {
	_, topic, scoped := events.SplitKey(name)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.published++
	for c := range h.sockets {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("socket client too slow, dropping", "remote", c.conn.RemoteAddr())
			h.removeSocketLocked(c)
		}
	}
	if !scoped {
		return
	}
	for ch := range h.streams[topic] {
		select {
		case ch <- frame:
		default:
			h.logger.Warn("stream subscriber too slow, skipping event", "topic", topic, "event", name)
		}
	}
}

// Counts returns the number of socket clients and stream subscribers.
func (h *Hub) Counts() (sockets, streams int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.streams {
		streams += len(subs)
	}
	return len(h.sockets), streams
}

// ServeWS upgrades the request and relays frames from the client to all
// clients, the sender included.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &socketClient{hub: h, conn: conn, send: make(chan []byte, sendQueue)}

	h.mu.Lock()
	h.sockets[c] = struct{}{}
	n := len(h.sockets)
	h.mu.Unlock()
	h.logger.Info("socket client connected", "remote", conn.RemoteAddr(), "clients", n)

	go c.writePump()
	go c.readPump()
}

// subscribe registers an SSE subscriber for topic.
func (h *Hub) subscribe(topic string) chan []byte {
	ch := make(chan []byte, sendQueue)
	h.mu.Lock()
	if h.streams[topic] == nil {
		h.streams[topic] = make(map[chan []byte]struct{})
	}
	h.streams[topic][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(topic string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams[topic], ch)
	if len(h.streams[topic]) == 0 {
		delete(h.streams, topic)
	}
}

func (h *Hub) removeSocket(c *socketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSocketLocked(c)
}

func (h *Hub) removeSocketLocked(c *socketClient) {
	if _, ok := h.sockets[c]; !ok {
		return
	}
	delete(h.sockets, c)
	close(c.send)
}

// readPump relays inbound frames. Frames must decode as an event envelope.
func (c *socketClient) readPump() {
	defer func() {
		c.hub.removeSocket(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("socket read failed", "error", err)
			}
			return
		}

		ev, err := events.Decode(msg)
		if err != nil {
			c.hub.logger.Warn("dropping malformed client frame", "error", err)
			continue
		}
		c.hub.logger.Info("relaying client event", "event", ev.Name)
		c.hub.broadcast(ev.Name, msg)
	}
}

// writePump drains the send queue and keeps the connection alive.
func (c *socketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
