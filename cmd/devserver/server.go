package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/hotel-realtime/internal/events"
)

// serverConfig controls the dev server behaviour.
type serverConfig struct {
	BlockWS   bool          // Drop socket upgrades without a handshake so clients see 1006
	KeepAlive time.Duration // SSE comment interval
}

// newHandler wires the dashboard endpoints onto a mux.
func newHandler(hub *Hub, cfg serverConfig, logger *slog.Logger) http.Handler {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if cfg.BlockWS {
			dropConnection(w, logger)
			return
		}
		hub.ServeWS(w, r)
	})

	mux.HandleFunc("GET /api/events/{topic}", func(w http.ResponseWriter, r *http.Request) {
		serveStream(hub, r.PathValue("topic"), cfg.KeepAlive, w, r, logger)
	})

	mux.HandleFunc("POST /publish", func(w http.ResponseWriter, r *http.Request) {
		var env events.Envelope
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&env); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		name := env.Event
		if name == "" {
			name = env.Type
		}
		if name == "" {
			http.Error(w, "event is required", http.StatusBadRequest)
			return
		}

		var data any
		if len(env.Data) > 0 {
			data = env.Data
		}
		if err := hub.Publish(name, data); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		sockets, streams := hub.Counts()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":     "ok",
			"block_ws":   cfg.BlockWS,
			"sockets":    sockets,
			"streams":    streams,
			"started_at": startedAt,
		})
	})

	return mux
}

var startedAt = time.Now().UTC()

// dropConnection closes the TCP connection without an HTTP response, the
// way an intercepting proxy kills a websocket upgrade.
func dropConnection(w http.ResponseWriter, logger *slog.Logger) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "websocket blocked", http.StatusForbidden)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		logger.Warn("hijack failed", "error", err)
		return
	}
	conn.Close()
	logger.Info("blocked websocket upgrade")
}

// serveStream writes hub events for topic as text/event-stream until the
// client goes away.
func serveStream(hub *Hub, topic string, keepAlive time.Duration, w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := hub.subscribe(topic)
	defer hub.unsubscribe(topic, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger.Info("stream subscriber connected", "topic", topic, "remote", r.RemoteAddr)
	defer logger.Info("stream subscriber gone", "topic", topic, "remote", r.RemoteAddr)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame := <-ch:
			if err := writeEvent(w, frame); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes frame as one SSE event, one data line per line of
// payload.
func writeEvent(w io.Writer, frame []byte) error {
	for _, line := range bytes.Split(frame, []byte("\n")) {
		if _, err := fmt.Fprintf(w, "data: %s\n", bytes.TrimRight(line, "\r")); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// generate publishes a synthetic activityUpdate and roomUpdate per hotel on
// every tick.
func generate(ctx context.Context, hub *Hub, hotels []string, every time.Duration, logger *slog.Logger) {
	if every <= 0 || len(hotels) == 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	kinds := []string{"check_in", "check_out", "housekeeping", "maintenance"}
	statuses := []string{events.RoomOccupied, events.RoomAvailable, events.RoomCleaning, events.RoomMaintenance}
	n := 0

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, hotel := range hotels {
				room := fmt.Sprintf("%d", 101+n%20)
				activity := events.Activity{
					ID:        uuid.NewString(),
					HotelID:   hotel,
					Kind:      kinds[n%len(kinds)],
					Message:   fmt.Sprintf("Room %s: %s", room, kinds[n%len(kinds)]),
					CreatedAt: now.UTC(),
				}
				if err := hub.Publish(events.Key(events.ActivityUpdate, hotel), activity); err != nil {
					logger.Warn("publish failed", "error", err)
				}
				status := events.RoomStatus{RoomID: room, Status: statuses[n%len(statuses)], UpdatedAt: now.UTC()}
				if err := hub.Publish(events.Key(events.RoomUpdate, hotel), status); err != nil {
					logger.Warn("publish failed", "error", err)
				}
			}
			n++
		}
	}
}
