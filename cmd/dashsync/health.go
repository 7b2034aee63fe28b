package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/hotel-realtime/internal/buffer"
	"github.com/rickgao/hotel-realtime/internal/realtime"
	"github.com/rickgao/hotel-realtime/internal/writer"
)

type managerStatus interface {
	Stats() realtime.Stats
	IsConnected() bool
	Topics() []string
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthDeps are the components reported by /health. db, queue and
// archiver are nil when archiving is disabled.
type healthDeps struct {
	manager  managerStatus
	db       pinger
	queue    *buffer.Queue[writer.ActivityRecord]
	archiver *writer.ActivityWriter
}

// newHealthHandler creates the HTTP handler for health checks.
func newHealthHandler(deps healthDeps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		st := deps.manager.Stats()
		health.Components["realtime"] = map[string]any{
			"state":              st.State.String(),
			"mode":               st.Mode.String(),
			"connected":          deps.manager.IsConnected(),
			"reconnect_attempts": st.ReconnectAttempts,
			"listeners":          st.Listeners,
			"streams_open":       st.OpenStreams,
			"streams":            st.Topics,
		}
		switch {
		case st.State == realtime.StateDisconnected:
			health.Status = "unhealthy"
		case !deps.manager.IsConnected():
			health.Status = "degraded"
		}

		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		if deps.archiver != nil {
			ws := deps.archiver.Stats()
			qs := deps.queue.Stats()
			health.Components["archive"] = map[string]any{
				"queued":    qs.Len,
				"dropped":   qs.Dropped,
				"inserts":   ws.Inserts,
				"conflicts": ws.Conflicts,
				"errors":    ws.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Warn("write health response", "error", err)
		}
	})

	mux.HandleFunc("/debug/topics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"topics": deps.manager.Topics(),
		})
	})

	return mux
}
