package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/hotel-realtime/internal/buffer"
	"github.com/rickgao/hotel-realtime/internal/realtime"
	"github.com/rickgao/hotel-realtime/internal/writer"
)

type stubManager struct {
	stats     realtime.Stats
	connected bool
	topics    []string
}

func (s stubManager) Stats() realtime.Stats { return s.stats }
func (s stubManager) IsConnected() bool     { return s.connected }
func (s stubManager) Topics() []string      { return s.topics }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func getHealth(t *testing.T, deps healthDeps) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	newHealthHandler(deps, slog.Default()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth_Connected(t *testing.T) {
	code, body := getHealth(t, healthDeps{manager: stubManager{
		stats:     realtime.Stats{State: realtime.StateConnectedBidirectional, Mode: realtime.ModeBidirectional, Listeners: 4},
		connected: true,
	}})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	rt := body["components"].(map[string]any)["realtime"].(map[string]any)
	assert.Equal(t, "connected_bidirectional", rt["state"])
	assert.Equal(t, "bidirectional", rt["mode"])
	assert.EqualValues(t, 4, rt["listeners"])
}

func TestHealth_FallbackWithoutOpenStreams(t *testing.T) {
	code, body := getHealth(t, healthDeps{manager: stubManager{
		stats: realtime.Stats{State: realtime.StateFallbackActive, Mode: realtime.ModePushOnly, Topics: 2},
	}})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestHealth_Disconnected(t *testing.T) {
	code, body := getHealth(t, healthDeps{manager: stubManager{}})

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestHealth_DatabaseAndArchive(t *testing.T) {
	queue := buffer.New[writer.ActivityRecord](1, 1)
	queue.Push(writer.ActivityRecord{})
	queue.Push(writer.ActivityRecord{})
	archiver := writer.NewActivityWriter(writer.DefaultWriterConfig(), queue, nil, nil)

	deps := healthDeps{
		manager:  stubManager{stats: realtime.Stats{State: realtime.StateConnectedBidirectional}, connected: true},
		db:       stubPinger{err: errors.New("connection refused")},
		queue:    queue,
		archiver: archiver,
	}
	code, body := getHealth(t, deps)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	components := body["components"].(map[string]any)
	db := components["database"].(map[string]any)
	assert.Equal(t, "disconnected", db["status"])
	archive := components["archive"].(map[string]any)
	assert.EqualValues(t, 1, archive["queued"])
	assert.EqualValues(t, 1, archive["dropped"])
}

func TestDebugTopics(t *testing.T) {
	rec := httptest.NewRecorder()
	h := newHealthHandler(healthDeps{manager: stubManager{topics: []string{"42", "7"}}}, slog.Default())
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/topics", nil))

	assert.JSONEq(t, `{"topics":["42","7"]}`, rec.Body.String())
}
