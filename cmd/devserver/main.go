// devserver is a local stand-in for the dashboard backend. It serves the
// bidirectional socket at /ws, per-topic SSE streams at /api/events/{topic}
// and accepts POST /publish with an {event, data} body.
//
// Usage:
//
//	go run ./cmd/devserver -addr :3000 -hotels 7,42 -tick 2s
//	go run ./cmd/devserver -block-ws   # exercise the push-only fallback
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", ":3000", "listen address")
	blockWS := flag.Bool("block-ws", false, "drop websocket upgrades so clients observe close 1006")
	hotels := flag.String("hotels", "7", "comma-separated hotel ids for generated events")
	tick := flag.Duration("tick", 0, "interval for generated activity and room events; 0 disables")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	hub := NewHub(logger)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newHandler(hub, serverConfig{BlockWS: *blockWS}, logger),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go generate(ctx, hub, splitList(*hotels), *tick, logger)

	go func() {
		logger.Info("devserver listening", "addr", *addr, "block_ws", *blockWS, "tick", *tick)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	logger.Info("devserver stopped")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
