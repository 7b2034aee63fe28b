// Command dashsync follows hotel dashboard events over the realtime
// Connection Manager.
//
// Usage:
//
//	dashsync --config configs/dashsync.yaml watch
//	dashsync emit roomUpdate:42 '{"status":"occupied"}'
//	dashsync version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/rickgao/hotel-realtime/internal/config"
	"github.com/rickgao/hotel-realtime/internal/connection"
	"github.com/rickgao/hotel-realtime/internal/realtime"
	"github.com/rickgao/hotel-realtime/internal/version"
)

const appName = "dashsync"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		slog.Error("dashsync failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    appName,
		Usage:   "follow hotel dashboard events over websocket with SSE fallback",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file; empty uses defaults and environment only",
				Sources: cli.EnvVars("DASHSYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			watchCommand(),
			emitCommand(),
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Println(appName, version.String())
					return nil
				},
			},
		},
	}
}

// loadConfig loads the config file named by --config, or builds one from
// the environment, and installs the default logger.
func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	if path := cmd.String("config"); path != "" {
		var err error
		cfg, err = config.LoadAndValidate(path)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cfg = config.FromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("validate config: %w", err)
		}
	}

	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newManager builds a Connection Manager from the realtime config section.
func newManager(cfg config.RealtimeConfig, logger *slog.Logger, opts ...realtime.Option) *realtime.Manager {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent(appName))

	sockCfg := connection.DefaultSocketConfig()
	sockCfg.WriteTimeout = cfg.WriteTimeout
	sockCfg.PingInterval = cfg.PingInterval
	sockCfg.PingTimeout = cfg.PingTimeout
	sockCfg.Header = header

	streamCfg := connection.DefaultStreamConfig()
	streamCfg.Header = header

	opts = append([]realtime.Option{
		realtime.WithLogger(logger),
		realtime.WithSocketDialer(connection.NewSocketDialer(sockCfg, logger.With("transport", "websocket"))),
		realtime.WithStreamDialer(connection.NewStreamDialer(streamCfg, logger.With("transport", "sse"))),
	}, opts...)

	return realtime.New(realtime.Config{
		BaseURL:          cfg.BaseURL,
		Production:       cfg.Production(),
		ConnectTimeout:   cfg.ConnectTimeout,
		ReconnectCeiling: cfg.ReconnectCeiling,
		ReconnectDelay:   cfg.ReconnectDelay,
		StreamRetryBase:  cfg.StreamRetryBase,
		StreamRetryMax:   cfg.StreamRetryMax,
	}, opts...)
}
