package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/hotel-realtime/internal/buffer"
	"github.com/rickgao/hotel-realtime/internal/config"
	"github.com/rickgao/hotel-realtime/internal/database"
	"github.com/rickgao/hotel-realtime/internal/events"
	"github.com/rickgao/hotel-realtime/internal/realtime"
	"github.com/rickgao/hotel-realtime/internal/writer"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "subscribe to room and activity updates for the configured hotels",
		ArgsUsage: "[hotel...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "archive",
				Usage: "force-enable the activity archive (requires database settings)",
			},
		},
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 0 {
		cfg.Watch.Hotels = cmd.Args().Slice()
	}
	if cmd.Bool("archive") {
		cfg.Database.Enabled = true
	}
	if len(cfg.Watch.Hotels) == 0 {
		return errors.New("no hotels to watch: set watch.hotels or pass hotel ids")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger.Info("starting dashsync watch",
		"base_url", cfg.Realtime.BaseURL,
		"mode", cfg.Realtime.Mode,
		"hotels", cfg.Watch.Hotels,
		"events", cfg.Watch.Events,
		"archive", cfg.Database.Enabled,
	)

	var (
		pool     *pgxpool.Pool
		queue    *buffer.Queue[writer.ActivityRecord]
		archiver *writer.ActivityWriter
	)
	if cfg.Database.Enabled {
		pool, err = database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := writer.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		queue = buffer.New[writer.ActivityRecord](cfg.Writer.BatchSize, cfg.Writer.BufferSize)
		archiver = writer.NewActivityWriter(writer.WriterConfig{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
		}, queue, pool, logger)
	}

	m := newManager(cfg.Realtime, logger,
		realtime.WithStateHook(func(from, to realtime.State) {
			logger.Info("connection state", "from", from, "to", to)
		}),
		realtime.WithErrorHook(func(err error) {
			logger.Debug("realtime error", "error", err)
		}),
	)
	defer m.Disconnect()

	subscribeHotels(m, cfg.Watch, queue, logger)

	g, gctx := errgroup.WithContext(ctx)

	if archiver != nil {
		if err := archiver.Start(gctx); err != nil {
			return fmt.Errorf("start activity writer: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			queue.Close()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return archiver.Stop(stopCtx)
		})
	}

	if cfg.Health.Port > 0 {
		deps := healthDeps{manager: m, queue: queue, archiver: archiver}
		if pool != nil {
			deps.db = pool
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
			Handler:           newHealthHandler(deps, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "stats", m.Stats())
		m.Disconnect()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("dashsync stopped")
	return nil
}

// subscribeHotels registers one listener per hotel and event name. Activity
// updates are forwarded to queue when archiving is enabled.
func subscribeHotels(m *realtime.Manager, watch config.WatchConfig, queue *buffer.Queue[writer.ActivityRecord], logger *slog.Logger) {
	for _, hotel := range watch.Hotels {
		log := logger.With("hotel", hotel)

		for _, name := range watch.Events {
			switch name {
			case events.RoomUpdate:
				m.SubscribeTopic(hotel, name, realtime.Typed(func(rs events.RoomStatus) {
					log.Info("room update", "room", rs.RoomID, "status", rs.Status)
				}))

			case events.ActivityUpdate:
				m.SubscribeTopic(hotel, name, realtime.NewListener(func(ev events.Event) {
					rec, err := activityRecord(hotel, m.Mode(), ev)
					if err != nil {
						log.Warn("dropping activity", "error", err)
						return
					}
					log.Info("activity", "id", rec.Activity.ID, "kind", rec.Activity.Kind, "message", rec.Activity.Message)
					if queue != nil {
						queue.Push(rec)
					}
				}))

			default:
				m.SubscribeTopic(hotel, name, realtime.NewListener(func(ev events.Event) {
					log.Info("event", "name", ev.Name, "data", string(ev.Data))
				}))
			}
		}
	}
}

// activityRecord decodes an activityUpdate payload for archiving.
func activityRecord(hotel string, mode realtime.Mode, ev events.Event) (writer.ActivityRecord, error) {
	var a events.Activity
	if err := json.Unmarshal(ev.Data, &a); err != nil {
		return writer.ActivityRecord{}, fmt.Errorf("decode %s: %w", ev.Name, err)
	}
	return writer.ActivityRecord{
		Topic:      hotel,
		Transport:  mode.String(),
		ReceivedAt: time.Now(),
		Activity:   a,
		Raw:        append([]byte(nil), ev.Data...),
	}, nil
}
