package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rickgao/hotel-realtime/internal/realtime"
)

func emitCommand() *cli.Command {
	return &cli.Command{
		Name:      "emit",
		Usage:     "send one event over the bidirectional socket",
		ArgsUsage: "<event> [json-payload]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "wait",
				Value: 5 * time.Second,
				Usage: "how long to wait for the socket to open",
			},
		},
		Action: runEmit,
	}
}

func runEmit(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return errors.New("usage: dashsync emit <event> [json-payload]")
	}
	name := cmd.Args().Get(0)

	var args []any
	if raw := cmd.Args().Get(1); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("payload is not valid JSON: %q", raw)
		}
		args = append(args, json.RawMessage(raw))
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Realtime.Production() {
		return errors.New("emit needs the bidirectional transport, which production mode never opens")
	}

	settled := make(chan realtime.State, 1)
	m := newManager(cfg.Realtime, logger, realtime.WithStateHook(func(from, to realtime.State) {
		switch to {
		case realtime.StateConnectedBidirectional, realtime.StateFallbackActive:
			select {
			case settled <- to:
			default:
			}
		}
	}))
	defer m.Disconnect()

	m.Connect()

	wait := time.NewTimer(cmd.Duration("wait"))
	defer wait.Stop()

	select {
	case st := <-settled:
		if st != realtime.StateConnectedBidirectional {
			return fmt.Errorf("bidirectional transport unavailable (state %s)", st)
		}
	case <-wait.C:
		return fmt.Errorf("socket did not open within %s", cmd.Duration("wait"))
	case <-ctx.Done():
		return ctx.Err()
	}

	if !m.Emit(name, args...) {
		return fmt.Errorf("emit %s: not sent", name)
	}
	logger.Info("event sent", "event", name)
	return nil
}
