// Command probe is a headless client: it connects, flies a scripted
// pattern and logs how often prediction had to be corrected.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"LightSpeedArena/internal/game"
	"LightSpeedArena/internal/logging"
	"LightSpeedArena/internal/prediction"
	"LightSpeedArena/internal/session"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080/ws?room=default", "server websocket URL")
	name := flag.String("name", "probe", "player name")
	class := flag.String("class", "", "ship class (empty for the server default)")
	duration := flag.Duration("duration", 30*time.Second, "how long to fly")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log, err := logging.New(logging.Options{Level: *level, Console: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := session.DefaultConfig()
	cfg.URL = *url
	cfg.PlayerName = *name
	cfg.ShipClass = *class

	s := session.New(cfg, session.WSDialer{}, session.Listener{
		OnConnectionChange: func(ev session.ConnectionEvent) {
			log.Info("connection", zap.Stringer("state", ev.State), zap.Int("attempt", ev.Attempt), zap.Duration("delay", ev.Delay))
		},
		OnWorldUpdate: func(_ []game.EntitySnapshot, meta session.WorldMeta) {
			if meta.Reconcile.Outcome == prediction.OutcomeReplayed {
				log.Debug("replayed",
					zap.Uint64("tick", meta.Tick),
					zap.Float64("position_error", meta.Reconcile.PositionError),
					zap.Int("inputs", meta.Reconcile.Replayed))
			}
		},
	}, log.Named("session"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		log.Error("connect failed", zap.Error(err))
		os.Exit(1)
	}
	defer s.Disconnect()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.InputHz))
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info("done", zap.Any("stats", s.Stats().Snapshot()))
			return
		case <-report.C:
			log.Info("progress", zap.Any("stats", s.Stats().Snapshot()), zap.Int("remotes", len(s.RemoteStates())))
		case <-ticker.C:
			if _, err := s.SendInput(pattern(time.Since(start).Seconds())); err != nil {
				log.Debug("input skipped", zap.Error(err))
			}
		}
	}
}

// pattern flies a slow figure of eight with periodic braking.
func pattern(t float64) game.ControlInput {
	return game.ControlInput{
		Thrust:       0.6 + 0.4*math.Sin(t*0.5),
		Yaw:          math.Sin(t * 0.8),
		StrafeX:      0.3 * math.Cos(t*0.3),
		Brake:        math.Mod(t, 20) > 18,
		FlightAssist: true,
	}
}
