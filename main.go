package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"LightSpeedArena/internal/logging"
	"LightSpeedArena/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to arena config (JSON or YAML)")
	addr := flag.String("addr", "", "address to listen on (e.g., 127.0.0.1:8080)")
	logLevel := flag.String("log-level", "", "override log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "override rolling log file path")
	simHz := flag.Float64("sim-hz", math.NaN(), "override simulation tick rate")
	broadcastHz := flag.Float64("broadcast-hz", math.NaN(), "override snapshot broadcast rate")
	lightSpeed := flag.Float64("light-speed", math.NaN(), "override c′ for every ship class (m/s)")
	restitution := flag.Float64("restitution", math.NaN(), "override collision restitution (0-1)")
	damage := flag.Float64("damage-factor", math.NaN(), "override collision base damage factor")
	maxPlayers := flag.Int("max-players", -1, "override players per room")
	drones := flag.Int("drones", -1, "override unowned drones spawned per room")
	flag.Parse()

	var overrides server.Overrides
	floatOverride := func(v float64) *float64 {
		if math.IsNaN(v) {
			return nil
		}
		return &v
	}
	intOverride := func(v int) *int {
		if v < 0 {
			return nil
		}
		return &v
	}
	overrides.SimHz = floatOverride(*simHz)
	overrides.BroadcastHz = floatOverride(*broadcastHz)
	overrides.LightSpeed = floatOverride(*lightSpeed)
	overrides.Restitution = floatOverride(*restitution)
	overrides.DamageFactor = floatOverride(*damage)
	overrides.MaxPlayers = intOverride(*maxPlayers)
	overrides.Drones = intOverride(*drones)

	cfg, err := server.LoadConfig(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	log, err := logging.New(logging.Options{File: cfg.Log.File, Level: cfg.Log.Level, Console: cfg.Log.Console})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.StartApp(ctx, cfg, nil, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		stop()
		_ = log.Sync()
		os.Exit(1)
	}
}
