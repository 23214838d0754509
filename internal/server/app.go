package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// StartApp serves until ctx is cancelled, then drains rooms and connections.
func StartApp(ctx context.Context, cfg AppConfig, meter metric.Meter, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	metrics, err := NewMetrics(meter)
	if err != nil {
		return err
	}
	hub := NewHub(ctx, cfg, metrics, log)

	// Periodic cleanup of empty rooms
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := hub.CleanupEmptyRooms(); n > 0 {
					log.Debug("empty rooms cleaned", zap.Int("count", n))
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewMux(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	log.Info("starting server",
		zap.String("addr", cfg.Addr),
		zap.Float64("sim_hz", cfg.Sim.Hz),
		zap.Float64("broadcast_hz", cfg.Sim.BroadcastHz),
		zap.Strings("ship_classes", cfg.Ships.Names()))

	select {
	case err := <-errc:
		hub.Shutdown()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
