package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"LightSpeedArena/internal/game"
)

const instrumentationName = "LightSpeedArena/internal/server"

// Metrics counts server activity. The atomic counters back /metrics; every
// increment is mirrored to an OpenTelemetry counter on the configured meter.
type Metrics struct {
	ConnectionsAccepted atomic.Int64
	ConnectionsRejected atomic.Int64
	InputsAccepted      atomic.Int64
	InputsStale         atomic.Int64
	InputsQueueFull     atomic.Int64
	DecodeFailures      atomic.Int64
	SnapshotsSent       atomic.Int64
	SnapshotsDropped    atomic.Int64
	Collisions          atomic.Int64
	TickCount           atomic.Int64
	ParallelTicks       atomic.Int64
	TotalTickNs         atomic.Int64

	otelConnections metric.Int64Counter
	otelInputs      metric.Int64Counter
	otelSnapshots   metric.Int64Counter
	otelCollisions  metric.Int64Counter
	otelTickTime    metric.Float64Histogram
}

// NewMetrics registers instruments on meter; nil uses a no-op meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(instrumentationName)
	}
	m := &Metrics{}
	var err error

	m.otelConnections, err = meter.Int64Counter(
		"arena.connections",
		metric.WithDescription("Accepted websocket sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating connections counter: %w", err)
	}
	m.otelInputs, err = meter.Int64Counter(
		"arena.inputs.accepted",
		metric.WithDescription("Player inputs queued for simulation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inputs counter: %w", err)
	}
	m.otelSnapshots, err = meter.Int64Counter(
		"arena.snapshots.sent",
		metric.WithDescription("World snapshots queued to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshots counter: %w", err)
	}
	m.otelCollisions, err = meter.Int64Counter(
		"arena.collisions",
		metric.WithDescription("Resolved ship contacts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating collisions counter: %w", err)
	}
	m.otelTickTime, err = meter.Float64Histogram(
		"arena.tick.duration",
		metric.WithDescription("Simulation tick wall time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick histogram: %w", err)
	}
	return m, nil
}

func (m *Metrics) connectionAccepted() {
	m.ConnectionsAccepted.Add(1)
	m.otelConnections.Add(context.Background(), 1)
}

func (m *Metrics) inputVerdict(v game.InputVerdict) {
	switch v {
	case game.InputAccepted:
		m.InputsAccepted.Add(1)
		m.otelInputs.Add(context.Background(), 1)
	case game.InputStale:
		m.InputsStale.Add(1)
	case game.InputQueueFull:
		m.InputsQueueFull.Add(1)
	}
}

func (m *Metrics) snapshotQueued(ok bool) {
	if !ok {
		m.SnapshotsDropped.Add(1)
		return
	}
	m.SnapshotsSent.Add(1)
	m.otelSnapshots.Add(context.Background(), 1)
}

func (m *Metrics) tick(rep game.TickReport, elapsed time.Duration) {
	m.TickCount.Add(1)
	m.TotalTickNs.Add(elapsed.Nanoseconds())
	if rep.Parallel {
		m.ParallelTicks.Add(1)
	}
	if n := int64(len(rep.Contacts)); n > 0 {
		m.Collisions.Add(n)
		m.otelCollisions.Add(context.Background(), n)
	}
	m.otelTickTime.Record(context.Background(), float64(elapsed.Nanoseconds())/1e6)
}

// Snapshot returns a read-only copy for the HTTP endpoint.
func (m *Metrics) Snapshot() map[string]any {
	ticks := m.TickCount.Load()
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(m.TotalTickNs.Load()) / float64(ticks) / 1e6
	}
	return map[string]any{
		"connections_accepted": m.ConnectionsAccepted.Load(),
		"connections_rejected": m.ConnectionsRejected.Load(),
		"inputs_accepted":      m.InputsAccepted.Load(),
		"inputs_stale":         m.InputsStale.Load(),
		"inputs_queue_full":    m.InputsQueueFull.Load(),
		"decode_failures":      m.DecodeFailures.Load(),
		"snapshots_sent":       m.SnapshotsSent.Load(),
		"snapshots_dropped":    m.SnapshotsDropped.Load(),
		"collisions":           m.Collisions.Load(),
		"tick_count":           ticks,
		"parallel_ticks":       m.ParallelTicks.Load(),
		"avg_tick_ms":          avgMs,
	}
}
