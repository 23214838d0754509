// Package prediction runs the client side of the netcode: it applies local
// inputs immediately through the shared simulation and reconciles the
// result against authoritative server snapshots.
package prediction

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"LightSpeedArena/internal/game"
)

type Phase int

const (
	Uninitialized Phase = iota
	Predicting
	Reconciling
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Predicting:
		return "predicting"
	case Reconciling:
		return "reconciling"
	}
	return "unknown"
}

type Config struct {
	Physics           game.PhysicsConfig
	HistorySize       int
	PositionTolerance float64 // m
	RotationTolerance float64 // rad
}

func DefaultConfig() Config {
	return Config{
		Physics:           game.DefaultPhysicsConfig(),
		HistorySize:       HistoryCapacity(game.HistoryKeepS, game.InputHz),
		PositionTolerance: 0.5,
		RotationTolerance: 5 * math.Pi / 180,
	}
}

type Outcome int

const (
	// OutcomeAdopted: nothing left unacknowledged, server state taken as is.
	OutcomeAdopted Outcome = iota
	// OutcomeWithinTolerance: prediction kept, acknowledged inputs dropped.
	OutcomeWithinTolerance
	// OutcomeReplayed: rewound to the server state and replayed.
	OutcomeReplayed
	// OutcomeIgnored: the engine has no baseline yet.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdopted:
		return "adopted"
	case OutcomeWithinTolerance:
		return "within_tolerance"
	case OutcomeReplayed:
		return "replayed"
	case OutcomeIgnored:
		return "ignored"
	}
	return "unknown"
}

type Result struct {
	Outcome       Outcome
	PositionError float64
	RotationError float64
	Replayed      int
}

// Engine owns the locally predicted state of one entity. All methods are
// serialized so a reconciliation, replay included, never interleaves with
// ApplyInput.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	phase    Phase
	state    game.EntityState
	momentum game.Momentum
	history  *History
	log      *zap.Logger
}

func NewEngine(cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = HistoryCapacity(game.HistoryKeepS, game.InputHz)
	}
	return &Engine{
		cfg:     cfg,
		history: NewHistory(cfg.HistorySize),
		log:     log,
	}
}

// Reset adopts state as the baseline and starts predicting.
func (e *Engine) Reset(state game.EntityState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adoptLocked(state)
	e.history.Clear()
	e.phase = Predicting
}

// Stop returns the engine to Uninitialized and forgets all history.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = Uninitialized
	e.state = game.EntityState{}
	e.momentum = game.Momentum{}
	e.history.Clear()
}

func (e *Engine) adoptLocked(state game.EntityState) {
	e.state = state
	e.momentum = game.MomentumFromVelocity(state.Vel, state.AngVel, e.cfg.Physics)
}

// ApplyInput records in and advances the prediction by dt. It reports false
// when no baseline has been received yet.
func (e *Engine) ApplyInput(in game.ControlInput, dt float64) (game.EntityState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == Uninitialized {
		return game.EntityState{}, false
	}
	e.stepLocked(in.Clamped(), dt)
	return e.state, true
}

func (e *Engine) stepLocked(in game.ControlInput, dt float64) {
	e.history.Push(Record{Input: in, Before: e.state, BeforeMomentum: e.momentum})
	e.state, e.momentum = game.Step(e.state, e.momentum, e.cfg.Physics, in, dt)
}

// Reconcile compares the prediction with the server's state for the entity
// after it processed input lastProcessed. Divergence beyond tolerance rewinds
// to the server state and replays every unacknowledged input with dt.
func (e *Engine) Reconcile(server game.EntityState, lastProcessed uint32, dt float64) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == Uninitialized {
		return Result{Outcome: OutcomeIgnored}
	}

	res := Result{
		PositionError: e.state.Pos.Sub(server.Pos).Len(),
		RotationError: math.Abs(game.AngleDiff(e.state.Rot, server.Rot)),
	}

	idx, pending := e.history.FirstAfter(lastProcessed)
	if !pending {
		e.adoptLocked(server)
		e.history.Clear()
		res.Outcome = OutcomeAdopted
		return res
	}

	if res.PositionError <= e.cfg.PositionTolerance && res.RotationError <= e.cfg.RotationTolerance {
		e.history.TrimThrough(lastProcessed)
		res.Outcome = OutcomeWithinTolerance
		return res
	}

	e.phase = Reconciling
	replay := e.history.From(idx)
	e.history.Clear()
	e.adoptLocked(server)
	for _, rec := range replay {
		e.stepLocked(rec.Input, dt)
	}
	e.phase = Predicting

	res.Outcome = OutcomeReplayed
	res.Replayed = len(replay)
	e.log.Debug("prediction rewound",
		zap.Uint32("ack", lastProcessed),
		zap.Int("replayed", res.Replayed),
		zap.Float64("pos_err", res.PositionError),
		zap.Float64("rot_err", res.RotationError))
	return res
}

func (e *Engine) State() game.EntityState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Momentum() game.Momentum {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.momentum
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Pending lists the unacknowledged sequence numbers, oldest first.
func (e *Engine) Pending() []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Sequences()
}
