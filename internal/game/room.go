package game

import (
	"errors"
	"math"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRoomFull     = errors.New("room full")
	ErrUnknownClass = errors.New("unknown ship class")
)

// RoomConfig tunes one authoritative simulation.
type RoomConfig struct {
	InputDt           float64 // step applied per client input; must match the client
	MaxInputsPerTick  int
	InputQueueSize    int
	ParallelThreshold int // integrate entities concurrently at or above this count
	MaxPlayers        int
	Collision         CollisionParams
	Ships             ConfigProvider
	DefaultClass      string
}

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		InputDt:           InputDt,
		MaxInputsPerTick:  4,
		InputQueueSize:    64,
		ParallelThreshold: 64,
		MaxPlayers:        RoomMaxPlayer,
		Collision:         DefaultCollisionParams(),
		Ships:             DefaultShipClasses(),
		DefaultClass:      DefaultShipKey,
	}
}

type Player struct {
	ClientID uint32
	Name     string
	Ship     EntityID
	Class    string
}

type Room struct {
	ID          string
	CurrentTick uint64
	Now         float64
	World       *World
	Players     map[uint32]*Player
	Mu          sync.Mutex

	cfg        RoomConfig
	nextClient uint32
	spawned    int
	log        *zap.Logger
}

func NewRoom(id string, cfg RoomConfig, log *zap.Logger) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Ships == nil {
		cfg.Ships = DefaultShipClasses()
	}
	if cfg.DefaultClass == "" {
		cfg.DefaultClass = DefaultShipKey
	}
	if cfg.InputDt <= 0 {
		cfg.InputDt = InputDt
	}
	if cfg.MaxInputsPerTick <= 0 {
		cfg.MaxInputsPerTick = 1
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 1
	}
	cfg.Collision = SanitizeCollisionParams(cfg.Collision)
	return &Room{
		ID:      id,
		World:   newWorld(),
		Players: map[uint32]*Player{},
		cfg:     cfg,
		log:     log.With(zap.String("room", id)),
	}
}

// InputVerdict reports what EnqueueInput did with an input.
type InputVerdict int

const (
	InputAccepted InputVerdict = iota
	InputStale
	InputQueueFull
	InputUnknownClient
)

func (v InputVerdict) String() string {
	switch v {
	case InputAccepted:
		return "accepted"
	case InputStale:
		return "stale"
	case InputQueueFull:
		return "queue_full"
	case InputUnknownClient:
		return "unknown_client"
	}
	return "unknown"
}

// TickReport summarizes one Tick for metrics and logging.
type TickReport struct {
	Tick          uint64
	Entities      int
	InputsApplied int
	Parallel      bool
	Contacts      []Contact
}

// Join spawns a ship of the given class (empty means the default) and
// registers a new client for it.
func (r *Room) Join(name, class string) (*Player, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.cfg.MaxPlayers > 0 && len(r.Players) >= r.cfg.MaxPlayers {
		return nil, ErrRoomFull
	}
	class = strings.TrimSpace(class)
	if class == "" {
		class = r.cfg.DefaultClass
	}
	cfg, ok := r.cfg.Ships.PhysicsConfig(class)
	if !ok {
		return nil, ErrUnknownClass
	}

	r.nextClient++
	p := &Player{
		ClientID: r.nextClient,
		Name:     strings.TrimSpace(name),
		Class:    class,
	}
	p.Ship = r.spawnLocked(cfg, class)
	r.World.SetComponent(p.Ship, CompOwner, &OwnerComponent{ClientID: p.ClientID})
	r.World.SetComponent(p.Ship, CompControl, &ControlComponent{})
	r.Players[p.ClientID] = p

	r.log.Info("player joined",
		zap.Uint32("client", p.ClientID),
		zap.Uint32("entity", uint32(p.Ship)),
		zap.String("name", p.Name),
		zap.String("class", class))
	return p, nil
}

// SpawnDrone adds an unowned ship that coasts under flight assist.
func (r *Room) SpawnDrone(class string, state EntityState) (EntityID, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if class == "" {
		class = r.cfg.DefaultClass
	}
	cfg, ok := r.cfg.Ships.PhysicsConfig(class)
	if !ok {
		return 0, ErrUnknownClass
	}
	id := r.World.NewEntity()
	r.World.SetComponent(id, CompBody, &BodyComponent{
		State:    state,
		Momentum: MomentumFromVelocity(state.Vel, state.AngVel, cfg),
	})
	r.World.SetComponent(id, CompShip, &ShipComponent{Class: class, Config: cfg, Health: cfg.MaxHealth})
	return id, nil
}

func (r *Room) spawnLocked(cfg PhysicsConfig, class string) EntityID {
	// golden-angle ring keeps successive spawns apart
	angle := float64(r.spawned) * 2.399963229728653
	r.spawned++
	pos := Vec2{X: math.Cos(angle), Y: math.Sin(angle)}.Scale(SpawnRadius)
	// face the origin: forward is local +Y, i.e. world angle rot+π/2
	rot := NormalizeAngle(angle + math.Pi/2)

	id := r.World.NewEntity()
	r.World.SetComponent(id, CompBody, &BodyComponent{State: EntityState{Pos: pos, Rot: rot}})
	r.World.SetComponent(id, CompShip, &ShipComponent{Class: class, Config: cfg, Health: cfg.MaxHealth})
	return id
}

// Leave removes a client and every entity it owns.
func (r *Room) Leave(clientID uint32) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if _, ok := r.Players[clientID]; !ok {
		return false
	}
	removed := 0
	r.World.ForEach([]ComponentKey{CompOwner}, func(id EntityID) {
		if r.World.Owner(id).ClientID == clientID {
			r.World.RemoveEntity(id)
			removed++
		}
	})
	delete(r.Players, clientID)
	r.log.Info("player left", zap.Uint32("client", clientID), zap.Int("entities", removed))
	return true
}

func (r *Room) PlayerCount() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return len(r.Players)
}

// EnqueueInput buffers an input for the next Tick. Inputs whose sequence
// number is not newer than the last one queued for the client are dropped.
func (r *Room) EnqueueInput(clientID uint32, in ControlInput) InputVerdict {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p, ok := r.Players[clientID]
	if !ok {
		return InputUnknownClient
	}
	ctrl := r.World.Control(p.Ship)
	if ctrl == nil {
		return InputUnknownClient
	}
	if in.Seq <= ctrl.LastQueuedSeq {
		return InputStale
	}
	if len(ctrl.Queue) >= r.cfg.InputQueueSize {
		return InputQueueFull
	}
	ctrl.Queue = append(ctrl.Queue, in.Clamped())
	ctrl.LastQueuedSeq = in.Seq
	return InputAccepted
}

type stepJob struct {
	id      EntityID
	body    *BodyComponent
	ship    *ShipComponent
	ctrl    *ControlComponent
	batch   []ControlInput
	applied int
}

// Tick advances the room by dt. Owned ships advance one InputDt step per
// queued input (up to MaxInputsPerTick) so the server replays exactly what
// the client predicted; unowned ships advance dt with idle input.
func (r *Room) Tick(dt float64) TickReport {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	r.CurrentTick++
	r.Now += dt

	ids := r.World.Query([]ComponentKey{CompBody, CompShip})
	jobs := make([]*stepJob, 0, len(ids))
	for _, id := range ids {
		job := &stepJob{id: id, body: r.World.Body(id), ship: r.World.ShipData(id), ctrl: r.World.Control(id)}
		if job.ctrl != nil {
			n := len(job.ctrl.Queue)
			if n > r.cfg.MaxInputsPerTick {
				n = r.cfg.MaxInputsPerTick
			}
			job.batch = job.ctrl.Queue[:n:n]
			job.ctrl.Queue = append([]ControlInput(nil), job.ctrl.Queue[n:]...)
		}
		jobs = append(jobs, job)
	}

	report := TickReport{Tick: r.CurrentTick, Entities: len(jobs)}
	if r.cfg.ParallelThreshold > 0 && len(jobs) >= r.cfg.ParallelThreshold {
		report.Parallel = true
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for _, job := range jobs {
			g.Go(func() error {
				r.stepEntity(job, dt)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, job := range jobs {
			r.stepEntity(job, dt)
		}
	}

	bodies := make([]*Body, len(jobs))
	for i, job := range jobs {
		report.InputsApplied += job.applied
		bodies[i] = &Body{
			ID:       job.id,
			State:    job.body.State,
			Momentum: job.body.Momentum,
			Mass:     job.ship.Config.Mass,
			Radius:   job.ship.Config.CollisionRadius,
			Health:   job.ship.Health,
		}
	}
	report.Contacts = ResolveCollisions(bodies, r.cfg.Collision)
	for i, job := range jobs {
		job.body.State = bodies[i].State
		job.body.Momentum = bodies[i].Momentum
		job.ship.Health = bodies[i].Health
	}
	for _, c := range report.Contacts {
		r.log.Debug("collision",
			zap.Uint64("tick", r.CurrentTick),
			zap.Uint32("a", uint32(c.A)),
			zap.Uint32("b", uint32(c.B)),
			zap.Float64("impulse", c.Impulse),
			zap.Float64("damage", c.Damage))
	}
	return report
}

// stepEntity only touches the job's own components, which makes it safe to
// run concurrently for distinct entities.
func (r *Room) stepEntity(job *stepJob, dt float64) {
	cfg := job.ship.Config
	b := job.body
	if job.ctrl == nil {
		idle := ControlInput{FlightAssist: true}
		b.State, b.Momentum = Step(b.State, b.Momentum, cfg, idle, dt)
		return
	}
	// owned ships advance only on their client's inputs so the server replays
	// exactly the steps the client predicted; no queued input means no step
	for _, in := range job.batch {
		if job.ship.Health <= 0 {
			in = ControlInput{Seq: in.Seq, FlightAssist: in.FlightAssist}
		}
		b.State, b.Momentum = Step(b.State, b.Momentum, cfg, in, r.cfg.InputDt)
		job.ctrl.Last = in
		job.ctrl.LastProcessedSeq = in.Seq
		job.applied++
	}
}

// Snapshot copies the current world into a WorldSnapshot.
func (r *Room) Snapshot(timestampMs int64) WorldSnapshot {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	snap := WorldSnapshot{Tick: r.CurrentTick, TimestampMs: timestampMs}
	r.World.ForEach([]ComponentKey{CompBody, CompShip}, func(id EntityID) {
		body := r.World.Body(id)
		ship := r.World.ShipData(id)
		rec := EntitySnapshot{ID: id, State: body.State, Health: ship.Health}
		if ctrl := r.World.Control(id); ctrl != nil {
			last := ctrl.Last
			fa := last.FlightAssist
			rec.LastProcessedSeq = ctrl.LastProcessedSeq
			rec.Control = &last
			rec.FlightAssist = &fa
		}
		snap.Entities = append(snap.Entities, rec)
	})
	return snap
}
