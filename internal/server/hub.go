package server

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"LightSpeedArena/internal/game"
	"LightSpeedArena/internal/wire"
)

// client is the send side of one websocket session. Snapshots are queued
// without blocking the tick loop; a full queue drops the snapshot.
type client struct {
	id        uint32
	send      chan []byte
	final     chan []byte // last message written before the socket closes
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id uint32, queue int) *client {
	if queue <= 0 {
		queue = 1
	}
	return &client{
		id:    id,
		send:  make(chan []byte, queue),
		final: make(chan []byte, 1),
		done:  make(chan struct{}),
	}
}

func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// kick schedules a Disconnect and stops the write pump after it.
func (c *client) kick(reason string) {
	if data, err := wire.Marshal(&wire.Disconnect{ClientID: c.id, Reason: reason}); err == nil {
		select {
		case c.final <- data:
		default:
		}
	}
	c.close()
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Arena runs one Room: its tick loop, snapshot broadcast and attached clients.
type Arena struct {
	Room *game.Room

	cfg     AppConfig
	metrics *Metrics
	log     *zap.Logger
	cancel  context.CancelFunc
	stopped chan struct{}

	mu      sync.Mutex
	clients map[uint32]*client
}

func newArena(ctx context.Context, id string, cfg AppConfig, metrics *Metrics, log *zap.Logger) *Arena {
	ctx, cancel := context.WithCancel(ctx)
	a := &Arena{
		Room:    game.NewRoom(id, cfg.RoomConfig(), log),
		cfg:     cfg,
		metrics: metrics,
		log:     log.With(zap.String("room", id)),
		cancel:  cancel,
		stopped: make(chan struct{}),
		clients: map[uint32]*client{},
	}
	a.spawnDrones(cfg.Room.Drones)
	go a.Run(ctx)
	return a
}

// spawnDrones places n unowned ships on an inner ring, drifting tangentially.
func (a *Arena) spawnDrones(n int) {
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		radial := game.Vec2{X: math.Cos(angle), Y: math.Sin(angle)}
		state := game.EntityState{
			Pos: radial.Scale(game.SpawnRadius / 2),
			Rot: game.NormalizeAngle(angle),
			Vel: game.Vec2{X: -radial.Y, Y: radial.X}.Scale(10),
		}
		if _, err := a.Room.SpawnDrone("", state); err != nil {
			a.log.Warn("drone spawn failed", zap.Error(err))
			return
		}
	}
}

// Run ticks the room at the sim rate and broadcasts a snapshot every
// broadcastEvery ticks until ctx is done.
func (a *Arena) Run(ctx context.Context) {
	defer close(a.stopped)
	dt := 1 / a.cfg.Sim.Hz
	every := a.cfg.broadcastEvery()
	ticker := time.NewTicker(time.Duration(float64(time.Second) * dt))
	defer ticker.Stop()

	a.log.Info("room loop started", zap.Float64("hz", a.cfg.Sim.Hz), zap.Uint64("broadcast_every", every))
	for {
		select {
		case <-ctx.Done():
			a.log.Info("room loop stopped")
			return
		case <-ticker.C:
			start := time.Now()
			rep := a.Room.Tick(dt)
			a.metrics.tick(rep, time.Since(start))
			if rep.Tick%every == 0 {
				a.broadcast()
			}
		}
	}
}

func (a *Arena) broadcast() {
	snap := a.Room.Snapshot(time.Now().UnixMilli())
	data, err := wire.Marshal(wire.SnapshotFromGame(snap))
	if err != nil {
		a.log.Error("snapshot encode failed", zap.Error(err))
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.clients {
		a.metrics.snapshotQueued(c.enqueue(data))
	}
}

func (a *Arena) attach(c *client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clients[c.id] = c
}

func (a *Arena) detach(c *client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clients[c.id] == c {
		delete(a.clients, c.id)
	}
}

func (a *Arena) ClientCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clients)
}

func (a *Arena) stop() {
	a.cancel()
	<-a.stopped
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.clients {
		c.kick("server shutting down")
	}
}

// Hub owns the arenas, one per room ID.
type Hub struct {
	Arenas  map[string]*Arena
	Mu      sync.Mutex
	Metrics *Metrics

	ctx context.Context
	cfg AppConfig
	log *zap.Logger
}

func NewHub(ctx context.Context, cfg AppConfig, metrics *Metrics, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		Arenas:  map[string]*Arena{},
		Metrics: metrics,
		ctx:     ctx,
		cfg:     cfg,
		log:     log,
	}
}

// GetArena returns the arena for id, starting it on first use.
func (h *Hub) GetArena(id string) *Arena {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return h.arenaLocked(id)
}

func (h *Hub) arenaLocked(id string) *Arena {
	a, ok := h.Arenas[id]
	if !ok {
		a = newArena(h.ctx, id, h.cfg, h.Metrics, h.log)
		h.Arenas[id] = a
	}
	return a
}

// Join spawns a ship in room id and attaches a client for it. Holding the
// hub lock keeps cleanup from removing the arena in between.
func (h *Hub) Join(id, name, class string) (*Arena, *game.Player, *client, error) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	a := h.arenaLocked(id)
	p, err := a.Room.Join(name, class)
	if err != nil {
		return a, nil, nil, err
	}
	c := newClient(p.ClientID, h.cfg.Net.SendQueue)
	a.attach(c)
	return a, p, c, nil
}

// CleanupEmptyRooms stops arenas with no players or attached clients.
func (h *Hub) CleanupEmptyRooms() int {
	h.Mu.Lock()
	var empty []*Arena
	for id, a := range h.Arenas {
		if a.Room.PlayerCount() == 0 && a.ClientCount() == 0 {
			empty = append(empty, a)
			delete(h.Arenas, id)
		}
	}
	h.Mu.Unlock()

	for _, a := range empty {
		a.stop()
		h.log.Info("room removed", zap.String("room", a.Room.ID))
	}
	return len(empty)
}

// Shutdown stops every arena and kicks its clients.
func (h *Hub) Shutdown() {
	h.Mu.Lock()
	arenas := make([]*Arena, 0, len(h.Arenas))
	for id, a := range h.Arenas {
		arenas = append(arenas, a)
		delete(h.Arenas, id)
	}
	h.Mu.Unlock()
	for _, a := range arenas {
		a.stop()
	}
}

type roomStatus struct {
	ID       string `json:"id"`
	Tick     uint64 `json:"tick"`
	Players  int    `json:"players"`
	Clients  int    `json:"clients"`
	Entities int    `json:"entities"`
}

func (h *Hub) status() []roomStatus {
	h.Mu.Lock()
	arenas := make([]*Arena, 0, len(h.Arenas))
	for _, a := range h.Arenas {
		arenas = append(arenas, a)
	}
	h.Mu.Unlock()

	out := make([]roomStatus, 0, len(arenas))
	for _, a := range arenas {
		a.Room.Mu.Lock()
		st := roomStatus{
			ID:       a.Room.ID,
			Tick:     a.Room.CurrentTick,
			Players:  len(a.Room.Players),
			Entities: len(a.Room.World.Query([]game.ComponentKey{game.CompBody})),
		}
		a.Room.Mu.Unlock()
		st.Clients = a.ClientCount()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
