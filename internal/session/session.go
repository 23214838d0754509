// Package session manages the client's connection to the authoritative
// server: handshake, rate-limited input, snapshot dispatch into the
// prediction engine, and reconnection.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"LightSpeedArena/internal/game"
	"LightSpeedArena/internal/interp"
	"LightSpeedArena/internal/prediction"
	"LightSpeedArena/internal/wire"
)

var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrNoBaseline       = errors.New("session: no server state for own entity yet")
	ErrRateLimited      = errors.New("session: input rate limited")
	ErrConnectTimeout   = errors.New("session: connect timed out")
	ErrHandshakeClosed  = errors.New("session: connection closed during handshake")
	ErrSessionClosed    = errors.New("session: closed")
	ErrServerDisconnect = errors.New("session: disconnected by server")
	ErrDecodeFailures   = errors.New("session: too many undecodable messages")
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ConnectionEvent is delivered on every connection state change.
type ConnectionEvent struct {
	State   ConnState
	Attempt int           // reconnect attempt, 1-based
	Delay   time.Duration // wait before that attempt
	Reason  string
	Err     error
}

// WorldMeta accompanies every world update.
type WorldMeta struct {
	Tick        uint64
	TimestampMs int64
	LocalEntity game.EntityID
	Reconcile   prediction.Result
}

// Listener receives session notifications. Callbacks run outside the session
// lock and may call back into the Session. Nil callbacks are skipped.
type Listener struct {
	OnConnectionChange func(ConnectionEvent)
	OnWorldUpdate      func(entities []game.EntitySnapshot, meta WorldMeta)
	OnLocalStateUpdate func(game.EntityState)
}

// Sent describes an input that went out.
type Sent struct {
	Seq   uint32
	State game.EntityState
}

type Session struct {
	cfg      Config
	dialer   Dialer
	listener Listener
	log      *zap.Logger
	now      func() time.Time
	jitter   func() float64

	engine  *prediction.Engine
	remotes *interp.Tracker
	limiter *rate.Limiter
	stats   Stats

	mu             sync.Mutex
	state          ConnState
	transport      Transport
	gen            uint64 // bumped whenever the current transport is abandoned
	handshake      chan error
	clientID       uint32
	entityID       game.EntityID
	offsetMs       int64
	seq            uint32
	lastTick       uint64
	haveTick       bool
	decodeFailures int
	attempt        int
	timer          *time.Timer
	closed         bool // manual or terminal disconnect; no reconnects
}

func New(cfg Config, dialer Dialer, listener Listener, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if dialer == nil {
		dialer = WSDialer{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	jitter := cfg.Jitter
	if jitter == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		var mu sync.Mutex
		jitter = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return rng.Float64()
		}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if cfg.InputHz <= 0 {
		cfg.InputHz = game.InputHz
	}
	snapshotHz := game.BroadcastHz
	return &Session{
		cfg:      cfg,
		dialer:   dialer,
		listener: listener,
		log:      log,
		now:      now,
		jitter:   jitter,
		engine:   prediction.NewEngine(cfg.Prediction, log.Named("prediction")),
		remotes:  interp.NewTracker(1, snapshotHz),
		limiter:  rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/cfg.InputHz)), 1),
	}
}

/* ---------------------------- Notifications ---------------------------- */

type notes []func()

func (s *Session) emit(n notes) {
	for _, fn := range n {
		fn()
	}
}

func (s *Session) stateNote(ev ConnectionEvent) func() {
	return func() {
		if s.listener.OnConnectionChange != nil {
			s.listener.OnConnectionChange(ev)
		}
	}
}

// setStateLocked changes state and queues an event when it actually changed.
func (s *Session) setStateLocked(ev ConnectionEvent) notes {
	if s.state == ev.State && ev.State != StateReconnecting {
		return nil
	}
	s.state = ev.State
	s.log.Info("connection state",
		zap.Stringer("state", ev.State),
		zap.Int("attempt", ev.Attempt),
		zap.String("reason", ev.Reason),
		zap.Error(ev.Err))
	return notes{s.stateNote(ev)}
}

/* ------------------------------ Lifecycle ------------------------------ */

// Connect dials the server and completes the handshake within
// ConnectTimeout. Once connected, unexpected drops are retried per the
// reconnect policy until Disconnect is called.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting || s.state == StateReconnecting {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.closed = false
	s.attempt = 0
	n := s.setStateLocked(ConnectionEvent{State: StateConnecting})
	s.mu.Unlock()
	s.emit(n)

	err := s.open(ctx)
	if err != nil {
		s.mu.Lock()
		var n notes
		if !s.closed {
			n = s.setStateLocked(ConnectionEvent{State: StateDisconnected, Reason: "connect failed", Err: err})
		}
		s.mu.Unlock()
		s.emit(n)
	}
	return err
}

// open performs one dial plus handshake for the current state.
func (s *Session) open(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.gen++
	gen := s.gen
	hs := make(chan error, 1)
	s.handshake = hs
	s.mu.Unlock()

	t, err := s.dialer.Dial(ctx, s.cfg.URL, s.events(gen))
	if err != nil {
		s.abandon(gen)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return fmt.Errorf("session: dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		_ = t.Close()
		return ErrHandshakeClosed
	}
	s.transport = t
	s.mu.Unlock()

	req := &wire.ConnectionRequest{
		PlayerName:      s.cfg.PlayerName,
		ProtocolVersion: s.cfg.ProtocolVersion,
		ShipClass:       s.cfg.ShipClass,
	}
	data, err := wire.Marshal(req)
	if err == nil {
		err = t.Send(data)
	}
	if err != nil {
		s.abandon(gen)
		return fmt.Errorf("session: send connection request: %w", err)
	}

	select {
	case err := <-hs:
		if err != nil {
			s.abandon(gen)
		}
		return err
	case <-ctx.Done():
		s.abandon(gen)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrConnectTimeout
		}
		return ctx.Err()
	}
}

// abandon drops the transport of generation gen if it is still current.
func (s *Session) abandon(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	t := s.transport
	s.transport = nil
	s.handshake = nil
	s.gen++
	s.mu.Unlock()
	if t != nil {
		_ = t.Close()
	}
}

func (s *Session) events(gen uint64) TransportEvents {
	return TransportEvents{
		OnMessage: func(data []byte) { s.handleMessage(gen, data) },
		OnClose:   func(err error) { s.handleClose(gen, err) },
		OnError:   func(err error) { s.handleError(gen, err) },
	}
}

func (s *Session) signalHandshakeLocked(err error) {
	if s.handshake == nil {
		return
	}
	select {
	case s.handshake <- err:
	default:
	}
	s.handshake = nil
}

// Disconnect tears the session down. It never reconnects afterwards, cancels
// a pending reconnect and releases the transport exactly once. Calling it
// again is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed && s.transport == nil && s.timer == nil {
		s.mu.Unlock()
		return
	}
	n := s.teardownLocked(StateDisconnected, "client disconnect", nil)
	s.mu.Unlock()
	s.emit(n)
}

// teardownLocked is the single terminal exit: no reconnect follows.
func (s *Session) teardownLocked(state ConnState, reason string, cause error) notes {
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	t := s.transport
	s.transport = nil
	s.gen++
	s.signalHandshakeLocked(orDefault(cause, ErrSessionClosed))
	s.resetWorldLocked()

	var n notes
	if t != nil {
		n = append(n, func() { _ = t.Close() })
	}
	return append(n, s.setStateLocked(ConnectionEvent{State: state, Reason: reason, Err: cause})...)
}

func (s *Session) resetWorldLocked() {
	s.engine.Stop()
	s.remotes.Reset()
	s.haveTick = false
	s.lastTick = 0
	s.decodeFailures = 0
}

func orDefault(err, def error) error {
	if err != nil {
		return err
	}
	return def
}

/* ------------------------------ Reconnect ------------------------------ */

func (s *Session) scheduleReconnectLocked(cause error) notes {
	if s.closed {
		return nil
	}
	policy := s.cfg.Reconnect
	if s.attempt >= policy.MaxRetries {
		s.closed = true
		s.resetWorldLocked()
		return s.setStateLocked(ConnectionEvent{
			State:   StateFailed,
			Attempt: s.attempt,
			Reason:  "reconnect attempts exhausted",
			Err:     cause,
		})
	}
	delay := policy.Delay(s.attempt, s.jitter())
	s.attempt++
	attempt := s.attempt
	s.timer = time.AfterFunc(delay, func() { s.reconnect(attempt) })
	return s.setStateLocked(ConnectionEvent{
		State:   StateReconnecting,
		Attempt: attempt,
		Delay:   delay,
		Err:     cause,
	})
}

func (s *Session) reconnect(attempt int) {
	s.mu.Lock()
	if s.closed || s.state != StateReconnecting || s.attempt != attempt {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.stats.ReconnectAttempts.Add(1)
	err := s.open(context.Background())
	if err == nil {
		return
	}
	s.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))

	s.mu.Lock()
	var n notes
	if s.state == StateReconnecting {
		n = s.scheduleReconnectLocked(err)
	}
	s.mu.Unlock()
	s.emit(n)
}

/* ------------------------------- Inbound ------------------------------- */

func (s *Session) handleClose(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	t := s.transport
	s.transport = nil
	s.gen++

	var n notes
	switch s.state {
	case StateConnected:
		s.log.Warn("connection lost", zap.Error(err))
		s.resetWorldLocked()
		n = s.scheduleReconnectLocked(err)
	default:
		s.signalHandshakeLocked(fmt.Errorf("%w: %w", ErrHandshakeClosed, err))
	}
	s.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	s.emit(n)
}

func (s *Session) handleError(gen uint64, err error) {
	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		s.log.Warn("transport error", zap.Error(err))
	}
}

func (s *Session) handleMessage(gen uint64, data []byte) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	var n notes
	msg, err := wire.Unmarshal(data)
	if err != nil {
		s.decodeFailures++
		s.stats.DecodeFailures.Add(1)
		s.log.Warn("undecodable message",
			zap.Int("consecutive", s.decodeFailures),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		if s.decodeFailures > s.cfg.MaxDecodeFailures {
			n = s.teardownLocked(StateDisconnected, "too many decode failures", fmt.Errorf("%w: %w", ErrDecodeFailures, err))
		}
		s.mu.Unlock()
		s.emit(n)
		return
	}
	s.decodeFailures = 0

	switch m := msg.(type) {
	case *wire.ConnectionAccepted:
		n = s.acceptLocked(m)
	case *wire.WorldSnapshot:
		n = s.applySnapshotLocked(m)
	case *wire.Disconnect:
		n = s.teardownLocked(StateDisconnected, m.Reason, ErrServerDisconnect)
	default:
		s.log.Debug("ignoring client-bound message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
	s.mu.Unlock()
	s.emit(n)
}

func (s *Session) acceptLocked(m *wire.ConnectionAccepted) notes {
	if s.handshake == nil {
		s.log.Debug("unexpected connection accepted")
		return nil
	}
	s.clientID = m.ClientID
	s.entityID = game.EntityID(m.EntityID)
	s.offsetMs = m.ServerTimeMs - s.now().UnixMilli()
	s.attempt = 0
	s.resetWorldLocked()
	s.signalHandshakeLocked(nil)
	s.log.Info("handshake accepted",
		zap.Uint32("client", m.ClientID),
		zap.Uint32("entity", m.EntityID),
		zap.Int64("offset_ms", s.offsetMs))
	return s.setStateLocked(ConnectionEvent{State: StateConnected})
}

func (s *Session) applySnapshotLocked(m *wire.WorldSnapshot) notes {
	if s.state != StateConnected {
		return nil
	}
	if s.haveTick && m.Tick <= s.lastTick {
		s.stats.SnapshotsStale.Add(1)
		return nil
	}
	s.haveTick = true
	s.lastTick = m.Tick
	s.stats.SnapshotsApplied.Add(1)

	snap := m.ToGame()
	meta := WorldMeta{Tick: snap.Tick, TimestampMs: snap.TimestampMs, LocalEntity: s.entityID}

	var n notes
	if rec, ok := snap.Find(s.entityID); ok {
		if s.engine.Phase() == prediction.Uninitialized {
			s.engine.Reset(rec.State)
			meta.Reconcile = prediction.Result{Outcome: prediction.OutcomeAdopted}
		} else {
			meta.Reconcile = s.engine.Reconcile(rec.State, rec.LastProcessedSeq, s.cfg.inputDt())
		}
		s.stats.recordReconcile(meta.Reconcile)
		local := s.engine.State()
		if s.listener.OnLocalStateUpdate != nil {
			n = append(n, func() { s.listener.OnLocalStateUpdate(local) })
		}
	}
	s.remotes.Push(float64(snap.TimestampMs)/1000, snap.Entities, s.entityID)

	if s.listener.OnWorldUpdate != nil {
		entities := snap.Entities
		n = append(n, func() { s.listener.OnWorldUpdate(entities, meta) })
	}
	return n
}

/* ------------------------------- Outbound ------------------------------ */

// SendInput stamps in with the next sequence number and server-aligned
// timestamp, predicts it locally and sends it. Calls arriving faster than
// InputHz are dropped with ErrRateLimited; nothing is queued.
func (s *Session) SendInput(in game.ControlInput) (Sent, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return Sent{}, ErrNotConnected
	}
	if s.engine.Phase() == prediction.Uninitialized {
		s.mu.Unlock()
		return Sent{}, ErrNoBaseline
	}
	now := s.now()
	if !s.limiter.AllowN(now, 1) {
		s.mu.Unlock()
		s.stats.InputsRateLimited.Add(1)
		return Sent{}, ErrRateLimited
	}

	s.seq++
	in = in.Clamped()
	in.Seq = s.seq
	in.TimestampMs = now.UnixMilli() + s.offsetMs
	state, _ := s.engine.ApplyInput(in, s.cfg.inputDt())

	data, err := wire.Marshal(wire.InputFromGame(s.clientID, in))
	if err == nil {
		err = s.transport.Send(data)
	}
	s.mu.Unlock()

	sent := Sent{Seq: in.Seq, State: state}
	if err != nil {
		// the transport reports the failure through OnClose as well
		s.log.Warn("send input failed", zap.Uint32("seq", in.Seq), zap.Error(err))
		return sent, fmt.Errorf("session: send input %d: %w", in.Seq, err)
	}
	s.stats.InputsSent.Add(1)
	if s.listener.OnLocalStateUpdate != nil {
		s.listener.OnLocalStateUpdate(state)
	}
	return sent, nil
}

/* ------------------------------- Queries ------------------------------- */

func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the client and entity IDs assigned by the last handshake.
func (s *Session) Identity() (uint32, game.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID, s.entityID
}

// ServerTime estimates the server clock in Unix milliseconds.
func (s *Session) ServerTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().UnixMilli() + s.offsetMs
}

// LocalState returns the predicted state of the own entity.
func (s *Session) LocalState() game.EntityState { return s.engine.State() }

// Pending lists unacknowledged input sequence numbers.
func (s *Session) Pending() []uint32 { return s.engine.Pending() }

// RemoteStates samples every remote entity InterpDelay behind the estimated
// server clock.
func (s *Session) RemoteStates() map[game.EntityID]game.EntityState {
	t := float64(s.ServerTime()-s.cfg.InterpDelay.Milliseconds()) / 1000
	return s.remotes.At(t)
}

func (s *Session) Stats() *Stats { return &s.stats }
