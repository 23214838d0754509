// Package interp smooths remote entities between server snapshots.
package interp

import (
	"sync"

	"LightSpeedArena/internal/game"
)

type Sample struct {
	T     float64 // server time, seconds
	State game.EntityState
}

// Buffer is a ring of timestamped samples for one entity.
type Buffer struct {
	buf   []Sample
	head  int
	size  int
	limit int
}

func newBuffer(seconds, hz float64) *Buffer {
	n := int(seconds*hz) + 4
	return &Buffer{buf: make([]Sample, n), limit: n}
}

func (b *Buffer) push(s Sample) {
	b.buf[b.head] = s
	b.head = (b.head + 1) % b.limit
	if b.size < b.limit {
		b.size++
	}
}

// At samples the buffer at time t. Outside the buffered window it returns
// the nearest sample; inside it interpolates position, velocity and
// rotation (along the short arc).
func (b *Buffer) At(t float64) (Sample, bool) {
	if b.size == 0 {
		return Sample{}, false
	}
	bestAfter := -1
	bestBefore := -1
	var sAfter, sBefore Sample
	for i := 0; i < b.size; i++ {
		idx := (b.head - 1 - i + b.limit) % b.limit
		s := b.buf[idx]
		if s.T >= t {
			sAfter = s
			bestAfter = idx
		}
		if s.T <= t {
			sBefore = s
			bestBefore = idx
			break
		}
	}
	if bestBefore == -1 {
		earliest := b.buf[(b.head-b.size+b.limit)%b.limit]
		return earliest, true
	}
	if bestAfter == -1 {
		latest := b.buf[(b.head-1+b.limit)%b.limit]
		return latest, true
	}
	a, c := sBefore, sAfter
	if c.T == a.T {
		return a, true
	}
	alpha := (t - a.T) / (c.T - a.T)
	lerp := func(x, y float64) float64 { return x + alpha*(y-x) }
	lerpVec := func(x, y game.Vec2) game.Vec2 { return game.Vec2{X: lerp(x.X, y.X), Y: lerp(x.Y, y.Y)} }
	return Sample{
		T: t,
		State: game.EntityState{
			Pos:    lerpVec(a.State.Pos, c.State.Pos),
			Rot:    game.NormalizeAngle(a.State.Rot + alpha*game.AngleDiff(c.State.Rot, a.State.Rot)),
			Vel:    lerpVec(a.State.Vel, c.State.Vel),
			AngVel: lerp(a.State.AngVel, c.State.AngVel),
		},
	}, true
}

// Tracker keeps one Buffer per remote entity.
type Tracker struct {
	mu      sync.RWMutex
	seconds float64
	hz      float64
	buffers map[game.EntityID]*Buffer
}

// NewTracker keeps about seconds of history for snapshots arriving at hz.
func NewTracker(seconds, hz float64) *Tracker {
	return &Tracker{seconds: seconds, hz: hz, buffers: map[game.EntityID]*Buffer{}}
}

// Push records snapshot entities at time t, skipping exclude (the locally
// predicted entity). Entities missing from the snapshot are forgotten.
func (tr *Tracker) Push(t float64, entities []game.EntitySnapshot, exclude game.EntityID) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	seen := make(map[game.EntityID]struct{}, len(entities))
	for _, e := range entities {
		if e.ID == exclude {
			continue
		}
		seen[e.ID] = struct{}{}
		b, ok := tr.buffers[e.ID]
		if !ok {
			b = newBuffer(tr.seconds, tr.hz)
			tr.buffers[e.ID] = b
		}
		b.push(Sample{T: t, State: e.State})
	}
	for id := range tr.buffers {
		if _, ok := seen[id]; !ok {
			delete(tr.buffers, id)
		}
	}
}

// At returns every tracked entity sampled at t.
func (tr *Tracker) At(t float64) map[game.EntityID]game.EntityState {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make(map[game.EntityID]game.EntityState, len(tr.buffers))
	for id, b := range tr.buffers {
		if s, ok := b.At(t); ok {
			out[id] = s.State
		}
	}
	return out
}

func (tr *Tracker) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.buffers = map[game.EntityID]*Buffer{}
}

func (tr *Tracker) Len() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.buffers)
}
