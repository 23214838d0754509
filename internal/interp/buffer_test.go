package interp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LightSpeedArena/internal/game"
)

func TestBufferInterpolatesBetweenSamples(t *testing.T) {
	b := newBuffer(1, 10)
	b.push(Sample{T: 1, State: game.EntityState{Pos: game.Vec2{X: 0}, Rot: 3}})
	b.push(Sample{T: 2, State: game.EntityState{Pos: game.Vec2{X: 10}, Rot: -3}})

	s, ok := b.At(1.5)
	require.True(t, ok)
	assert.InDelta(t, 5, s.State.Pos.X, 1e-12)
	// short arc across ±π, not through zero
	assert.InDelta(t, math.Pi, math.Abs(s.State.Rot), 1e-9)

	early, _ := b.At(0)
	assert.Equal(t, 1.0, early.T)
	late, _ := b.At(9)
	assert.Equal(t, 2.0, late.T)
}

func TestBufferEmpty(t *testing.T) {
	_, ok := newBuffer(1, 10).At(0)
	assert.False(t, ok)
}

func TestTrackerSkipsLocalAndForgetsMissing(t *testing.T) {
	tr := NewTracker(1, 15)
	tr.Push(0, []game.EntitySnapshot{{ID: 1}, {ID: 2}, {ID: 3}}, 2)
	assert.Equal(t, 2, tr.Len())

	tr.Push(0.1, []game.EntitySnapshot{{ID: 1, State: game.EntityState{Pos: game.Vec2{Y: 4}}}}, 2)
	assert.Equal(t, 1, tr.Len())

	states := tr.At(0.05)
	require.Contains(t, states, game.EntityID(1))
	assert.InDelta(t, 2, states[1].Pos.Y, 1e-12)

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
}
