package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LightSpeedArena/internal/game"
)

func TestMetricsSnapshot(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	m.inputVerdict(game.InputAccepted)
	m.inputVerdict(game.InputAccepted)
	m.inputVerdict(game.InputStale)
	m.inputVerdict(game.InputQueueFull)
	m.inputVerdict(game.InputUnknownClient)
	m.snapshotQueued(true)
	m.snapshotQueued(false)
	m.tick(game.TickReport{Tick: 1, Parallel: true, Contacts: make([]game.Contact, 2)}, 2*time.Millisecond)
	m.tick(game.TickReport{Tick: 2}, 4*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap["inputs_accepted"])
	assert.Equal(t, int64(1), snap["inputs_stale"])
	assert.Equal(t, int64(1), snap["inputs_queue_full"])
	assert.Equal(t, int64(1), snap["snapshots_sent"])
	assert.Equal(t, int64(1), snap["snapshots_dropped"])
	assert.Equal(t, int64(2), snap["collisions"])
	assert.Equal(t, int64(2), snap["tick_count"])
	assert.Equal(t, int64(1), snap["parallel_ticks"])
	assert.InDelta(t, 3.0, snap["avg_tick_ms"], 1e-9)
}

func TestClientQueueDropsWhenFull(t *testing.T) {
	c := newClient(1, 2)
	assert.True(t, c.enqueue([]byte{1}))
	assert.True(t, c.enqueue([]byte{2}))
	assert.False(t, c.enqueue([]byte{3}))

	c.kick("bye")
	c.kick("again")
	assert.False(t, c.enqueue([]byte{4}))
	select {
	case <-c.done:
	default:
		t.Fatal("kick must close the client")
	}
	assert.Len(t, c.final, 1)
}
