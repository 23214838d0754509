package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LightSpeedArena/internal/game"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, game.SimHz, cfg.Sim.Hz)
	assert.Equal(t, game.BroadcastHz, cfg.Sim.BroadcastHz)
	assert.Equal(t, 5*time.Second, cfg.Net.HandshakeTimeout)
	assert.Equal(t, uint64(2), cfg.broadcastEvery())
	assert.Equal(t, []string{"hauler", "interceptor"}, cfg.Ships.Names())
	assert.Equal(t, game.DefaultCollisionParams(), cfg.Collision)
}

func TestLoadConfig_FileEnvAndOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"sim": { "hz": 60 },
		"net": { "handshakeTimeout": "2s" },
		"collision": { "restitution": 0.5 },
		"ships": {
			"hauler": { "mass": 50000 },
			"scout": { "forwardAccel": 90, "collisionRadius": 8 }
		}
	}`)
	t.Setenv("LSA_ROOM_MAXPLAYERS", "4")

	lightSpeed := 300.0
	drones := 3
	cfg, err := LoadConfig(path, Overrides{LightSpeed: &lightSpeed, Drones: &drones})
	require.NoError(t, err)

	assert.Equal(t, 60.0, cfg.Sim.Hz)
	assert.Equal(t, uint64(4), cfg.broadcastEvery())
	assert.Equal(t, 2*time.Second, cfg.Net.HandshakeTimeout)
	assert.Equal(t, 0.5, cfg.Collision.Restitution)
	assert.Equal(t, 4, cfg.Room.MaxPlayers)
	assert.Equal(t, 3, cfg.Room.Drones)

	hauler := cfg.Ships["hauler"]
	assert.Equal(t, 50000.0, hauler.Mass)
	assert.Equal(t, game.DefaultShipClasses()["hauler"].ForwardAccel, hauler.ForwardAccel, "unset fields keep the built-in value")

	scout, ok := cfg.Ships["scout"]
	require.True(t, ok)
	assert.Equal(t, 90.0, scout.ForwardAccel)
	assert.Equal(t, 8.0, scout.CollisionRadius)
	assert.Equal(t, game.DefaultPhysicsConfig().Mass, scout.Mass)

	for _, name := range cfg.Ships.Names() {
		assert.Equal(t, 300.0, cfg.Ships[name].LightSpeed, name)
	}

	rc := cfg.RoomConfig()
	assert.Equal(t, 4, rc.MaxPlayers)
	assert.InDelta(t, game.InputDt, rc.InputDt, 1e-12)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"massless class", `{"ships": {"ghost": {"mass": 0}}}`},
		{"broadcast faster than sim", `{"sim": {"hz": 10, "broadcastHz": 20}}`},
		{"unknown default class", `{"room": {"defaultClass": "battleship"}}`},
		{"zero cleanup interval", `{"cleanupInterval": "0s"}`},
		{"negative cleanup interval", `{"cleanupInterval": "-5s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body), Overrides{})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_RejectsCleanupIntervalFromEnv(t *testing.T) {
	t.Setenv("LSA_CLEANUPINTERVAL", "0s")
	_, err := LoadConfig("", Overrides{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/arena.json", Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
