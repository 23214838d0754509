package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"LightSpeedArena/internal/game"
)

type SimConfig struct {
	Hz          float64 `mapstructure:"hz"`
	BroadcastHz float64 `mapstructure:"broadcastHz"`
	InputHz     float64 `mapstructure:"inputHz"`
}

type RoomSettings struct {
	MaxPlayers        int    `mapstructure:"maxPlayers"`
	MaxInputsPerTick  int    `mapstructure:"maxInputsPerTick"`
	InputQueueSize    int    `mapstructure:"inputQueueSize"`
	ParallelThreshold int    `mapstructure:"parallelThreshold"`
	Drones            int    `mapstructure:"drones"`
	DefaultClass      string `mapstructure:"defaultClass"`
}

type NetConfig struct {
	HandshakeTimeout  time.Duration `mapstructure:"handshakeTimeout"`
	WriteWait         time.Duration `mapstructure:"writeWait"`
	SendQueue         int           `mapstructure:"sendQueue"`
	ReadLimit         int64         `mapstructure:"readLimit"`
	MaxDecodeFailures int           `mapstructure:"maxDecodeFailures"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// AppConfig is the full server configuration.
type AppConfig struct {
	Addr            string               `mapstructure:"addr"`
	CleanupInterval time.Duration        `mapstructure:"cleanupInterval"`
	Log             LogConfig            `mapstructure:"log"`
	Sim             SimConfig            `mapstructure:"sim"`
	Room            RoomSettings         `mapstructure:"room"`
	Net             NetConfig            `mapstructure:"net"`
	Collision       game.CollisionParams `mapstructure:"collision"`
	Ships           game.ShipClasses     `mapstructure:"-"`
}

func DefaultAppConfig() AppConfig {
	room := game.DefaultRoomConfig()
	return AppConfig{
		Addr:            ":8080",
		CleanupInterval: 60 * time.Second,
		Log:             LogConfig{Level: "info", Console: true},
		Sim: SimConfig{
			Hz:          game.SimHz,
			BroadcastHz: game.BroadcastHz,
			InputHz:     game.InputHz,
		},
		Room: RoomSettings{
			MaxPlayers:        room.MaxPlayers,
			MaxInputsPerTick:  room.MaxInputsPerTick,
			InputQueueSize:    room.InputQueueSize,
			ParallelThreshold: room.ParallelThreshold,
			DefaultClass:      room.DefaultClass,
		},
		Net: NetConfig{
			HandshakeTimeout:  5 * time.Second,
			WriteWait:         5 * time.Second,
			SendQueue:         64,
			ReadLimit:         1 << 20,
			MaxDecodeFailures: 5,
		},
		Collision: game.DefaultCollisionParams(),
		Ships:     game.DefaultShipClasses(),
	}
}

// Overrides are optional command-line values applied after file and
// environment. Nil means unset.
type Overrides struct {
	SimHz        *float64
	BroadcastHz  *float64
	LightSpeed   *float64
	Restitution  *float64
	DamageFactor *float64
	MaxPlayers   *int
	Drones       *int
}

func (o Overrides) apply(cfg AppConfig) AppConfig {
	if o.SimHz != nil {
		cfg.Sim.Hz = *o.SimHz
	}
	if o.BroadcastHz != nil {
		cfg.Sim.BroadcastHz = *o.BroadcastHz
	}
	if o.Restitution != nil {
		cfg.Collision.Restitution = *o.Restitution
	}
	if o.DamageFactor != nil {
		cfg.Collision.BaseDamageFactor = *o.DamageFactor
	}
	if o.MaxPlayers != nil {
		cfg.Room.MaxPlayers = *o.MaxPlayers
	}
	if o.Drones != nil {
		cfg.Room.Drones = *o.Drones
	}
	if o.LightSpeed != nil {
		for name, ship := range cfg.Ships {
			ship.LightSpeed = *o.LightSpeed
			cfg.Ships[name] = ship
		}
	}
	return cfg
}

var ErrInvalidConfig = errors.New("invalid server config")

func setDefaults(v *viper.Viper, cfg AppConfig) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("cleanupInterval", cfg.CleanupInterval)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.console", cfg.Log.Console)

	v.SetDefault("sim.hz", cfg.Sim.Hz)
	v.SetDefault("sim.broadcastHz", cfg.Sim.BroadcastHz)
	v.SetDefault("sim.inputHz", cfg.Sim.InputHz)

	v.SetDefault("room.maxPlayers", cfg.Room.MaxPlayers)
	v.SetDefault("room.maxInputsPerTick", cfg.Room.MaxInputsPerTick)
	v.SetDefault("room.inputQueueSize", cfg.Room.InputQueueSize)
	v.SetDefault("room.parallelThreshold", cfg.Room.ParallelThreshold)
	v.SetDefault("room.drones", cfg.Room.Drones)
	v.SetDefault("room.defaultClass", cfg.Room.DefaultClass)

	v.SetDefault("net.handshakeTimeout", cfg.Net.HandshakeTimeout)
	v.SetDefault("net.writeWait", cfg.Net.WriteWait)
	v.SetDefault("net.sendQueue", cfg.Net.SendQueue)
	v.SetDefault("net.readLimit", cfg.Net.ReadLimit)
	v.SetDefault("net.maxDecodeFailures", cfg.Net.MaxDecodeFailures)

	v.SetDefault("collision.restitution", cfg.Collision.Restitution)
	v.SetDefault("collision.baseDamageFactor", cfg.Collision.BaseDamageFactor)
}

// LoadConfig layers defaults, the optional config file at path, LSA_*
// environment variables and finally overrides. Ship classes from the file
// under ships.<class> start from the built-in class of the same name, or
// the default hull for new names.
func LoadConfig(path string, overrides Overrides) (AppConfig, error) {
	base := DefaultAppConfig()

	v := viper.New()
	setDefaults(v, base)
	v.SetEnvPrefix("LSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		if err := v.ReadInConfig(); err != nil {
			return base, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	cfg := base
	if err := v.Unmarshal(&cfg); err != nil {
		return base, fmt.Errorf("decode config: %w", err)
	}

	cfg.Ships = game.DefaultShipClasses()
	for name := range v.GetStringMap("ships") {
		ship, ok := cfg.Ships[name]
		if !ok {
			ship = game.DefaultPhysicsConfig()
		}
		if err := v.UnmarshalKey("ships."+name, &ship); err != nil {
			return base, fmt.Errorf("decode ship class %q: %w", name, err)
		}
		cfg.Ships[name] = ship
	}

	cfg = overrides.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// Validate sanitizes ship classes and collision params in place and rejects
// settings the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Sim.Hz <= 0 || c.Sim.BroadcastHz <= 0 || c.Sim.InputHz <= 0 {
		return fmt.Errorf("%w: rates must be positive (sim %.1f, broadcast %.1f, input %.1f)",
			ErrInvalidConfig, c.Sim.Hz, c.Sim.BroadcastHz, c.Sim.InputHz)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("%w: cleanup interval must be positive, got %s", ErrInvalidConfig, c.CleanupInterval)
	}
	if c.Sim.BroadcastHz > c.Sim.Hz {
		return fmt.Errorf("%w: broadcast rate %.1f exceeds sim rate %.1f", ErrInvalidConfig, c.Sim.BroadcastHz, c.Sim.Hz)
	}
	if len(c.Ships) == 0 {
		return fmt.Errorf("%w: no ship classes", ErrInvalidConfig)
	}
	if err := c.Ships.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, ok := c.Ships[c.Room.DefaultClass]; !ok {
		return fmt.Errorf("%w: default class %q not defined", ErrInvalidConfig, c.Room.DefaultClass)
	}
	c.Collision = game.SanitizeCollisionParams(c.Collision)
	return nil
}

// RoomConfig derives the simulation settings for a new room.
func (c AppConfig) RoomConfig() game.RoomConfig {
	rc := game.DefaultRoomConfig()
	rc.InputDt = 1 / c.Sim.InputHz
	rc.MaxPlayers = c.Room.MaxPlayers
	rc.MaxInputsPerTick = c.Room.MaxInputsPerTick
	rc.InputQueueSize = c.Room.InputQueueSize
	rc.ParallelThreshold = c.Room.ParallelThreshold
	rc.Collision = c.Collision
	rc.Ships = c.Ships
	rc.DefaultClass = c.Room.DefaultClass
	return rc
}

// broadcastEvery is the number of sim ticks between snapshots.
func (c AppConfig) broadcastEvery() uint64 {
	n := uint64(c.Sim.Hz/c.Sim.BroadcastHz + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}
