package session

import (
	"math"
	"time"

	"LightSpeedArena/internal/game"
	"LightSpeedArena/internal/prediction"
)

// ReconnectPolicy computes the wait before reconnect attempt n (0-based):
// min(BaseDelay·Factor^n, MaxDelay) plus up to Jitter of random slack.
type ReconnectPolicy struct {
	BaseDelay  time.Duration
	Factor     float64
	MaxDelay   time.Duration
	Jitter     time.Duration
	MaxRetries int
}

// Delay returns the wait for attempt with jitter in [0, 1).
func (p ReconnectPolicy) Delay(attempt int, jitter float64) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d) + time.Duration(game.Clamp(jitter, 0, 1)*float64(p.Jitter))
}

type Config struct {
	URL               string
	PlayerName        string
	ShipClass         string
	ProtocolVersion   uint32
	InputHz           float64
	ConnectTimeout    time.Duration
	MaxDecodeFailures int
	InterpDelay       time.Duration // remote entities are shown this far in the past
	Reconnect         ReconnectPolicy
	Prediction        prediction.Config

	// Now and Jitter are injectable for tests.
	Now    func() time.Time
	Jitter func() float64
}

func DefaultConfig() Config {
	return Config{
		URL:               "ws://127.0.0.1:8080/ws",
		PlayerName:        "pilot",
		ProtocolVersion:   game.ProtocolVersion,
		InputHz:           game.InputHz,
		ConnectTimeout:    5 * time.Second,
		MaxDecodeFailures: 5,
		InterpDelay:       100 * time.Millisecond,
		Reconnect: ReconnectPolicy{
			BaseDelay:  500 * time.Millisecond,
			Factor:     2,
			MaxDelay:   10 * time.Second,
			Jitter:     250 * time.Millisecond,
			MaxRetries: 8,
		},
		Prediction: prediction.DefaultConfig(),
	}
}

func (c Config) inputDt() float64 {
	if c.InputHz <= 0 {
		return game.InputDt
	}
	return 1 / c.InputHz
}
