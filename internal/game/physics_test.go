package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptedInput(i int) ControlInput {
	return ControlInput{
		Thrust:       math.Sin(float64(i) * 0.13),
		StrafeX:      math.Cos(float64(i) * 0.07),
		StrafeY:      0.25 * math.Sin(float64(i)*0.31),
		Yaw:          math.Sin(float64(i) * 0.05),
		FlightAssist: i%3 != 0,
		Seq:          uint32(i + 1),
	}
}

// Identical inputs must produce bit-identical states, which is what lets the
// client and server agree without exchanging full histories.
func TestStepIsDeterministic(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	run := func() (EntityState, Momentum) {
		s := EntityState{Pos: Vec2{X: 10, Y: -4}, Rot: 0.3}
		var m Momentum
		for i := 0; i < 300; i++ {
			s, m = Step(s, m, cfg, scriptedInput(i), InputDt)
		}
		return s, m
	}
	s1, m1 := run()
	s2, m2 := run()
	require.Equal(t, s1, s2)
	require.Equal(t, m1, m2)
}

// Sustained thrust approaches the light-speed ceiling without ever touching it.
func TestIntegrateSpeedStaysBelowCeiling(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	cfg.LightSpeed = 100
	cfg.ForwardAccel = 500

	ceiling := SpeedCeiling(cfg.LightSpeed)
	s := EntityState{}
	var m Momentum
	prev := 0.0
	for i := 0; i < 2000; i++ {
		s, m = Integrate(s, m, cfg, ControlInput{Thrust: 1}, InputDt)
		speed := s.Vel.Len()
		require.Less(t, speed, ceiling, "step %d", i)
		require.GreaterOrEqual(t, speed, prev-1e-6, "step %d", i)
		prev = speed
	}
	assert.Greater(t, prev, 0.98*cfg.LightSpeed)
}

func TestVelocityMomentumRoundTrip(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	for _, frac := range []float64{0, 0.01, 0.1, 0.3, 0.6, 0.7, 0.8, 0.9, 0.98} {
		vel := Vec2{X: 0.6, Y: 0.8}.Scale(frac * cfg.LightSpeed)
		m := MomentumFromVelocity(vel, 0, cfg)
		got, clamped := VelocityFromMomentum(m.Linear, cfg.Mass, cfg.LightSpeed)
		assert.False(t, clamped)
		assert.InDelta(t, vel.X, got.X, 1e-6*cfg.LightSpeed, "frac %.2f", frac)
		assert.InDelta(t, vel.Y, got.Y, 1e-6*cfg.LightSpeed, "frac %.2f", frac)
	}
}

// The recovered speed satisfies p = γ(v)·m·v for speeds close to c′.
func TestSolveSpeedSatisfiesGamma(t *testing.T) {
	const c, mass = 600.0, 10000.0
	for _, frac := range []float64{0.5, 0.7, 0.8, 0.9, 0.95} {
		want := frac * c
		p := Gamma(want, c) * mass * want
		got := solveSpeed(p, mass, c)
		assert.InDelta(t, want, got, 1e-9*c, "frac %.2f", frac)
		assert.InDelta(t, 0, Gamma(got, c)*mass*got/p-1, 1e-9, "frac %.2f", frac)
	}
}

func TestGamma(t *testing.T) {
	assert.Equal(t, 1.0, Gamma(0, C))
	assert.InDelta(t, 1.25, Gamma(0.6*C, C), 1e-12)
	assert.False(t, math.IsInf(Gamma(2*C, C), 0))
}

// Thrust pushes along the nose: local +Y rotated by the heading.
func TestIntegrateThrustFollowsHeading(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	cases := []struct {
		name string
		rot  float64
		dir  Vec2
	}{
		{"north", 0, Vec2{X: 0, Y: 1}},
		{"west", math.Pi / 2, Vec2{X: -1, Y: 0}},
		{"south", math.Pi, Vec2{X: 0, Y: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := Integrate(EntityState{Rot: tc.rot}, Momentum{}, cfg, ControlInput{Thrust: 1}, InputDt)
			got := s.Vel.Unit()
			assert.InDelta(t, tc.dir.X, got.X, 1e-9)
			assert.InDelta(t, tc.dir.Y, got.Y, 1e-9)
		})
	}
}

func TestIntegrateReverseUsesReverseAccel(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	s, _ := Integrate(EntityState{}, Momentum{}, cfg, ControlInput{Thrust: -1}, 1)
	assert.InDelta(t, -cfg.ReverseAccel, s.Vel.Y, 0.05*cfg.ReverseAccel)
	assert.Less(t, s.Vel.Y, 0.0)
}

func TestIntegrateYawTorque(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	s, m := Integrate(EntityState{}, Momentum{}, cfg, ControlInput{Yaw: 1}, 0.5)
	assert.InDelta(t, cfg.YawAccel*0.5, s.AngVel, 1e-12)
	assert.InDelta(t, cfg.YawAccel*0.5*cfg.Inertia, m.Angular, 1e-6)
	assert.InDelta(t, s.AngVel*0.5, s.Rot, 1e-12)
}

func TestIntegrateNonPositiveDtIsNoop(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	s := EntityState{Pos: Vec2{X: 1}, Vel: Vec2{Y: 3}}
	m := MomentumFromVelocity(s.Vel, 0, cfg)
	gotS, gotM := Integrate(s, m, cfg, ControlInput{Thrust: 1}, 0)
	assert.Equal(t, s, gotS)
	assert.Equal(t, m, gotM)
}

func TestIntegratePanicsOnInvalidMass(t *testing.T) {
	cfg := DefaultPhysicsConfig()
	cfg.Mass = 0
	require.Panics(t, func() {
		Integrate(EntityState{}, Momentum{}, cfg, ControlInput{}, InputDt)
	})
	require.Error(t, cfg.Validate())
	require.ErrorIs(t, cfg.Validate(), ErrInvalidPhysicsConfig)
}

func TestSanitizePhysicsConfigKeepsMass(t *testing.T) {
	cfg := SanitizePhysicsConfig(PhysicsConfig{Mass: -1, Inertia: 5})
	assert.Equal(t, -1.0, cfg.Mass)
	assert.Equal(t, DefaultPhysicsConfig().ForwardAccel, cfg.ForwardAccel)
	assert.Equal(t, C, cfg.LightSpeed)
}

func TestNormalizeAngle(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{4 * math.Pi, 0},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, NormalizeAngle(tc.in), 1e-12, "in=%v", tc.in)
	}
}

func TestControlInputClamped(t *testing.T) {
	in := ControlInput{Thrust: 3, StrafeX: -2, StrafeY: math.NaN(), Yaw: 0.5}.Clamped()
	assert.Equal(t, 1.0, in.Thrust)
	assert.Equal(t, -1.0, in.StrafeX)
	assert.Equal(t, 0.0, in.StrafeY)
	assert.Equal(t, 0.5, in.Yaw)
}
