package game

import (
	"errors"
	"fmt"
	"math"
)

// EntityState is the kinematic state of one rigid body. It is a value type:
// every hand-off between server, wire and client copies it.
type EntityState struct {
	Pos    Vec2    // m
	Rot    float64 // rad, (-π, π]
	Vel    Vec2    // m/s
	AngVel float64 // rad/s
}

// Momentum holds the integrated quantities. Linear momentum is relativistic
// (γ·m·v); whenever velocity is written directly it must be re-derived with
// MomentumFromVelocity.
type Momentum struct {
	Linear  Vec2
	Angular float64
}

// ControlInput is one sampled pilot command. Axis values are in [-1, 1].
type ControlInput struct {
	Thrust       float64
	StrafeX      float64
	StrafeY      float64
	Yaw          float64
	Brake        bool
	FlightAssist bool
	Seq          uint32
	TimestampMs  int64
}

// Clamped returns a copy with every axis limited to [-1, 1]; NaN becomes 0.
func (in ControlInput) Clamped() ControlInput {
	in.Thrust = clampAxis(in.Thrust)
	in.StrafeX = clampAxis(in.StrafeX)
	in.StrafeY = clampAxis(in.StrafeY)
	in.Yaw = clampAxis(in.Yaw)
	return in
}

// PhysicsConfig holds the per-class ship constants.
type PhysicsConfig struct {
	ForwardAccel    float64 // m/s² at full thrust
	ReverseAccel    float64 // m/s² at full reverse
	StrafeAccel     float64 // m/s² at full strafe
	YawAccel        float64 // rad/s² at full yaw
	MaxForwardSpeed float64 // flight-assist ceiling, m/s
	MaxReverseSpeed float64
	MaxLateralSpeed float64
	MaxYawRate      float64 // rad/s
	Mass            float64 // kg
	Inertia         float64 // kg·m²
	CrewGLimit      float64 // g, caps flight-assist corrections
	CollisionRadius float64 // m
	MaxHealth       float64
	LightSpeed      float64 // c′, m/s
}

var ErrInvalidPhysicsConfig = errors.New("invalid physics config")

// DefaultPhysicsConfig returns the baseline interceptor hull.
func DefaultPhysicsConfig() PhysicsConfig {
	return PhysicsConfig{
		ForwardAccel:    60,
		ReverseAccel:    35,
		StrafeAccel:     30,
		YawAccel:        4,
		MaxForwardSpeed: 180,
		MaxReverseSpeed: 60,
		MaxLateralSpeed: 80,
		MaxYawRate:      2.5,
		Mass:            10000,
		Inertia:         40000,
		CrewGLimit:      9,
		CollisionRadius: 12,
		MaxHealth:       100,
		LightSpeed:      C,
	}
}

// SanitizePhysicsConfig fills unset (zero or negative) tuning values from the
// defaults. Mass and inertia are left alone so Validate can reject them.
func SanitizePhysicsConfig(cfg PhysicsConfig) PhysicsConfig {
	def := DefaultPhysicsConfig()
	fill := func(v *float64, d float64) {
		if *v <= 0 || math.IsNaN(*v) {
			*v = d
		}
	}
	fill(&cfg.ForwardAccel, def.ForwardAccel)
	fill(&cfg.ReverseAccel, def.ReverseAccel)
	fill(&cfg.StrafeAccel, def.StrafeAccel)
	fill(&cfg.YawAccel, def.YawAccel)
	fill(&cfg.MaxForwardSpeed, def.MaxForwardSpeed)
	fill(&cfg.MaxReverseSpeed, def.MaxReverseSpeed)
	fill(&cfg.MaxLateralSpeed, def.MaxLateralSpeed)
	fill(&cfg.MaxYawRate, def.MaxYawRate)
	fill(&cfg.CrewGLimit, def.CrewGLimit)
	fill(&cfg.CollisionRadius, def.CollisionRadius)
	fill(&cfg.MaxHealth, def.MaxHealth)
	fill(&cfg.LightSpeed, def.LightSpeed)
	return cfg
}

// Validate reports configs that would make integration undefined.
func (cfg PhysicsConfig) Validate() error {
	switch {
	case !(cfg.Mass > 0):
		return fmt.Errorf("%w: mass %v must be positive", ErrInvalidPhysicsConfig, cfg.Mass)
	case !(cfg.Inertia > 0):
		return fmt.Errorf("%w: inertia %v must be positive", ErrInvalidPhysicsConfig, cfg.Inertia)
	case !(cfg.LightSpeed > 0):
		return fmt.Errorf("%w: light speed %v must be positive", ErrInvalidPhysicsConfig, cfg.LightSpeed)
	}
	return nil
}

func (cfg PhysicsConfig) lightSpeed() float64 {
	if cfg.LightSpeed > 0 {
		return cfg.LightSpeed
	}
	return C
}

// SpeedCeiling is the speed no entity may reach: SpeedCeilingRatio·c′.
func SpeedCeiling(c float64) float64 { return SpeedCeilingRatio * c }

// Gamma returns the Lorentz factor 1/√(1-(v/c)²). Speeds at or above c are
// treated as the ceiling.
func Gamma(speed, c float64) float64 {
	if c <= 0 {
		return 1
	}
	v := math.Abs(speed)
	if v >= c {
		v = SpeedCeiling(c)
	}
	beta := v / c
	return 1 / math.Sqrt(1-beta*beta)
}

const (
	momentumSolverIters = 5
	momentumSolverTol   = 1e-9
)

// maxSpeed is the largest representable speed strictly below the ceiling.
func maxSpeed(c float64) float64 {
	return math.Nextafter(SpeedCeiling(c), 0)
}

// solveSpeed finds v with γ(v)·m·v = p using Newton–Raphson.
//
//	f(v)  = γ(v)·m·v - p
//	f'(v) = m·γ(v)³
//
// The first guess is the closed form p/√(m²+p²/c²), so Newton only polishes
// rounding error. Iterates stay inside [0, ceiling).
func solveSpeed(p, mass, c float64) float64 {
	if p <= 0 {
		return 0
	}
	top := maxSpeed(c)
	v := math.Min(p/math.Sqrt(mass*mass+(p*p)/(c*c)), top)
	tol := momentumSolverTol * math.Max(1, p)
	for i := 0; i < momentumSolverIters; i++ {
		g := Gamma(v, c)
		residual := g*mass*v - p
		if math.Abs(residual) < tol {
			break
		}
		v -= residual / (mass * g * g * g)
		if v < 0 {
			v = 0
		}
		if v > top {
			v = top
		}
	}
	return v
}

// VelocityFromMomentum recovers velocity from relativistic linear momentum.
// The returned flag reports whether the speed was clamped to the ceiling, in
// which case the caller must re-derive momentum from the result.
func VelocityFromMomentum(p Vec2, mass, c float64) (Vec2, bool) {
	mag := p.Len()
	if mag == 0 {
		return Vec2{}, false
	}
	speed := solveSpeed(mag, mass, c)
	clamped := false
	if top := maxSpeed(c); speed >= top {
		speed = top
		clamped = true
	}
	return p.Scale(speed / mag), clamped
}

// MomentumFromVelocity derives γ-corrected linear and plain angular momentum.
func MomentumFromVelocity(vel Vec2, angVel float64, cfg PhysicsConfig) Momentum {
	c := cfg.lightSpeed()
	if speed := vel.Len(); speed >= maxSpeed(c) {
		vel = vel.Scale(maxSpeed(c) / speed)
	}
	return Momentum{
		Linear:  vel.Scale(Gamma(vel.Len(), c) * cfg.Mass),
		Angular: angVel * cfg.Inertia,
	}
}

func mustIntegrable(cfg PhysicsConfig) {
	if !(cfg.Mass > 0) || !(cfg.Inertia > 0) {
		panic(fmt.Sprintf("game: integrate with mass=%v inertia=%v", cfg.Mass, cfg.Inertia))
	}
}

// Integrate advances one entity by dt seconds under the given control input.
// It is a pure function of its arguments.
//
//	F_thrust = accel·|thrust|·m along ±forward
//	F_strafe = strafeAccel·(x·right + y·forward)·m
//	τ        = yaw·yawAccel·I
//	p += F·dt, L += τ·dt, v = solve(p), ω = L/I
//	x += v·dt, θ += ω·dt
func Integrate(s EntityState, m Momentum, cfg PhysicsConfig, in ControlInput, dt float64) (EntityState, Momentum) {
	mustIntegrable(cfg)
	if dt <= 0 {
		return s, m
	}
	in = in.Clamped()

	var local Vec2
	if in.Thrust >= 0 {
		local.Y = cfg.ForwardAccel * in.Thrust * cfg.Mass
	} else {
		local.Y = cfg.ReverseAccel * in.Thrust * cfg.Mass
	}
	local.X = cfg.StrafeAccel * in.StrafeX * cfg.Mass
	local.Y += cfg.StrafeAccel * in.StrafeY * cfg.Mass
	force := ToWorld(local, s.Rot)
	torque := in.Yaw * cfg.YawAccel * cfg.Inertia

	m.Linear = m.Linear.Add(force.Scale(dt))
	m.Angular += torque * dt

	vel, clamped := VelocityFromMomentum(m.Linear, cfg.Mass, cfg.lightSpeed())
	if clamped {
		m.Linear = MomentumFromVelocity(vel, 0, cfg).Linear
	}
	s.Vel = vel
	s.AngVel = m.Angular / cfg.Inertia

	s.Pos = s.Pos.Add(s.Vel.Scale(dt))
	s.Rot = NormalizeAngle(s.Rot + s.AngVel*dt)
	return s, m
}

// Step is the shared per-input simulation step used by the server room and
// the client prediction engine: integrate, then flight-assist.
func Step(s EntityState, m Momentum, cfg PhysicsConfig, in ControlInput, dt float64) (EntityState, Momentum) {
	s, m = Integrate(s, m, cfg, in, dt)
	return ApplyFlightAssist(s, m, cfg, in, dt)
}
