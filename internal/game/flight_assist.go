package game

import "math"

// ApplyFlightAssist runs the post-integration limiter. With assist disabled
// the state and momentum pass through untouched.
//
// In the ship-local frame (Y forward, X lateral) it:
//  1. soft-clamps forward/lateral speed and yaw rate to the class ceilings,
//     moving at most CrewGLimit·g·dt per step;
//  2. decays yaw rate by exp(-2·yawAccel·dt) while the yaw axis is idle;
//  3. brakes idle linear axes with thruster acceleration capped at
//     CrewGLimit·g.
//
// Lateral braking needs both strafe axes exactly zero, while forward braking
// uses the IdleInputEps threshold. Braking skips an axis the clamp moved in
// the same step, so a step never lands below the ceiling it clamped to.
func ApplyFlightAssist(s EntityState, m Momentum, cfg PhysicsConfig, in ControlInput, dt float64) (EntityState, Momentum) {
	if !in.FlightAssist || dt <= 0 {
		return s, m
	}
	in = in.Clamped()

	gLimit := cfg.CrewGLimit * StandardGravity
	maxDelta := gLimit * dt

	local := ToLocal(s.Vel, s.Rot)
	lateral, forward := local.X, local.Y
	angVel := s.AngVel

	forwardClamped, lateralClamped := false, false
	if target := Clamp(forward, -cfg.MaxReverseSpeed, cfg.MaxForwardSpeed); math.Abs(target-forward) > ClampEps {
		forward = moveToward(forward, target, maxDelta)
		forwardClamped = true
	}
	if target := Clamp(lateral, -cfg.MaxLateralSpeed, cfg.MaxLateralSpeed); math.Abs(target-lateral) > ClampEps {
		lateral = moveToward(lateral, target, maxDelta)
		lateralClamped = true
	}
	if target := Clamp(angVel, -cfg.MaxYawRate, cfg.MaxYawRate); math.Abs(target-angVel) > ClampEps {
		angVel = moveToward(angVel, target, maxDelta)
	}

	if math.Abs(in.Yaw) < IdleInputEps {
		angVel *= math.Exp(-2 * cfg.YawAccel * dt)
	}

	forwardIdle := math.Abs(in.Thrust) < IdleInputEps && math.Abs(in.StrafeY) < IdleInputEps
	lateralIdle := in.StrafeX == 0 && in.StrafeY == 0
	if in.Brake {
		forwardIdle, lateralIdle = true, true
	}
	// an axis the clamp already slowed this step is not braked again
	if forwardIdle && !forwardClamped {
		accel := cfg.ReverseAccel
		if forward < 0 {
			accel = cfg.ForwardAccel
		}
		forward = moveToward(forward, 0, math.Min(accel, gLimit)*dt)
	}
	if lateralIdle && !lateralClamped {
		lateral = moveToward(lateral, 0, math.Min(cfg.StrafeAccel, gLimit)*dt)
	}

	s.Vel = ToWorld(Vec2{X: lateral, Y: forward}, s.Rot)
	s.AngVel = angVel
	return s, MomentumFromVelocity(s.Vel, s.AngVel, cfg)
}
