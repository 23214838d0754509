package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Vec2 struct{ X, Y float64 }

func (a Vec2) Add(b Vec2) Vec2      { return Vec2{a.X + b.X, a.Y + b.Y} }
func (a Vec2) Sub(b Vec2) Vec2      { return Vec2{a.X - b.X, a.Y - b.Y} }
func (a Vec2) Dot(b Vec2) float64   { return a.X*b.X + a.Y*b.Y }
func (a Vec2) Len() float64         { return math.Hypot(a.X, a.Y) }
func (a Vec2) LenSq() float64       { return a.X*a.X + a.Y*a.Y }
func (a Vec2) Scale(s float64) Vec2 { return Vec2{a.X * s, a.Y * s} }

// Unit returns the normalized vector, or the zero vector for a zero input.
func (a Vec2) Unit() Vec2 {
	l := a.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{a.X / l, a.Y / l}
}

// Rotate turns the vector counter-clockwise by angle radians.
func (a Vec2) Rotate(angle float64) Vec2 {
	r := mgl64.Rotate2D(angle).Mul2x1(mgl64.Vec2{a.X, a.Y})
	return Vec2{r[0], r[1]}
}

// ToWorld maps a ship-local vector (X right, Y forward) into world space
// for a ship facing rot.
func ToWorld(local Vec2, rot float64) Vec2 { return local.Rotate(rot) }

// ToLocal is the inverse of ToWorld.
func ToLocal(world Vec2, rot float64) Vec2 { return world.Rotate(-rot) }

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NormalizeAngle wraps a into (-π, π].
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// AngleDiff returns the shortest signed rotation from b to a.
func AngleDiff(a, b float64) float64 {
	return NormalizeAngle(a - b)
}

// moveToward steps cur toward target by at most maxDelta without overshooting.
func moveToward(cur, target, maxDelta float64) float64 {
	if maxDelta <= 0 {
		return cur
	}
	d := target - cur
	if math.Abs(d) <= maxDelta {
		return target
	}
	if d > 0 {
		return cur + maxDelta
	}
	return cur - maxDelta
}

func clampAxis(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(v, -1, 1)
}
