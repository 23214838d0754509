package game

// Body is the collision view of one entity. ResolveCollisions mutates it in
// place; callers copy the results back into their own storage.
type Body struct {
	ID       EntityID
	State    EntityState
	Momentum Momentum
	Mass     float64
	Radius   float64
	Health   float64
}

// CollisionParams tunes the impulse response.
type CollisionParams struct {
	Restitution      float64 // e in [0,1]
	BaseDamageFactor float64 // damage per unit impulse before the speed term
}

func DefaultCollisionParams() CollisionParams {
	return CollisionParams{Restitution: 0.8, BaseDamageFactor: 1e-5}
}

func SanitizeCollisionParams(p CollisionParams) CollisionParams {
	p.Restitution = Clamp(p.Restitution, 0, 1)
	if p.BaseDamageFactor < 0 {
		p.BaseDamageFactor = 0
	}
	return p
}

// Contact describes one resolved pair.
type Contact struct {
	A, B          EntityID
	Impulse       float64
	RelativeSpeed float64
	Damage        float64
}

// ResolveCollisions tests every pair (i<j) in slice order and applies an
// elastic impulse, damage and positional separation to overlapping, closing
// pairs. Bodies with no health left are ignored. Pair order is the slice
// order, so callers wanting determinism must pass a stable ordering.
//
//	j      = -(1+e)·(v_rel·n) / (1/mA + 1/mB)
//	damage = |j|·base·(1 + |v_rel|²/100)
func ResolveCollisions(bodies []*Body, p CollisionParams) []Contact {
	var contacts []Contact
	for i := 0; i < len(bodies); i++ {
		a := bodies[i]
		if a.Health <= 0 {
			continue
		}
		for j := i + 1; j < len(bodies); j++ {
			b := bodies[j]
			if b.Health <= 0 {
				continue
			}
			if c, ok := resolvePair(a, b, p); ok {
				contacts = append(contacts, c)
			}
			if a.Health <= 0 {
				break
			}
		}
	}
	return contacts
}

func resolvePair(a, b *Body, p CollisionParams) (Contact, bool) {
	delta := b.State.Pos.Sub(a.State.Pos)
	radii := a.Radius + b.Radius
	distSq := delta.LenSq()
	if distSq >= radii*radii {
		return Contact{}, false
	}

	dist := delta.Len()
	normal := Vec2{X: 1}
	if dist > 0 {
		normal = delta.Scale(1 / dist)
	}

	relVel := b.State.Vel.Sub(a.State.Vel)
	closing := relVel.Dot(normal)
	if closing > 0 {
		return Contact{}, false
	}

	invA, invB := 1/a.Mass, 1/b.Mass
	impulse := -(1 + p.Restitution) * closing / (invA + invB)

	a.State.Vel = a.State.Vel.Sub(normal.Scale(impulse * invA))
	b.State.Vel = b.State.Vel.Add(normal.Scale(impulse * invB))
	a.Momentum.Linear = a.State.Vel.Scale(a.Mass)
	b.Momentum.Linear = b.State.Vel.Scale(b.Mass)

	relSpeed := relVel.Len()
	damage := impulse * p.BaseDamageFactor * (1 + relSpeed*relSpeed/100)
	if damage < 0 {
		damage = -damage
	}
	a.Health = applyDamage(a.Health, damage)
	b.Health = applyDamage(b.Health, damage)

	overlap := radii - dist
	a.State.Pos = a.State.Pos.Sub(normal.Scale(overlap / 2))
	b.State.Pos = b.State.Pos.Add(normal.Scale(overlap / 2))

	return Contact{A: a.ID, B: b.ID, Impulse: impulse, RelativeSpeed: relSpeed, Damage: damage}, true
}

func applyDamage(health, damage float64) float64 {
	health -= damage
	if health < 0 {
		return 0
	}
	return health
}
