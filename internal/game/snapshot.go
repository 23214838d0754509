package game

// EntitySnapshot is the per-entity record broadcast every snapshot.
type EntitySnapshot struct {
	ID               EntityID
	State            EntityState
	LastProcessedSeq uint32
	Health           float64
	Control          *ControlInput
	FlightAssist     *bool
}

// WorldSnapshot is the authoritative world at one tick. Clients apply them in
// strictly increasing Tick order.
type WorldSnapshot struct {
	Tick        uint64
	TimestampMs int64
	Entities    []EntitySnapshot
}

// Find returns the record for id.
func (s WorldSnapshot) Find(id EntityID) (EntitySnapshot, bool) {
	for _, e := range s.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return EntitySnapshot{}, false
}
