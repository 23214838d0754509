package game

import "sort"

type EntityID uint32

type ComponentKey string

type World struct {
	nextEntity EntityID
	components map[ComponentKey]map[EntityID]any
}

// BodyComponent is the authoritative kinematic state of an entity.
type BodyComponent struct {
	State    EntityState
	Momentum Momentum
}

type ShipComponent struct {
	Class  string
	Config PhysicsConfig
	Health float64
}

type OwnerComponent struct {
	ClientID uint32
}

// ControlComponent buffers a client's inputs between ticks.
type ControlComponent struct {
	Queue            []ControlInput
	Last             ControlInput
	LastQueuedSeq    uint32
	LastProcessedSeq uint32
}

const (
	CompBody    ComponentKey = "body"
	CompShip    ComponentKey = "ship"
	CompOwner   ComponentKey = "owner"
	CompControl ComponentKey = "control"
)

func (w *World) Body(id EntityID) *BodyComponent {
	if v, ok := w.GetComponent(id, CompBody); ok {
		if t, ok := v.(*BodyComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) ShipData(id EntityID) *ShipComponent {
	if v, ok := w.GetComponent(id, CompShip); ok {
		if t, ok := v.(*ShipComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) Owner(id EntityID) *OwnerComponent {
	if v, ok := w.GetComponent(id, CompOwner); ok {
		if t, ok := v.(*OwnerComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) Control(id EntityID) *ControlComponent {
	if v, ok := w.GetComponent(id, CompControl); ok {
		if t, ok := v.(*ControlComponent); ok {
			return t
		}
	}
	return nil
}

func newWorld() *World {
	return &World{
		nextEntity: 0,
		components: make(map[ComponentKey]map[EntityID]any),
	}
}

func (w *World) NewEntity() EntityID {
	w.nextEntity++
	return w.nextEntity
}

func (w *World) SetComponent(id EntityID, key ComponentKey, value any) {
	store, ok := w.components[key]
	if !ok {
		store = make(map[EntityID]any)
		w.components[key] = store
	}
	store[id] = value
}

func (w *World) GetComponent(id EntityID, key ComponentKey) (any, bool) {
	if store, ok := w.components[key]; ok {
		val, ok := store[id]
		return val, ok
	}
	return nil, false
}

func (w *World) RemoveEntity(id EntityID) {
	for _, store := range w.components {
		delete(store, id)
	}
}

// ForEach visits matching entities in ascending ID order so that systems
// built on it stay deterministic.
func (w *World) ForEach(required []ComponentKey, fn func(EntityID)) {
	for _, id := range w.Query(required) {
		fn(id)
	}
}

// Query returns the sorted IDs of entities carrying every required component.
func (w *World) Query(required []ComponentKey) []EntityID {
	if len(required) == 0 {
		return nil
	}
	first := w.components[required[0]]
	if first == nil {
		return nil
	}
	ids := make([]EntityID, 0, len(first))
	for id := range first {
		match := true
		for _, key := range required[1:] {
			if store := w.components[key]; store == nil {
				match = false
				break
			} else if _, ok := store[id]; !ok {
				match = false
				break
			}
		}
		if match {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

