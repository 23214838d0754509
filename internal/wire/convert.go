package wire

import "LightSpeedArena/internal/game"

func vecFromGame(v game.Vec2) Vec2 { return Vec2{X: v.X, Y: v.Y} }
func (v Vec2) toGame() game.Vec2  { return game.Vec2{X: v.X, Y: v.Y} }

// ControlFromGame copies the axis values of in. Brake is only sent when set.
func ControlFromGame(in game.ControlInput) ControlState {
	cs := ControlState{
		Thrust:   in.Thrust,
		StrafeX:  in.StrafeX,
		StrafeY:  in.StrafeY,
		YawInput: in.Yaw,
	}
	if in.Brake {
		brake := true
		cs.Brake = &brake
	}
	return cs
}

func (c ControlState) ToGame() game.ControlInput {
	in := game.ControlInput{
		Thrust:  c.Thrust,
		StrafeX: c.StrafeX,
		StrafeY: c.StrafeY,
		Yaw:     c.YawInput,
	}
	if c.Brake != nil {
		in.Brake = *c.Brake
	}
	return in
}

func InputFromGame(clientID uint32, in game.ControlInput) *PlayerInput {
	return &PlayerInput{
		ClientID:            clientID,
		SequenceNumber:      in.Seq,
		TimestampMs:         in.TimestampMs,
		ControlState:        ControlFromGame(in),
		FlightAssistEnabled: in.FlightAssist,
	}
}

func (m *PlayerInput) ToGame() game.ControlInput {
	in := m.ControlState.ToGame()
	in.Seq = m.SequenceNumber
	in.TimestampMs = m.TimestampMs
	in.FlightAssist = m.FlightAssistEnabled
	return in
}

func RecordFromGame(e game.EntitySnapshot) EntityRecord {
	rec := EntityRecord{
		EntityID: uint32(e.ID),
		Transform: Transform{
			Position: vecFromGame(e.State.Pos),
			Rotation: e.State.Rot,
		},
		Velocity: Velocity{
			Linear:  vecFromGame(e.State.Vel),
			Angular: e.State.AngVel,
		},
		LastProcessedSequence: e.LastProcessedSeq,
	}
	health := e.Health
	rec.Health = &health
	if e.Control != nil {
		cs := ControlFromGame(*e.Control)
		rec.ControlState = &cs
	}
	if e.FlightAssist != nil {
		fa := *e.FlightAssist
		rec.FlightAssist = &fa
	}
	return rec
}

func (e EntityRecord) State() game.EntityState {
	return game.EntityState{
		Pos:    e.Transform.Position.toGame(),
		Rot:    e.Transform.Rotation,
		Vel:    e.Velocity.Linear.toGame(),
		AngVel: e.Velocity.Angular,
	}
}

func (e EntityRecord) ToGame() game.EntitySnapshot {
	out := game.EntitySnapshot{
		ID:               game.EntityID(e.EntityID),
		State:            e.State(),
		LastProcessedSeq: e.LastProcessedSequence,
	}
	if e.Health != nil {
		out.Health = *e.Health
	}
	if e.ControlState != nil {
		in := e.ControlState.ToGame()
		if e.FlightAssist != nil {
			in.FlightAssist = *e.FlightAssist
		}
		out.Control = &in
	}
	if e.FlightAssist != nil {
		fa := *e.FlightAssist
		out.FlightAssist = &fa
	}
	return out
}

func SnapshotFromGame(s game.WorldSnapshot) *WorldSnapshot {
	msg := &WorldSnapshot{
		Tick:        s.Tick,
		TimestampMs: s.TimestampMs,
		Entities:    make([]EntityRecord, len(s.Entities)),
	}
	for i, e := range s.Entities {
		msg.Entities[i] = RecordFromGame(e)
	}
	return msg
}

func (m *WorldSnapshot) ToGame() game.WorldSnapshot {
	out := game.WorldSnapshot{
		Tick:        m.Tick,
		TimestampMs: m.TimestampMs,
		Entities:    make([]game.EntitySnapshot, len(m.Entities)),
	}
	for i, e := range m.Entities {
		out.Entities[i] = e.ToGame()
	}
	return out
}
