package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

type fieldNum = protowire.Number

// Envelope variant field numbers.
const (
	envConnectionRequest  fieldNum = 1
	envPlayerInput        fieldNum = 2
	envConnectionAccepted fieldNum = 3
	envWorldSnapshot      fieldNum = 4
	envDisconnect         fieldNum = 5
)

var (
	ErrEmptyEnvelope = errors.New("wire: envelope carries no known message")
	ErrNilMessage    = errors.New("wire: nil message")
)

// Marshal wraps m in an envelope and encodes it.
func Marshal(m Message) ([]byte, error) {
	var body []byte
	switch msg := m.(type) {
	case *ConnectionRequest:
		if msg == nil {
			return nil, ErrNilMessage
		}
		body = msg.append(nil)
	case *PlayerInput:
		if msg == nil {
			return nil, ErrNilMessage
		}
		body = msg.append(nil)
	case *ConnectionAccepted:
		if msg == nil {
			return nil, ErrNilMessage
		}
		body = msg.append(nil)
	case *WorldSnapshot:
		if msg == nil {
			return nil, ErrNilMessage
		}
		body = msg.append(nil)
	case *Disconnect:
		if msg == nil {
			return nil, ErrNilMessage
		}
		body = msg.append(nil)
	default:
		return nil, fmt.Errorf("wire: unknown message type %T", m)
	}
	out := protowire.AppendTag(nil, m.envelopeField(), protowire.BytesType)
	return protowire.AppendBytes(out, body), nil
}

// Unmarshal decodes an envelope. Unknown fields are skipped; if several
// variants are present the last one wins.
func Unmarshal(b []byte) (Message, error) {
	var msg Message
	d := decoder{b: b}
	for d.more() {
		num, typ := d.tag()
		if typ != protowire.BytesType {
			d.skip(num, typ)
			continue
		}
		var next Message
		switch num {
		case envConnectionRequest:
			m := &ConnectionRequest{}
			d.message(m.decode)
			next = m
		case envPlayerInput:
			m := &PlayerInput{}
			d.message(m.decode)
			next = m
		case envConnectionAccepted:
			m := &ConnectionAccepted{}
			d.message(m.decode)
			next = m
		case envWorldSnapshot:
			m := &WorldSnapshot{}
			d.message(m.decode)
			next = m
		case envDisconnect:
			m := &Disconnect{}
			d.message(m.decode)
			next = m
		default:
			d.skip(num, typ)
			continue
		}
		msg = next
	}
	if d.err != nil {
		return nil, d.err
	}
	if msg == nil {
		return nil, ErrEmptyEnvelope
	}
	return msg, nil
}

/* ------------------------------ Encoding ------------------------------ */

func appendVarint(b []byte, num fieldNum, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num fieldNum, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num fieldNum, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	return appendDoubleAlways(b, num, v)
}

func appendDoubleAlways(b []byte, num fieldNum, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num fieldNum, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num fieldNum, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func (v Vec2) append(b []byte) []byte {
	b = appendDouble(b, 1, v.X)
	return appendDouble(b, 2, v.Y)
}

func (t Transform) append(b []byte) []byte {
	b = appendMessage(b, 1, t.Position.append(nil))
	return appendDouble(b, 2, t.Rotation)
}

func (v Velocity) append(b []byte) []byte {
	b = appendMessage(b, 1, v.Linear.append(nil))
	return appendDouble(b, 2, v.Angular)
}

func (c ControlState) append(b []byte) []byte {
	b = appendDouble(b, 1, c.Thrust)
	b = appendDouble(b, 2, c.StrafeX)
	b = appendDouble(b, 3, c.StrafeY)
	b = appendDouble(b, 4, c.YawInput)
	if c.Brake != nil {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(*c.Brake))
	}
	return b
}

func (m *ConnectionRequest) append(b []byte) []byte {
	b = appendString(b, 1, m.PlayerName)
	b = appendVarint(b, 2, uint64(m.ProtocolVersion))
	return appendString(b, 3, m.ShipClass)
}

func (m *PlayerInput) append(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.ClientID))
	b = appendVarint(b, 2, uint64(m.SequenceNumber))
	b = appendVarint(b, 3, uint64(m.TimestampMs))
	b = appendMessage(b, 4, m.ControlState.append(nil))
	return appendBool(b, 5, m.FlightAssistEnabled)
}

func (m *ConnectionAccepted) append(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.ClientID))
	b = appendVarint(b, 2, uint64(m.EntityID))
	return appendVarint(b, 3, uint64(m.ServerTimeMs))
}

func (e *EntityRecord) append(b []byte) []byte {
	b = appendVarint(b, 1, uint64(e.EntityID))
	b = appendMessage(b, 2, e.Transform.append(nil))
	b = appendMessage(b, 3, e.Velocity.append(nil))
	if e.ControlState != nil {
		b = appendMessage(b, 4, e.ControlState.append(nil))
	}
	if e.FlightAssist != nil {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(*e.FlightAssist))
	}
	if e.Health != nil {
		b = appendDoubleAlways(b, 6, *e.Health)
	}
	return appendVarint(b, 7, uint64(e.LastProcessedSequence))
}

func (m *WorldSnapshot) append(b []byte) []byte {
	b = appendVarint(b, 1, m.Tick)
	b = appendVarint(b, 2, uint64(m.TimestampMs))
	for i := range m.Entities {
		b = appendMessage(b, 3, m.Entities[i].append(nil))
	}
	return b
}

func (m *Disconnect) append(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.ClientID))
	return appendString(b, 2, m.Reason)
}

/* ------------------------------ Decoding ------------------------------ */

// decoder walks one message body. The first malformed field stops it and
// is kept in err.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) more() bool { return d.err == nil && len(d.b) > 0 }

func (d *decoder) fail(n int) {
	if d.err == nil {
		d.err = fmt.Errorf("wire: %w", protowire.ParseError(n))
	}
	d.b = nil
}

func (d *decoder) tag() (fieldNum, protowire.Type) {
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.fail(n)
		return 0, 0
	}
	d.b = d.b[n:]
	return num, typ
}

func (d *decoder) skip(num fieldNum, typ protowire.Type) {
	if d.err != nil {
		return
	}
	n := protowire.ConsumeFieldValue(num, typ, d.b)
	if n < 0 {
		d.fail(n)
		return
	}
	d.b = d.b[n:]
}

func (d *decoder) varint() uint64 {
	v, n := protowire.ConsumeVarint(d.b)
	if n < 0 {
		d.fail(n)
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) double() float64 {
	v, n := protowire.ConsumeFixed64(d.b)
	if n < 0 {
		d.fail(n)
		return 0
	}
	d.b = d.b[n:]
	return math.Float64frombits(v)
}

func (d *decoder) bytes() []byte {
	v, n := protowire.ConsumeBytes(d.b)
	if n < 0 {
		d.fail(n)
		return nil
	}
	d.b = d.b[n:]
	return v
}

// message decodes a length-delimited sub-message with fn.
func (d *decoder) message(fn func(*decoder)) {
	body := d.bytes()
	if d.err != nil {
		return
	}
	sub := decoder{b: body}
	fn(&sub)
	if sub.err != nil && d.err == nil {
		d.err = sub.err
		d.b = nil
	}
}

// walk calls fn for every field and skips the ones fn reports unhandled.
func (d *decoder) walk(fn func(num fieldNum, typ protowire.Type) bool) {
	for d.more() {
		num, typ := d.tag()
		if d.err != nil {
			return
		}
		if !fn(num, typ) {
			d.skip(num, typ)
		}
	}
}

func (v *Vec2) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		if typ != protowire.Fixed64Type {
			return false
		}
		switch num {
		case 1:
			v.X = d.double()
		case 2:
			v.Y = d.double()
		default:
			return false
		}
		return true
	})
}

func (t *Transform) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.BytesType:
			d.message(t.Position.decode)
		case num == 2 && typ == protowire.Fixed64Type:
			t.Rotation = d.double()
		default:
			return false
		}
		return true
	})
}

func (v *Velocity) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.BytesType:
			d.message(v.Linear.decode)
		case num == 2 && typ == protowire.Fixed64Type:
			v.Angular = d.double()
		default:
			return false
		}
		return true
	})
}

func (c *ControlState) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.Fixed64Type:
			c.Thrust = d.double()
		case num == 2 && typ == protowire.Fixed64Type:
			c.StrafeX = d.double()
		case num == 3 && typ == protowire.Fixed64Type:
			c.StrafeY = d.double()
		case num == 4 && typ == protowire.Fixed64Type:
			c.YawInput = d.double()
		case num == 5 && typ == protowire.VarintType:
			v := protowire.DecodeBool(d.varint())
			c.Brake = &v
		default:
			return false
		}
		return true
	})
}

func (m *ConnectionRequest) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.BytesType:
			m.PlayerName = string(d.bytes())
		case num == 2 && typ == protowire.VarintType:
			m.ProtocolVersion = uint32(d.varint())
		case num == 3 && typ == protowire.BytesType:
			m.ShipClass = string(d.bytes())
		default:
			return false
		}
		return true
	})
}

func (m *PlayerInput) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.VarintType:
			m.ClientID = uint32(d.varint())
		case num == 2 && typ == protowire.VarintType:
			m.SequenceNumber = uint32(d.varint())
		case num == 3 && typ == protowire.VarintType:
			m.TimestampMs = int64(d.varint())
		case num == 4 && typ == protowire.BytesType:
			d.message(m.ControlState.decode)
		case num == 5 && typ == protowire.VarintType:
			m.FlightAssistEnabled = protowire.DecodeBool(d.varint())
		default:
			return false
		}
		return true
	})
}

func (m *ConnectionAccepted) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		if typ != protowire.VarintType {
			return false
		}
		switch num {
		case 1:
			m.ClientID = uint32(d.varint())
		case 2:
			m.EntityID = uint32(d.varint())
		case 3:
			m.ServerTimeMs = int64(d.varint())
		default:
			return false
		}
		return true
	})
}

func (e *EntityRecord) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.VarintType:
			e.EntityID = uint32(d.varint())
		case num == 2 && typ == protowire.BytesType:
			d.message(e.Transform.decode)
		case num == 3 && typ == protowire.BytesType:
			d.message(e.Velocity.decode)
		case num == 4 && typ == protowire.BytesType:
			cs := &ControlState{}
			d.message(cs.decode)
			e.ControlState = cs
		case num == 5 && typ == protowire.VarintType:
			v := protowire.DecodeBool(d.varint())
			e.FlightAssist = &v
		case num == 6 && typ == protowire.Fixed64Type:
			v := d.double()
			e.Health = &v
		case num == 7 && typ == protowire.VarintType:
			e.LastProcessedSequence = uint32(d.varint())
		default:
			return false
		}
		return true
	})
}

func (m *WorldSnapshot) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.VarintType:
			m.Tick = d.varint()
		case num == 2 && typ == protowire.VarintType:
			m.TimestampMs = int64(d.varint())
		case num == 3 && typ == protowire.BytesType:
			var rec EntityRecord
			d.message(rec.decode)
			m.Entities = append(m.Entities, rec)
		default:
			return false
		}
		return true
	})
}

func (m *Disconnect) decode(d *decoder) {
	d.walk(func(num fieldNum, typ protowire.Type) bool {
		switch {
		case num == 1 && typ == protowire.VarintType:
			m.ClientID = uint32(d.varint())
		case num == 2 && typ == protowire.BytesType:
			m.Reason = string(d.bytes())
		default:
			return false
		}
		return true
	})
}
