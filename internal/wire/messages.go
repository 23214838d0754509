// Package wire defines the binary messages exchanged between client and
// server. Messages use the protobuf wire format (see wire.proto) and are
// always framed inside an envelope carrying exactly one variant.
package wire

type Vec2 struct {
	X float64
	Y float64
}

type Transform struct {
	Position Vec2
	Rotation float64
}

type Velocity struct {
	Linear  Vec2
	Angular float64
}

type ControlState struct {
	Thrust   float64
	StrafeX  float64
	StrafeY  float64
	YawInput float64
	Brake    *bool
}

// Message is implemented by every envelope variant.
type Message interface {
	envelopeField() fieldNum
}

// ConnectionRequest opens the handshake (client → server).
type ConnectionRequest struct {
	PlayerName      string
	ProtocolVersion uint32
	ShipClass       string
}

// PlayerInput carries one sequenced control sample (client → server).
type PlayerInput struct {
	ClientID            uint32
	SequenceNumber      uint32
	TimestampMs         int64
	ControlState        ControlState
	FlightAssistEnabled bool
}

// ConnectionAccepted completes the handshake (server → client).
type ConnectionAccepted struct {
	ClientID     uint32
	EntityID     uint32
	ServerTimeMs int64
}

type EntityRecord struct {
	EntityID              uint32
	Transform             Transform
	Velocity              Velocity
	ControlState          *ControlState
	FlightAssist          *bool
	Health                *float64
	LastProcessedSequence uint32
}

// WorldSnapshot is the periodic authoritative broadcast (server → client).
type WorldSnapshot struct {
	Tick        uint64
	TimestampMs int64
	Entities    []EntityRecord
}

// Disconnect tells a client it is being dropped (server → client).
type Disconnect struct {
	ClientID uint32
	Reason   string
}

func (*ConnectionRequest) envelopeField() fieldNum  { return envConnectionRequest }
func (*PlayerInput) envelopeField() fieldNum        { return envPlayerInput }
func (*ConnectionAccepted) envelopeField() fieldNum { return envConnectionAccepted }
func (*WorldSnapshot) envelopeField() fieldNum      { return envWorldSnapshot }
func (*Disconnect) envelopeField() fieldNum         { return envDisconnect }
