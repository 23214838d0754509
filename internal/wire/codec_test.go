package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"LightSpeedArena/internal/game"
)

func boolPtr(v bool) *bool          { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestMarshalRoundTripsEveryVariant(t *testing.T) {
	cases := []Message{
		&ConnectionRequest{PlayerName: "ace", ProtocolVersion: 1, ShipClass: "hauler"},
		&PlayerInput{
			ClientID:            7,
			SequenceNumber:      42,
			TimestampMs:         -5,
			ControlState:        ControlState{Thrust: 1, StrafeX: -0.5, StrafeY: 0.25, YawInput: -1, Brake: boolPtr(false)},
			FlightAssistEnabled: true,
		},
		&ConnectionAccepted{ClientID: 7, EntityID: 3, ServerTimeMs: 1_700_000_000_000},
		&WorldSnapshot{
			Tick:        99,
			TimestampMs: 123,
			Entities: []EntityRecord{
				{
					EntityID:              3,
					Transform:             Transform{Position: Vec2{X: 1.5, Y: -2}, Rotation: 3},
					Velocity:              Velocity{Linear: Vec2{X: 10}, Angular: -0.25},
					ControlState:          &ControlState{Thrust: 0.5},
					FlightAssist:          boolPtr(true),
					Health:                floatPtr(0),
					LastProcessedSequence: 41,
				},
				{EntityID: 4},
			},
		},
		&Disconnect{ClientID: 7, Reason: "protocol mismatch"},
	}
	for _, msg := range cases {
		b, err := Marshal(msg)
		require.NoError(t, err, "%T", msg)
		got, err := Unmarshal(b)
		require.NoError(t, err, "%T", msg)
		assert.Equal(t, msg, got)
	}
}

// Fields added by a newer peer must be ignored, not rejected.
func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	body := (&ConnectionAccepted{ClientID: 2, EntityID: 9, ServerTimeMs: 77}).append(nil)
	body = protowire.AppendTag(body, 15, protowire.BytesType)
	body = protowire.AppendString(body, "future")
	body = protowire.AppendTag(body, 16, protowire.Fixed32Type)
	body = protowire.AppendFixed32(body, 1)
	// known number with an unexpected wire type is treated as unknown
	body = protowire.AppendTag(body, 1, protowire.BytesType)
	body = protowire.AppendString(body, "x")

	env := protowire.AppendTag(nil, 30, protowire.VarintType)
	env = protowire.AppendVarint(env, 5)
	env = appendMessage(env, envConnectionAccepted, body)

	got, err := Unmarshal(env)
	require.NoError(t, err)
	assert.Equal(t, &ConnectionAccepted{ClientID: 2, EntityID: 9, ServerTimeMs: 77}, got)
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	b, err := Marshal(&Disconnect{ClientID: 1, Reason: "bye"})
	require.NoError(t, err)

	_, err = Unmarshal(b[:len(b)-2])
	assert.Error(t, err)

	_, err = Unmarshal([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)

	_, err = Unmarshal(nil)
	assert.ErrorIs(t, err, ErrEmptyEnvelope)
}

func TestMarshalRejectsNil(t *testing.T) {
	_, err := Marshal((*PlayerInput)(nil))
	assert.ErrorIs(t, err, ErrNilMessage)
	_, err = Marshal(nil)
	assert.Error(t, err)
}

func TestSnapshotConversionPreservesGameState(t *testing.T) {
	fa := true
	ctrl := game.ControlInput{Thrust: 1, Yaw: -0.5, Brake: true, FlightAssist: true}
	in := game.WorldSnapshot{
		Tick:        12,
		TimestampMs: 5000,
		Entities: []game.EntitySnapshot{
			{
				ID:               2,
				State:            game.EntityState{Pos: game.Vec2{X: 3, Y: 4}, Rot: -1, Vel: game.Vec2{X: 0.5}, AngVel: 0.1},
				LastProcessedSeq: 8,
				Health:           75,
				Control:          &ctrl,
				FlightAssist:     &fa,
			},
		},
	}
	b, err := Marshal(SnapshotFromGame(in))
	require.NoError(t, err)
	msg, err := Unmarshal(b)
	require.NoError(t, err)
	snap, ok := msg.(*WorldSnapshot)
	require.True(t, ok)
	assert.Equal(t, in, snap.ToGame())
}

func TestPlayerInputConversion(t *testing.T) {
	in := game.ControlInput{Thrust: -1, StrafeX: 0.3, Yaw: 1, FlightAssist: true, Seq: 11, TimestampMs: 999}
	assert.Equal(t, in, InputFromGame(4, in).ToGame())
}
