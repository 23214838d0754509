package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LightSpeedArena/internal/game"
	"LightSpeedArena/internal/session"
	"LightSpeedArena/internal/wire"
)

type testServer struct {
	hub *Hub
	srv *httptest.Server
	url string
}

func newTestServer(t *testing.T, mutate func(*AppConfig)) *testServer {
	t.Helper()
	cfg := DefaultAppConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(ctx, cfg, metrics, zap.NewNop())
	srv := httptest.NewServer(NewMux(hub))
	t.Cleanup(func() {
		cancel()
		hub.Shutdown()
		srv.Close()
	})
	return &testServer{
		hub: hub,
		srv: srv,
		url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=test",
	}
}

func dialRaw(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, m wire.Message) {
	t.Helper()
	data, err := wire.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
}

// readUntil returns the first message of type T, skipping others.
func readUntil[T wire.Message](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := wire.Unmarshal(data)
		require.NoError(t, err)
		if m, ok := msg.(T); ok {
			return m
		}
	}
}

func handshake(t *testing.T, url, name string) (*websocket.Conn, *wire.ConnectionAccepted) {
	t.Helper()
	conn := dialRaw(t, url)
	sendMsg(t, conn, &wire.ConnectionRequest{PlayerName: name, ProtocolVersion: game.ProtocolVersion})
	return conn, readUntil[*wire.ConnectionAccepted](t, conn)
}

func TestHandshakeAndSnapshots(t *testing.T) {
	ts := newTestServer(t, nil)

	conn, acc := handshake(t, ts.url, "ace")
	assert.NotZero(t, acc.ClientID)
	assert.NotZero(t, acc.EntityID)
	assert.InDelta(t, time.Now().UnixMilli(), acc.ServerTimeMs, 5000)

	snap := readUntil[*wire.WorldSnapshot](t, conn)
	next := readUntil[*wire.WorldSnapshot](t, conn)
	assert.Greater(t, next.Tick, snap.Tick)

	var own *wire.EntityRecord
	for i := range next.Entities {
		if next.Entities[i].EntityID == acc.EntityID {
			own = &next.Entities[i]
		}
	}
	require.NotNil(t, own)
	require.NotNil(t, own.Health)
	assert.Equal(t, game.DefaultPhysicsConfig().MaxHealth, *own.Health)
	assert.Equal(t, int64(1), ts.hub.Metrics.ConnectionsAccepted.Load())
}

func TestHandshakeRejectsProtocolMismatch(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialRaw(t, ts.url)
	sendMsg(t, conn, &wire.ConnectionRequest{PlayerName: "old", ProtocolVersion: game.ProtocolVersion + 1})

	bye := readUntil[*wire.Disconnect](t, conn)
	assert.Contains(t, bye.Reason, "protocol version")
	assert.Equal(t, int64(1), ts.hub.Metrics.ConnectionsRejected.Load())
}

func TestHandshakeRejectsWrongFirstMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialRaw(t, ts.url)
	sendMsg(t, conn, &wire.PlayerInput{ClientID: 1, SequenceNumber: 1})

	bye := readUntil[*wire.Disconnect](t, conn)
	assert.Contains(t, bye.Reason, "expected connection request")
}

func TestHandshakeTimeout(t *testing.T) {
	ts := newTestServer(t, func(c *AppConfig) { c.Net.HandshakeTimeout = 50 * time.Millisecond })
	conn := dialRaw(t, ts.url)

	bye := readUntil[*wire.Disconnect](t, conn)
	assert.Equal(t, "handshake failed", bye.Reason)
}

func TestRoomFull(t *testing.T) {
	ts := newTestServer(t, func(c *AppConfig) { c.Room.MaxPlayers = 1 })
	handshake(t, ts.url, "first")

	conn := dialRaw(t, ts.url)
	sendMsg(t, conn, &wire.ConnectionRequest{PlayerName: "second", ProtocolVersion: game.ProtocolVersion})
	bye := readUntil[*wire.Disconnect](t, conn)
	assert.Equal(t, game.ErrRoomFull.Error(), bye.Reason)
}

func TestMalformedMessagesDropClient(t *testing.T) {
	ts := newTestServer(t, func(c *AppConfig) { c.Net.MaxDecodeFailures = 1 })
	conn, _ := handshake(t, ts.url, "noisy")
	arena := ts.hub.GetArena("test")
	require.Equal(t, 1, arena.Room.PlayerCount())

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xff}))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xff}))

	bye := readUntil[*wire.Disconnect](t, conn)
	assert.Equal(t, "too many malformed messages", bye.Reason)
	require.Eventually(t, func() bool { return arena.Room.PlayerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), ts.hub.Metrics.DecodeFailures.Load())
}

func TestLeaveOnClose(t *testing.T) {
	ts := newTestServer(t, nil)
	conn, _ := handshake(t, ts.url, "brief")
	arena := ts.hub.GetArena("test")
	require.Equal(t, 1, arena.Room.PlayerCount())

	_ = conn.Close()
	require.Eventually(t, func() bool { return arena.Room.PlayerCount() == 0 && arena.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ts.hub.CleanupEmptyRooms())
	assert.Empty(t, ts.hub.status())
}

// A real session predicts locally; once every input is acknowledged its
// prediction must equal the server's authoritative state.
func TestSessionPredictionMatchesServer(t *testing.T) {
	ts := newTestServer(t, nil)

	var mu sync.Mutex
	baseline := false
	cfg := session.DefaultConfig()
	cfg.URL = ts.url
	cfg.PlayerName = "pilot"
	s := session.New(cfg, session.WSDialer{}, session.Listener{
		OnWorldUpdate: func([]game.EntitySnapshot, session.WorldMeta) {
			mu.Lock()
			baseline = true
			mu.Unlock()
		},
	}, zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(s.Disconnect)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return baseline
	}, 3*time.Second, 10*time.Millisecond)

	const inputs = 10
	for sent := 0; sent < inputs; {
		_, err := s.SendInput(game.ControlInput{Thrust: 1, Yaw: 0.3, FlightAssist: true})
		if err == session.ErrRateLimited {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		require.NoError(t, err)
		sent++
	}

	require.Eventually(t, func() bool { return len(s.Pending()) == 0 }, 3*time.Second, 10*time.Millisecond)

	_, entity := s.Identity()
	arena := ts.hub.GetArena("test")
	arena.Room.Mu.Lock()
	server := arena.Room.World.Body(entity).State
	lastSeq := arena.Room.World.Control(entity).LastProcessedSeq
	arena.Room.Mu.Unlock()

	assert.Equal(t, uint32(inputs), lastSeq)
	local := s.LocalState()
	assert.InDelta(t, server.Pos.X, local.Pos.X, 1e-6)
	assert.InDelta(t, server.Pos.Y, local.Pos.Y, 1e-6)
	assert.InDelta(t, server.Rot, local.Rot, 1e-6)
	assert.Greater(t, local.Vel.Len(), 0.0)
	assert.Equal(t, int64(inputs), ts.hub.Metrics.InputsAccepted.Load())
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	handshake(t, ts.url, "watcher")

	resp, err := http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var payload struct {
		Rooms   []roomStatus   `json:"rooms"`
		Metrics map[string]any `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Rooms, 1)
	assert.Equal(t, "test", payload.Rooms[0].ID)
	assert.Equal(t, 1, payload.Rooms[0].Players)
	assert.EqualValues(t, 1, payload.Metrics["connections_accepted"])
}

func TestDronesAreSimulated(t *testing.T) {
	ts := newTestServer(t, func(c *AppConfig) { c.Room.Drones = 3 })
	conn, _ := handshake(t, ts.url, "spectator")

	snap := readUntil[*wire.WorldSnapshot](t, conn)
	assert.Len(t, snap.Entities, 4)
}
