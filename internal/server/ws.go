package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LightSpeedArena/internal/game"
	"LightSpeedArena/internal/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var errHandshake = errors.New("handshake rejected")

// reject writes a Disconnect and closes the socket. Only used before the
// write pump starts.
func reject(conn *websocket.Conn, writeWait time.Duration, reason string) {
	if data, err := wire.Marshal(&wire.Disconnect{Reason: reason}); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.BinaryMessage, data)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	_ = conn.Close()
}

// readHandshake waits for the ConnectionRequest that must open every session.
func readHandshake(conn *websocket.Conn, timeout time.Duration) (*wire.ConnectionRequest, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	mt, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read connection request: %w", err)
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: expected binary frame, got %d", errHandshake, mt)
	}
	msg, err := wire.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errHandshake, err)
	}
	req, ok := msg.(*wire.ConnectionRequest)
	if !ok {
		return nil, fmt.Errorf("%w: expected connection request, got %T", errHandshake, msg)
	}
	if req.ProtocolVersion != game.ProtocolVersion {
		return req, fmt.Errorf("%w: protocol version %d, server speaks %d", errHandshake, req.ProtocolVersion, game.ProtocolVersion)
	}
	return req, conn.SetReadDeadline(time.Time{})
}

func serveWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "default"
	}
	netCfg := h.cfg.Net

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(netCfg.ReadLimit)
	log := h.log.With(zap.String("room", roomID), zap.String("remote", r.RemoteAddr))

	req, err := readHandshake(conn, netCfg.HandshakeTimeout)
	if err != nil {
		h.Metrics.ConnectionsRejected.Add(1)
		log.Info("handshake failed", zap.Error(err))
		reason := "handshake failed"
		if errors.Is(err, errHandshake) {
			reason = err.Error()
		}
		reject(conn, netCfg.WriteWait, reason)
		return
	}

	arena, player, c, err := h.Join(roomID, req.PlayerName, req.ShipClass)
	if err != nil {
		h.Metrics.ConnectionsRejected.Add(1)
		log.Info("join refused", zap.String("player", req.PlayerName), zap.Error(err))
		reject(conn, netCfg.WriteWait, err.Error())
		return
	}
	log = log.With(zap.Uint32("client", player.ClientID))

	defer func() {
		arena.detach(c)
		arena.Room.Leave(player.ClientID)
		c.close()
	}()

	accepted, err := wire.Marshal(&wire.ConnectionAccepted{
		ClientID:     player.ClientID,
		EntityID:     uint32(player.Ship),
		ServerTimeMs: time.Now().UnixMilli(),
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(netCfg.WriteWait))
		err = conn.WriteMessage(websocket.BinaryMessage, accepted)
	}
	if err != nil {
		log.Warn("send connection accepted failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	h.Metrics.connectionAccepted()
	log.Info("client connected", zap.String("player", player.Name), zap.String("class", player.Class))

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		writePump(conn, c, netCfg.WriteWait, log)
	}()
	readPump(conn, arena.Room, c, netCfg.MaxDecodeFailures, h.Metrics, log)
	c.close()
	<-pumpDone
	log.Info("client disconnected")
}

// writePump owns all writes after the handshake.
func writePump(conn *websocket.Conn, c *client, writeWait time.Duration, log *zap.Logger) {
	defer conn.Close()
	for {
		select {
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Debug("write failed", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			select {
			case data := <-c.final:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.BinaryMessage, data)
			default:
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump feeds PlayerInput into the room until the socket fails or the
// client exceeds maxFailures consecutive undecodable frames.
func readPump(conn *websocket.Conn, room *game.Room, c *client, maxFailures int, metrics *Metrics, log *zap.Logger) {
	failures := 0
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}

		var msg wire.Message
		if mt == websocket.BinaryMessage {
			msg, err = wire.Unmarshal(data)
		} else {
			err = fmt.Errorf("unexpected frame type %d", mt)
		}
		if err != nil {
			failures++
			metrics.DecodeFailures.Add(1)
			log.Warn("undecodable message", zap.Int("consecutive", failures), zap.Error(err))
			if failures > maxFailures {
				c.kick("too many malformed messages")
				return
			}
			continue
		}
		failures = 0

		switch m := msg.(type) {
		case *wire.PlayerInput:
			if m.ClientID != c.id {
				log.Debug("input client id mismatch", zap.Uint32("claimed", m.ClientID))
			}
			verdict := room.EnqueueInput(c.id, m.ToGame())
			metrics.inputVerdict(verdict)
			if verdict != game.InputAccepted {
				log.Debug("input not queued", zap.Uint32("seq", m.SequenceNumber), zap.Stringer("verdict", verdict))
			}
		case *wire.Disconnect:
			return
		default:
			log.Debug("ignoring message", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}
