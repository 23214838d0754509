package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrTransportClosed = errors.New("transport closed")

// TransportEvents are the callbacks a Transport delivers from its own
// goroutines. OnClose fires at most once, and never after a local Close.
type TransportEvents struct {
	OnMessage func(data []byte)
	OnClose   func(err error)
	OnError   func(err error)
}

// Transport is an open, message-oriented connection.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Dialer opens transports. A successful Dial means the transport is open.
type Dialer interface {
	Dial(ctx context.Context, url string, ev TransportEvents) (Transport, error)
}

const (
	defaultWriteWait = 5 * time.Second
	defaultReadLimit = 1 << 20
)

// WSDialer opens binary websocket transports with gorilla/websocket.
type WSDialer struct {
	WriteWait time.Duration
	ReadLimit int64
}

func (d WSDialer) Dial(ctx context.Context, url string, ev TransportEvents) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	readLimit := d.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	t := &wsTransport{
		conn:      conn,
		ev:        ev,
		done:      make(chan struct{}),
		writeWait: d.WriteWait,
	}
	if t.writeWait <= 0 {
		t.writeWait = defaultWriteWait
	}
	go t.readLoop()
	return t, nil
}

type wsTransport struct {
	conn      *websocket.Conn
	ev        TransportEvents
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{} // closed on local Close
	writeWait time.Duration
}

func (t *wsTransport) Send(data []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *wsTransport) readLoop() {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			t.ev.OnClose(err)
			_ = t.Close()
			return
		}
		if mt != websocket.BinaryMessage {
			t.ev.OnError(fmt.Errorf("unexpected websocket frame type %d", mt))
			continue
		}
		t.ev.OnMessage(data)
	}
}

// Close sends a close frame and releases the socket. Safe to call twice.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(t.writeWait),
		)
		err = t.conn.Close()
	})
	return err
}
