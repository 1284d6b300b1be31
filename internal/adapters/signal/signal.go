package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 64 * 1024
	defaultBuffer  = 32
)

// Dialer opens the meeting's websocket signaling channel.
// It implements core.SignalDialer.
type Dialer struct {
	URL        string
	Header     http.Header
	SendBuffer int
	// PingPeriod of zero disables keepalive pings.
	PingPeriod time.Duration
	WS         *websocket.Dialer
}

func (d *Dialer) Dial(ctx context.Context, onFrame func(core.Frame), onClosed func(error)) (core.SignalConnection, error) {
	ws := d.WS
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	conn, _, err := ws.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial signaling %s: %w", d.URL, err)
	}
	log.Info().Str("module", "signal").Str("url", d.URL).Msg("signaling connected")

	size := d.SendBuffer
	if size <= 0 {
		size = defaultBuffer
	}
	c := &WsSignalConn{
		conn:     conn,
		send:     make(chan core.Frame, size),
		onClosed: onClosed,
	}
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.writePump(ctx, d.PingPeriod)
	go c.readPump(ctx, d.PingPeriod, onFrame)
	return c, nil
}

// WsSignalConn is the client side of the signaling websocket.
// It implements core.SignalConnection.
type WsSignalConn struct {
	conn     *websocket.Conn
	send     chan core.Frame
	cancel   context.CancelFunc
	onClosed func(error)

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close shuts the channel down locally. onClosed fires with a nil error.
func (c *WsSignalConn) Close() { c.shutdown(nil) }

func (c *WsSignalConn) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.cancel()
	if cause == nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"),
			time.Now().Add(writeWait))
	}
	_ = c.conn.Close()

	c.once.Do(func() {
		if c.onClosed != nil {
			c.onClosed(cause)
		}
	})
}
