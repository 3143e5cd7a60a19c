package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"payengine/internal/domain"
)

// ErrClosed is returned by Send and Receive when no connection is open.
var ErrClosed = errors.New("transport closed")

// WebSocket is a domain.Transport over a single gorilla/websocket connection.
type WebSocket struct {
	Dialer *websocket.Dialer
	Header http.Header
	log    *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var _ domain.Transport = (*WebSocket)(nil)

// NewWebSocket returns a transport using the default dialer.
func NewWebSocket(log *zap.Logger) *WebSocket {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocket{Dialer: websocket.DefaultDialer, log: log}
}

func (w *WebSocket) current() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

// Connect dials url, replacing any previous connection.
func (w *WebSocket) Connect(ctx context.Context, url string) error {
	conn, resp, err := w.Dialer.DialContext(ctx, url, w.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial socket: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial socket: %w", err)
	}

	w.mu.Lock()
	prev := w.conn
	w.conn = conn
	w.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	w.log.Debug("socket connected", zap.String("host", conn.RemoteAddr().String()))
	return nil
}

// Send writes frame as a single text message.
func (w *WebSocket) Send(ctx context.Context, frame []byte) error {
	conn := w.current()
	if conn == nil {
		return ErrClosed
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive blocks for the next text or binary message.
//
// ctx is checked after the connection is picked, so a reader whose ctx was
// cancelled by a reconnect never reads from the replacement connection.
func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	conn := w.current()
	if conn == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		if w.current() != conn {
			return nil, ErrClosed
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("socket closed by host: %w", err)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return msg, nil
}

// Close sends a close frame and drops the connection. It is safe to call
// more than once.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return conn.Close()
}
