// Package server wraps a single client's WebSocket connection behind the
// Handle abstraction consumed by the session loop and broadcast engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrDisconnected is returned by Handle.Receive when the peer has gone away
// through an orderly close or an expected network teardown. It is the one
// anticipated way a session ends.
var ErrDisconnected = errors.New("connection closed by peer")

// Handle is one client's bidirectional transport channel. Send blocks until
// the frame is written, the context expires, or the write deadline fires.
// Receive blocks for the next frame and signals disconnect via
// ErrDisconnected rather than panicking or leaking transport internals.
type Handle interface {
	Send(ctx context.Context, frame []byte) error
	Receive() ([]byte, error)
	Close() error
}

type wsHandle struct {
	conn        *websocket.Conn
	sendTimeout time.Duration

	// gorilla allows at most one concurrent writer per connection.
	writeMu sync.Mutex
}

// NewWSHandle wraps an upgraded connection. maxMessageSize bounds inbound
// frames; sendTimeout bounds each individual write so one stuck peer cannot
// stall a broadcast batch.
func NewWSHandle(conn *websocket.Conn, maxMessageSize int64, sendTimeout time.Duration) Handle {
	conn.SetReadLimit(maxMessageSize)
	return &wsHandle{conn: conn, sendTimeout: sendTimeout}
}

func (h *wsHandle) Send(ctx context.Context, frame []byte) error {
	deadline := time.Now().Add(h.sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (h *wsHandle) Receive() ([]byte, error) {
	_, frame, err := h.conn.ReadMessage()
	if err != nil {
		if isExpectedCloseError(err) {
			return nil, ErrDisconnected
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return frame, nil
}

func (h *wsHandle) Close() error {
	h.writeMu.Lock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = h.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	h.writeMu.Unlock()
	return h.conn.Close()
}

// isExpectedCloseError reports whether err is part of normal connection
// teardown rather than a transport fault.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	// 1006 (abnormal closure) means the peer vanished without a close frame.
	// Browsers emit it on tab close and network drop, so it counts as a
	// disconnect here, not a transport fault.
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
