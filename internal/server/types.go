package server

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateHandshaking
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type stateValue struct {
	v atomic.Int32
}

func (s *stateValue) load() State { return State(s.v.Load()) }
func (s *stateValue) store(st State) { s.v.Store(int32(st)) }

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, io.EOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// isPeerGone reports whether a read error is the ordinary end of a connection
// rather than a protocol fault.
func isPeerGone(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		isExpectedCloseError(err)
}
