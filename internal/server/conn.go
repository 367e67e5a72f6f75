package server

import (
	"time"

	"github.com/gorilla/websocket"
)

//go:generate mockgen -destination=../mocks/mock_conn.go -package=mocks github.com/Tyrowin/relaychat/internal/server Conn

// Conn is the subset of *websocket.Conn a session uses. gorilla allows one
// concurrent reader and one concurrent writer, which is exactly how a session
// splits its work; Close may be called from either side.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)
