// Package server manages individual relay sessions: the name handshake, the
// read and write pumps, and teardown of each connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Session represents one connected peer from accept to teardown.
type Session struct {
	id       uuid.UUID
	addr     string
	conn     Conn
	registry *Registry
	cfg      *Config
	log      *slog.Logger

	// name and handle are set once the handshake succeeds and never change.
	name   string
	handle *Handle

	state     stateValue
	leaveOnce sync.Once
	closeOnce sync.Once
}

// NewSession creates a session for an upgraded connection. It does not touch
// the network until Run is called.
func NewSession(conn Conn, registry *Registry, cfg *Config, addr string, log *slog.Logger) *Session {
	if cfg == nil {
		cfg = NewConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	s := &Session{
		id:       id,
		addr:     addr,
		conn:     conn,
		registry: registry,
		cfg:      cfg,
		log:      log.With("session", id, "addr", addr),
	}
	s.state.store(StateConnecting)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Name returns the display name declared in the handshake. It is empty until
// the session becomes active.
func (s *Session) Name() string {
	return s.name
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state.load()
}

// Run performs the handshake and then relays messages until the peer goes
// away or ctx is canceled. It returns an error wrapping ErrHandshake when the
// peer never declared a name; once the session joined, Run returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.state.store(StateHandshaking)

	name, err := s.handshake(ctx)
	if err != nil {
		s.closeConn()
		s.state.store(StateClosed)
		return err
	}

	s.join(name)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx)
	}()

	s.readPump()

	s.state.store(StateClosing)
	s.leave()
	s.handle.Close()
	<-writerDone
	s.closeConn()
	s.state.store(StateClosed)
	s.log.Debug("Session closed")
	return nil
}

// handshake reads the first frame, which must be text and is taken verbatim
// as the display name.
func (s *Session) handshake(ctx context.Context) (string, error) {
	// Shutdown during the handshake unblocks the read below.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return "", fmt.Errorf("%w: set read deadline: %w", ErrHandshake, err)
	}

	messageType, data, err := s.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if messageType != websocket.TextMessage {
		return "", fmt.Errorf("%w: first frame has type %d, want text", ErrHandshake, messageType)
	}
	return string(data), nil
}

func (s *Session) join(name string) {
	s.name = name
	s.log = s.log.With("name", name)
	s.handle = NewHandle(s.cfg.SendBufferSize)

	s.registry.Register(s.handle)
	s.state.store(StateActive)

	delivered := s.registry.Broadcast([]byte(protocol.JoinNotice(name)))
	s.log.Info("Session joined", "recipients", delivered)
}

// leave deregisters the handle and tells the remaining peers. It runs at most
// once however the session ends.
func (s *Session) leave() {
	s.leaveOnce.Do(func() {
		removed, delivered := s.registry.Leave(s.handle.ID(), []byte(protocol.LeaveNotice(s.name)))
		if removed {
			s.log.Info("Session left", "recipients", delivered)
		}
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		s.log.Warn("Error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
			s.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// readPump relays every text frame to the registry until the first read error.
func (s *Session) readPump() {
	s.setupReadConnection()

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			s.log.Debug("Ignoring non-text frame", "type", messageType)
			continue
		}

		s.registry.Broadcast(message)
	}
}

// logReadError logs a read error at a level matching how ordinary it is.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("Message exceeded maximum size", "limit", s.cfg.MaxMessageSize)
	case isPeerGone(err):
		s.log.Debug("Client disconnected", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		s.log.Warn("Unexpected WebSocket close", "error", err)
	default:
		s.log.Warn("WebSocket read error", "error", err)
	}
}

// writePump drains the handle one frame per message. A failed write ends the
// pump silently; closing the connection makes the read pump notice.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.closeConn()
	}()

	for {
		select {
		case message, ok := <-s.handle.Messages():
			if !ok {
				s.writeClose(websocket.CloseNormalClosure)
				return
			}
			if !s.write(websocket.TextMessage, message) {
				return
			}
		case <-ticker.C:
			if !s.write(websocket.PingMessage, nil) {
				return
			}
		case <-ctx.Done():
			s.writeClose(websocket.CloseGoingAway)
			return
		}
	}
}

func (s *Session) write(messageType int, data []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		s.log.Debug("Error setting write deadline", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		s.log.Debug("Write failed, peer gone", "error", err)
		return false
	}
	return true
}

func (s *Session) writeClose(code int) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, "")); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Debug("Error writing close message", "error", err)
		}
	}
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Debug("Error closing connection", "error", err)
		}
	})
}
