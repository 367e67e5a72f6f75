// Package server coordinates session startup and shutdown for the relay via
// the Hub type, which owns the process-wide Registry.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub accepts upgraded connections, runs one Session per connection against a
// shared Registry, and tracks running sessions so shutdown can wait for them.
type Hub struct {
	cfg      *Config
	log      *slog.Logger
	registry *Registry
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders session tracking against Shutdown so no session starts after
	// the wait began.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub ready to serve WebSocket requests.
func NewHub(cfg *Config, log *slog.Logger) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	policy := newOriginPolicy(cfg.Origins(), log)

	return &Hub{
		cfg:      cfg,
		log:      log,
		registry: NewRegistry(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Registry returns the registry shared by all sessions of this hub.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ServeWS upgrades the request and runs the session on the calling goroutine
// until the peer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	if err := h.Serve(conn, r.RemoteAddr); err != nil {
		h.log.Debug("Connection discarded", "addr", r.RemoteAddr, "error", err)
	}
}

// Serve runs a session over an already upgraded connection. It returns
// ErrHubClosed after shutdown began, or the session's handshake error.
func (h *Hub) Serve(conn Conn, addr string) error {
	if !h.track() {
		_ = conn.Close()
		return ErrHubClosed
	}
	defer h.wg.Done()

	session := NewSession(conn, h.registry, h.cfg, addr, h.log)
	return session.Run(h.ctx)
}

func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return false
	}
	h.wg.Add(1)
	return true
}

// Shutdown closes every session and waits for them to finish, or until the
// timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some sessions may still be running", "remaining", h.registry.Len())
		return context.DeadlineExceeded
	}
}
