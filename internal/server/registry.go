// Package server keeps the process-wide set of outbound handles that every
// broadcast fans out to.
package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Handle is the outbound delivery endpoint of one session. The owning session
// is the only one that closes it; the registry only delivers into it.
type Handle struct {
	id     uuid.UUID
	send   chan []byte
	mu     sync.RWMutex
	closed bool
}

// NewHandle creates an open handle whose queue holds up to buffer messages.
func NewHandle(buffer int) *Handle {
	if buffer <= 0 {
		buffer = 1
	}
	return &Handle{
		id:   uuid.New(),
		send: make(chan []byte, buffer),
	}
}

// ID returns the identifier the registry tracks this handle by.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Messages returns the queue drained by the session's writer.
func (h *Handle) Messages() <-chan []byte {
	return h.send
}

// deliver enqueues message without blocking. It reports false when the handle
// is closed or its queue is full.
func (h *Handle) deliver(message []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return false
	}

	select {
	case h.send <- message:
		return true
	default:
		return false
	}
}

// Close closes the queue. Calling it more than once is a no-op.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.send)
}

// Registry is the ordered collection of handles of all active sessions.
// Every operation runs under a single mutex, so mutations and fan-outs are
// serialized with each other.
type Registry struct {
	mu      sync.Mutex
	handles []*Handle
	log     *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log}
}

// Register appends h to the registry. Registering the same handle twice is
// ignored.
func (r *Registry) Register(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(h.id) >= 0 {
		return
	}
	r.handles = append(r.handles, h)
	r.log.Debug("Handle registered", "handle", h.id, "total", len(r.handles))
}

// Deregister removes the handle with the given id and reports whether it was
// present. Removing an unknown id is a no-op.
func (r *Registry) Deregister(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.remove(id)
}

// Broadcast delivers message to every registered handle in registration order
// and returns how many accepted it. A handle that cannot take the message is
// skipped; the fan-out always continues with the rest.
func (r *Registry) Broadcast(message []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.fanout(message)
}

// Leave removes the handle with the given id and broadcasts notice to the
// handles that remain, as one critical section. Nothing is broadcast when the
// handle was already gone.
func (r *Registry) Leave(id uuid.UUID, notice []byte) (removed bool, delivered int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.remove(id) {
		return false, 0
	}
	return true, r.fanout(notice)
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

// Contains reports whether a handle with the given id is registered.
func (r *Registry) Contains(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.indexOf(id) >= 0
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Map(r.handles, func(h *Handle, _ int) uuid.UUID { return h.id })
}

// fanout must be called with r.mu held.
func (r *Registry) fanout(message []byte) int {
	delivered := 0
	for _, h := range r.handles {
		if h.deliver(message) {
			delivered++
			continue
		}
		r.log.Debug("Dropped delivery to handle", "handle", h.id)
	}
	return delivered
}

// remove must be called with r.mu held.
func (r *Registry) remove(id uuid.UUID) bool {
	if r.indexOf(id) < 0 {
		return false
	}
	r.handles = lo.Reject(r.handles, func(h *Handle, _ int) bool { return h.id == id })
	r.log.Debug("Handle deregistered", "handle", id, "total", len(r.handles))
	return true
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(id uuid.UUID) int {
	_, index, _ := lo.FindIndexOf(r.handles, func(h *Handle) bool { return h.id == id })
	return index
}
