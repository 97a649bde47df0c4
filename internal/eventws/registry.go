package eventws

import (
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry tracks connected host event streams.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

// Replace sets the connection for a client id and closes the previous one if present.
func (r *Registry) Replace(clientID string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[clientID]; ok && old != nil {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	r.conns[clientID] = c
	return
}

// Remove drops the client only if c is still its current connection.
func (r *Registry) Remove(clientID string, c *ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[clientID] == c {
		delete(r.conns, clientID)
	}
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every stream, used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		_ = c.Close(ws.StatusGoingAway, reason)
		delete(r.conns, id)
	}
}
