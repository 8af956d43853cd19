package realtime

import (
	"fmt"
	"sync"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/pkg/metrics"
)

// Hub tracks the connections attached to this instance. A user may hold
// several connections at once (one per device); delivery to each is
// isolated from the others.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Connection            // connectionID -> connection
	byUser map[string]map[string]*Connection // userID -> connectionID -> connection
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Attach starts tracking a connection and launches its write loop.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	set := h.byUser[conn.UserID]
	if set == nil {
		set = make(map[string]*Connection)
		h.byUser[conn.UserID] = set
	}
	set[conn.ID] = conn
	h.mu.Unlock()

	conn.Start()
	metrics.WSConnectionsActive.Inc()
}

// Detach stops tracking a connection if it is still known.
func (h *Hub) Detach(connectionID string) {
	h.mu.Lock()
	conn, ok := h.conns[connectionID]
	if ok {
		delete(h.conns, connectionID)
		if set := h.byUser[conn.UserID]; set != nil {
			delete(set, connectionID)
			if len(set) == 0 {
				delete(h.byUser, conn.UserID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		metrics.WSConnectionsActive.Dec()
	}
}

// Push delivers payload to one local connection.
func (h *Hub) Push(connectionID string, payload []byte) error {
	h.mu.RLock()
	conn := h.conns[connectionID]
	h.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("connection %s not attached: %w", connectionID, model.ErrGone)
	}
	return conn.Send(payload)
}

// ConnectionsOf returns the local connections of userID.
func (h *Hub) ConnectionsOf(userID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// Close terminates every tracked connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Connection)
	h.byUser = make(map[string]map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "server shutdown")
	}
}
