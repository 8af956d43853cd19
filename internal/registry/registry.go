// Package registry tracks which live connections belong to which user.
//
// Correctness does not depend on a background sweep: any push that reports
// a gone connection unregisters it immediately, and the TTL is only a
// backstop for rows orphaned by a crashed instance.
package registry

import (
	"context"
	"sync"
	"time"
)

// Registry is the connection registry consumed by the dispatcher.
type Registry interface {
	// Register upserts the connection row and refreshes its TTL.
	Register(ctx context.Context, userID, connectionID string) error

	// Unregister removes one connection row. Unknown IDs are no-ops.
	Unregister(ctx context.Context, connectionID string) error

	// ConnectionsFor returns the best-effort current connection set.
	ConnectionsFor(ctx context.Context, userID string) ([]string, error)
}

// Memory is a single-node registry used when no Redis URL is configured,
// and in tests.
type Memory struct {
	ttl time.Duration

	mu    sync.Mutex
	conns map[string]memoryRow // connectionID -> row
	users map[string]map[string]struct{}
}

type memoryRow struct {
	userID    string
	expiresAt time.Time
}

// NewMemory creates an in-memory registry with the given TTL backstop.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:   ttl,
		conns: make(map[string]memoryRow),
		users: make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Register(ctx context.Context, userID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[connectionID] = memoryRow{userID: userID, expiresAt: time.Now().Add(m.ttl)}
	set := m.users[userID]
	if set == nil {
		set = make(map[string]struct{})
		m.users[userID] = set
	}
	set[connectionID] = struct{}{}
	return nil
}

func (m *Memory) Unregister(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(connectionID)
	return nil
}

func (m *Memory) ConnectionsFor(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []string
	for connectionID := range m.users[userID] {
		row, ok := m.conns[connectionID]
		if !ok || now.After(row.expiresAt) {
			m.removeLocked(connectionID)
			continue
		}
		out = append(out, connectionID)
	}
	return out, nil
}

func (m *Memory) removeLocked(connectionID string) {
	row, ok := m.conns[connectionID]
	if !ok {
		return
	}
	delete(m.conns, connectionID)
	if set := m.users[row.userID]; set != nil {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(m.users, row.userID)
		}
	}
}
