package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	require.NoError(t, m.Register(ctx, "alice", "conn-1"))
	require.NoError(t, m.Register(ctx, "alice", "conn-2"))
	require.NoError(t, m.Register(ctx, "bob", "conn-3"))

	conns, err := m.ConnectionsFor(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, conns)

	conns, err = m.ConnectionsFor(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestMemoryUnregister(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	require.NoError(t, m.Register(ctx, "alice", "conn-1"))
	require.NoError(t, m.Unregister(ctx, "conn-1"))
	require.NoError(t, m.Unregister(ctx, "conn-1"))
	require.NoError(t, m.Unregister(ctx, "never-existed"))

	conns, err := m.ConnectionsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestMemoryTTLExpiresStaleRows(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(20 * time.Millisecond)

	require.NoError(t, m.Register(ctx, "alice", "conn-1"))
	time.Sleep(40 * time.Millisecond)

	conns, err := m.ConnectionsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, conns)

	// Re-registering refreshes the lease.
	require.NoError(t, m.Register(ctx, "alice", "conn-1"))
	conns, err = m.ConnectionsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-1"}, conns)
}
