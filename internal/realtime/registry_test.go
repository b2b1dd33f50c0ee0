package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPrunesEmptyUsers(t *testing.T) {
	r := NewRegistry(nil)
	a, b := NewStreamChannel(1), NewStreamChannel(1)

	r.Register(9, a)
	r.Register(3, b)
	r.Register(9, a) // idempotent
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int64{3, 9}, r.Users())

	require.True(t, r.Unregister(9, a))
	assert.False(t, r.Unregister(9, a))
	assert.Equal(t, []int64{3}, r.Users())
	assert.Empty(t, r.ChannelsFor(9))
}

func TestRegistrySnapshotIsDetached(t *testing.T) {
	r := NewRegistry(nil)
	a := NewStreamChannel(1)
	r.Register(1, a)

	snapshot := r.ChannelsFor(1)
	r.Unregister(1, a)
	require.Len(t, snapshot, 1)
	assert.Equal(t, a.ID(), snapshot[0].ID())
}

func TestRegistryUnregisterUnknownUser(t *testing.T) {
	r := NewRegistry(nil)
	assert.False(t, r.Unregister(42, NewStreamChannel(1)))
}
