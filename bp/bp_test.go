package bp

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAssignsLowestFreeID(t *testing.T) {
	m := NewManager()

	for want := 0; want < 5; want++ {
		id, err := m.Add(uint64(0x1000 + want))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	m.Remove(2)
	m.Remove(0)

	id, err := m.Add(0xdead)
	require.NoError(t, err)
	assert.Equal(t, 0, id, "lowest freed id is reused first")
	id, err = m.Add(0xbeef)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	id, err = m.Add(0xcafe)
	require.NoError(t, err)
	assert.Equal(t, 5, id)
}

func TestListStaysSortedAndUnique(t *testing.T) {
	m := NewManager()
	for i := 0; i < 10; i++ {
		_, err := m.Add(uint64(i))
		require.NoError(t, err)
	}
	// Punch holes and refill out of order.
	m.Remove(7)
	m.Remove(1)
	m.Remove(4)
	for i := 0; i < 3; i++ {
		_, err := m.Add(uint64(0x100 + i))
		require.NoError(t, err)
	}

	pts := m.All()
	assert.True(t, sort.SliceIsSorted(pts, func(i, j int) bool { return pts[i].ID < pts[j].ID }))
	seen := make(map[int]bool)
	for _, b := range pts {
		assert.GreaterOrEqual(t, b.ID, 0)
		assert.Less(t, b.ID, MaxBreakpoints)
		assert.False(t, seen[b.ID], "duplicate id %d", b.ID)
		seen[b.ID] = true
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	m := NewManager()
	_, err := m.Add(0x1000)
	require.NoError(t, err)

	m.Remove(42)
	m.Remove(-1)
	require.Len(t, m.All(), 1)
	assert.Equal(t, Breakpoint{ID: 0, Address: 0x1000}, m.All()[0])
}

func TestExhaustionIsRecoverable(t *testing.T) {
	m := NewManager()
	for i := 0; i < MaxBreakpoints; i++ {
		_, err := m.Add(uint64(i))
		require.NoError(t, err)
	}

	_, err := m.Add(0xffff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")

	// Freeing one slot makes Add work again.
	m.Remove(512)
	id, err := m.Add(0xffff)
	require.NoError(t, err)
	assert.Equal(t, 512, id)
}
