package session

import (
	"testing"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/stretchr/testify/assert"
)

func TestAllocateSkipsReserved(t *testing.T) {
	c := New()
	id := c.Allocate()
	assert.NotEqual(t, constants.SessionIDNull, id)
	assert.NotEqual(t, constants.SessionIDHost, id)
	assert.NotEqual(t, constants.SessionIDBroadcast, id)
	assert.True(t, c.IsAllocated(id))
}

func TestAllocateNeverReturnsSameIDTwice(t *testing.T) {
	c := New()
	seen := make(map[uint16]bool)
	for i := 0; i < 100; i++ {
		id := c.Allocate()
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
}

func TestReleaseAllowsReallocation(t *testing.T) {
	c := New()
	id := c.Allocate()
	c.Release(id)
	assert.False(t, c.IsAllocated(id))
}

func TestReleaseIgnoresReserved(t *testing.T) {
	c := New()
	c.Release(constants.SessionIDHost)
	assert.True(t, c.IsAllocated(constants.SessionIDHost))
}

func TestIsValid(t *testing.T) {
	c := New()
	assert.False(t, c.IsValid(constants.SessionIDNull))
	assert.False(t, c.IsValid(constants.SessionIDHost))
	assert.False(t, c.IsValid(constants.SessionIDBroadcast))
	assert.True(t, c.IsValid(100))
}

func TestLocalSessionID(t *testing.T) {
	c := New()
	c.SetLocal(42)
	assert.Equal(t, uint16(42), c.GetLocal())
}
