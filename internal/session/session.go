// Package session implements the process-wide session id coordinator:
// allocation and release of u16 session ids with a small reserved set and
// a rotating-cursor search, matching the original SessionCoordinator's
// allocation order so ids are unsurprising to an operator reading logs.
package session

import (
	"sync"

	"github.com/kestrelio/ipcbridge/internal/constants"
)

// Coordinator allocates and releases u16 session ids. The zero value is
// not ready; use New.
type Coordinator struct {
	mu        sync.Mutex
	allocated map[uint16]bool
	localID   uint16
	cursor    uint16
}

// New returns a Coordinator with the reserved ids pre-marked allocated.
func New() *Coordinator {
	c := &Coordinator{
		allocated: make(map[uint16]bool),
		cursor:    constants.MinSessionID,
	}
	c.allocated[constants.SessionIDNull] = true
	c.allocated[constants.SessionIDHost] = true
	c.allocated[constants.SessionIDBroadcast] = true
	return c
}

// IsValid reports whether id is outside the reserved set and in range.
func (c *Coordinator) IsValid(id uint16) bool {
	if id == constants.SessionIDNull || id == constants.SessionIDHost || id == constants.SessionIDBroadcast {
		return false
	}
	return id >= constants.MinSessionID && id <= constants.MaxSessionID
}

// IsAllocated reports whether id is currently allocated.
func (c *Coordinator) IsAllocated(id uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated[id]
}

// Allocate returns a fresh session id via a rotating-cursor scan,
// skipping reserved and already-allocated ids, or 0 (SessionIDNull) if
// the space is exhausted.
func (c *Coordinator) Allocate() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.cursor
	for {
		id := c.cursor
		c.cursor++
		if c.cursor > constants.MaxSessionID {
			c.cursor = constants.MinSessionID
		}
		if !c.allocated[id] {
			c.allocated[id] = true
			return id
		}
		if c.cursor == start {
			return constants.SessionIDNull
		}
	}
}

// Release frees id so it may be allocated again. No-op for reserved or
// unallocated ids.
func (c *Coordinator) Release(id uint16) {
	if !c.IsValid(id) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.allocated, id)
}

// SetLocal records this process's own session id.
func (c *Coordinator) SetLocal(id uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localID = id
}

// GetLocal returns this process's own session id.
func (c *Coordinator) GetLocal() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID
}
