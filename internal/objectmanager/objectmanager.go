// Package objectmanager implements the per-process object table: the
// source of truth for "is this ObjectId still valid, and is it mine".
package objectmanager

import (
	"sync"

	"github.com/kestrelio/ipcbridge/internal/objectid"
)

// LookupStatus classifies the result of a Lookup call.
type LookupStatus int

const (
	StatusOK LookupStatus = iota
	StatusNotFound
	StatusStale
	StatusNotLocal
)

type handleEntry struct {
	id       objectid.ID
	refcount uint32
	ptr      any
	isLocal  bool
}

// Manager holds the table of local and remote object references for one
// process. The zero value is not ready; use New.
type Manager struct {
	mu              sync.RWMutex
	localSessionID  uint16
	initialized     bool
	objects         map[uint64]*handleEntry
	localGeneration map[uint32]uint16
	nextLocalID     uint32
}

// New returns a Manager bound to localSessionID — this process's identity
// for the lifetime of the manager. Re-initializing (via Reset) invalidates
// every previously issued handle, per spec §9's idempotent-initialize note.
func New(localSessionID uint16) *Manager {
	return &Manager{
		localSessionID:  localSessionID,
		initialized:     true,
		objects:         make(map[uint64]*handleEntry),
		localGeneration: make(map[uint32]uint16),
		nextLocalID:     1,
	}
}

// Reset reinitializes the manager under a new local session id, dropping
// every existing entry. Safe to call at any time; not safe to assume any
// outstanding ObjectId from before the reset remains valid.
func (m *Manager) Reset(localSessionID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localSessionID = localSessionID
	m.objects = make(map[uint64]*handleEntry)
	m.localGeneration = make(map[uint32]uint16)
	m.initialized = true
}

// RegisterLocal allocates a fresh local_id, stamps the current generation
// for that id (starting at 1 the first time it's used), and stores ptr
// with refcount 1.
func (m *Manager) RegisterLocal(ptr any) objectid.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	localID := m.nextLocalID
	m.nextLocalID++

	gen, ok := m.localGeneration[localID]
	if !ok {
		gen = 1
		m.localGeneration[localID] = gen
	}

	id := objectid.ID{SessionID: m.localSessionID, Generation: gen, LocalID: localID}
	m.objects[objectid.Encode(id)] = &handleEntry{id: id, refcount: 1, ptr: ptr, isLocal: true}
	return id
}

// RegisterRemote stores a tombstone entry for proxy-side refcount
// bookkeeping on an object this process does not own.
func (m *Manager) RegisterRemote(id objectid.ID) error {
	if id.IsNull() {
		return ErrInvalidObjectID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectid.Encode(id)] = &handleEntry{id: id, refcount: 1, isLocal: false}
	return nil
}

// lookupLocked resolves id's entry, distinguishing not-found from stale
// exactly as spec §4.F requires: Stale is returned iff session_id==self
// and the stored generation for that local_id differs from the handle's.
func (m *Manager) lookupLocked(id objectid.ID) (*handleEntry, LookupStatus) {
	e, ok := m.objects[objectid.Encode(id)]
	if ok {
		return e, StatusOK
	}
	if id.SessionID == m.localSessionID {
		if gen, known := m.localGeneration[id.LocalID]; known && gen != id.Generation {
			return nil, StatusStale
		}
	}
	return nil, StatusNotFound
}

// Lookup resolves id to its local object pointer. Remote entries resolve
// with StatusNotLocal and a nil pointer.
func (m *Manager) Lookup(id objectid.ID) (any, LookupStatus) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, status := m.lookupLocked(id)
	if status != StatusOK {
		return nil, status
	}
	if !e.isLocal {
		return nil, StatusNotLocal
	}
	return e.ptr, StatusOK
}

// IsValid reports whether id currently resolves to a live entry.
func (m *Manager) IsValid(id objectid.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, status := m.lookupLocked(id)
	return status == StatusOK
}

// IsLocal reports whether id resolves to a locally owned entry.
func (m *Manager) IsLocal(id objectid.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, status := m.lookupLocked(id)
	return status == StatusOK && e.isLocal
}

// AddRef increments id's refcount. Returns the same not-found/stale
// distinction as Lookup.
func (m *Manager) AddRef(id objectid.ID) LookupStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, status := m.lookupLocked(id)
	if status != StatusOK {
		return status
	}
	e.refcount++
	return StatusOK
}

// Release decrements id's refcount; at zero the entry is removed and, for
// a locally owned object, the stored generation for that local_id is
// bumped so any other outstanding handle resolves to Stale rather than a
// different future object (§3.2).
func (m *Manager) Release(id objectid.ID) LookupStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, status := m.lookupLocked(id)
	if status != StatusOK {
		return status
	}
	e.refcount--
	if e.refcount > 0 {
		return StatusOK
	}
	delete(m.objects, objectid.Encode(id))
	if e.isLocal {
		m.localGeneration[id.LocalID] = objectid.NextGeneration(m.localGeneration[id.LocalID])
	}
	return StatusOK
}

// Unregister removes id's entry unconditionally, bumping the generation
// for a local object the same way a Release-to-zero would.
func (m *Manager) Unregister(id objectid.ID) LookupStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, status := m.lookupLocked(id)
	if status != StatusOK {
		return status
	}
	delete(m.objects, objectid.Encode(id))
	if e.isLocal {
		m.localGeneration[id.LocalID] = objectid.NextGeneration(m.localGeneration[id.LocalID])
	}
	return StatusOK
}

// Count returns the number of live entries, for telemetry.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
