// Package registry implements the remote object registry: a three-index
// table (by ObjectId, by name, by interface id) that every implementation
// of this protocol must compute identically, since interface_id is
// derived deterministically from a 128-bit Guid.
package registry

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/kestrelio/ipcbridge/internal/objectid"
)

// Guid is the full 128-bit interface type id carried in RemoteObjectInfo.
type Guid = uuid.UUID

// Info describes one published remote object.
type Info struct {
	IID         Guid
	InterfaceID uint32
	ObjectID    objectid.ID
	SessionID   uint16
	Name        string
	Version     uint16
}

// ComputeInterfaceID hashes guid's bytes, reordered into the Microsoft
// mixed-endian layout (u32 data1 LE, u16 data2 LE, u16 data3 LE, 8 bytes
// data4), with FNV-1a (offset 0x811c9dc5, prime 0x01000193). This exact
// byte order is what makes the result identical across every independent
// implementation of this protocol.
func ComputeInterfaceID(guid Guid) uint32 {
	raw := [16]byte(guid) // uuid.UUID is big-endian RFC 4122 byte order
	var mixed [16]byte
	// data1: bytes 0-3, byte-swapped to little-endian
	mixed[0], mixed[1], mixed[2], mixed[3] = raw[3], raw[2], raw[1], raw[0]
	// data2: bytes 4-5, byte-swapped
	mixed[4], mixed[5] = raw[5], raw[4]
	// data3: bytes 6-7, byte-swapped
	mixed[6], mixed[7] = raw[7], raw[6]
	// data4: bytes 8-15, unchanged
	copy(mixed[8:16], raw[8:16])

	h := fnv.New32a()
	h.Write(mixed[:])
	return h.Sum32()
}

type entry struct {
	info Info
}

// Registry is the mutable three-index table. The zero value is not ready;
// use New.
type Registry struct {
	mu          sync.Mutex
	byObjectID  map[uint64]*entry
	byName      map[string]*entry
	byInterface map[uint32][]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byObjectID:  make(map[uint64]*entry),
		byName:      make(map[string]*entry),
		byInterface: make(map[uint32][]*entry),
	}
}

// RegisterOptions carries Register's optional arguments.
type RegisterOptions struct {
	// InterfaceID overrides the computed FNV-1a value when non-zero,
	// matching spec §4.G's "if interface_id not supplied, compute it".
	InterfaceID uint32
}

// Register publishes id under name with interface iid, session sessionID,
// and version. If opts.InterfaceID is zero, the interface id is computed
// from iid. Fails with ErrDuplicateElement on an existing ObjectId or an
// existing name; an empty name is rejected outright.
func (r *Registry) Register(id objectid.ID, iid Guid, sessionID uint16, name string, version uint16, opts RegisterOptions) (Info, error) {
	if name == "" {
		return Info{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := objectid.Encode(id)
	if _, exists := r.byObjectID[key]; exists {
		return Info{}, ErrDuplicateElement
	}
	if _, exists := r.byName[name]; exists {
		return Info{}, ErrDuplicateElement
	}

	ifaceID := opts.InterfaceID
	if ifaceID == 0 {
		ifaceID = ComputeInterfaceID(iid)
	}

	info := Info{
		IID:         iid,
		InterfaceID: ifaceID,
		ObjectID:    id,
		SessionID:   sessionID,
		Name:        name,
		Version:     version,
	}
	e := &entry{info: info}
	r.byObjectID[key] = e
	r.byName[name] = e
	r.byInterface[ifaceID] = append(r.byInterface[ifaceID], e)
	return info, nil
}

func (r *Registry) removeFromInterfaceIndexLocked(e *entry) {
	list := r.byInterface[e.info.InterfaceID]
	for i, cand := range list {
		if cand == e {
			r.byInterface[e.info.InterfaceID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.byInterface[e.info.InterfaceID]) == 0 {
		delete(r.byInterface, e.info.InterfaceID)
	}
}

// Unregister removes id from all three indices. No-op (returns
// ErrObjectNotFound) if id is not registered.
func (r *Registry) Unregister(id objectid.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := objectid.Encode(id)
	e, ok := r.byObjectID[key]
	if !ok {
		return ErrObjectNotFound
	}
	delete(r.byObjectID, key)
	delete(r.byName, e.info.Name)
	r.removeFromInterfaceIndexLocked(e)
	return nil
}

// UnregisterAllFromSession removes every object published under
// sessionID — called when a peer disconnects (spec §4.I step 4).
func (r *Registry) UnregisterAllFromSession(sessionID uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var toRemove []*entry
	for _, e := range r.byObjectID {
		if e.info.SessionID == sessionID {
			toRemove = append(toRemove, e)
		}
	}
	for _, e := range toRemove {
		delete(r.byObjectID, objectid.Encode(e.info.ObjectID))
		delete(r.byName, e.info.Name)
		r.removeFromInterfaceIndexLocked(e)
	}
	return len(toRemove)
}

// LookupByName resolves a registered object by its unique name.
func (r *Registry) LookupByName(name string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// LookupByInterface returns every object registered under interfaceID.
func (r *Registry) LookupByInterface(interfaceID uint32) []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byInterface[interfaceID]
	out := make([]Info, len(list))
	for i, e := range list {
		out[i] = e.info
	}
	return out
}

// GetInfo resolves a registered object by its ObjectId.
func (r *Registry) GetInfo(id objectid.ID) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byObjectID[objectid.Encode(id)]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// ListAll returns every registered object.
func (r *Registry) ListAll() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.byObjectID))
	for _, e := range r.byObjectID {
		out = append(out, e.info)
	}
	return out
}

// ListBySession returns every object registered under sessionID.
func (r *Registry) ListBySession(sessionID uint16) []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Info
	for _, e := range r.byObjectID {
		if e.info.SessionID == sessionID {
			out = append(out, e.info)
		}
	}
	return out
}

// ObjectExists reports whether id is currently registered.
func (r *Registry) ObjectExists(id objectid.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byObjectID[objectid.Encode(id)]
	return ok
}

// Count returns the number of registered objects.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byObjectID)
}

// Clear empties all three indices.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byObjectID = make(map[uint64]*entry)
	r.byName = make(map[string]*entry)
	r.byInterface = make(map[uint32][]*entry)
}
