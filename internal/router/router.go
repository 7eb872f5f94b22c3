// Package router implements the forwarding router: a pure in-process
// lookup table from (session_id, generation, local_id, interface_id) to
// whichever peer actually owns that object, plus the success/fail
// counters that feed telemetry. The router itself never touches a
// transport — it only answers "who do I ask."
package router

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// Key identifies one routable object by the same fields Message Header V2
// carries, so a route can be looked up directly off an inbound header.
type Key struct {
	ObjectID    objectid.ID
	InterfaceID uint32
}

// KeyFromHeader builds the lookup Key for an inbound frame.
func KeyFromHeader(h wire.Header) Key {
	return Key{
		ObjectID: objectid.ID{
			SessionID:  h.SessionID,
			Generation: h.Generation,
			LocalID:    h.LocalID,
		},
		InterfaceID: h.InterfaceID,
	}
}

// Target names the peer and remote identity a Key forwards to. TypeID is
// the object's full 128-bit interface guid; SessionID/ObjectID name where
// it actually lives, which may differ from the Key's session if the
// route was learned via a proxy rather than owned locally.
type Target struct {
	SessionID   uint16
	ObjectID    objectid.ID
	InterfaceID uint32
	TypeID      uuid.UUID
	Valid       bool
}

// Result is the outcome of routing one message.
type Result struct {
	Success bool
	Target  Target
	Err     error
}

// Stats is a snapshot of the router's cumulative counters.
type Stats struct {
	TotalRoutes      int
	SuccessfulRoutes uint64
	FailedRoutes     uint64
}

// Router is the mutable route table. The zero value is not ready; use New.
type Router struct {
	mu    sync.Mutex
	table map[Key]Target

	successfulRoutes uint64
	failedRoutes     uint64
}

// New returns an empty Router.
func New() *Router {
	return &Router{table: make(map[Key]Target)}
}

// AddRoute publishes or overwrites the route for key. Rejects a Target
// that is not Valid, or whose SessionID or InterfaceID is zero — matching
// ForwardingRouter::ValidateTarget, which also rejects a zero object_id.
func (r *Router) AddRoute(key Key, target Target) error {
	if !target.Valid || target.SessionID == 0 || target.InterfaceID == 0 || target.ObjectID.IsNull() {
		return ErrInvalidTarget
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[key] = target
	return nil
}

// RemoveRoute deletes key's route, if any. Reports whether one existed.
func (r *Router) RemoveRoute(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.table[key]; !ok {
		return false
	}
	delete(r.table, key)
	return true
}

// ClearRoutes empties the table without touching the counters.
func (r *Router) ClearRoutes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = make(map[Key]Target)
}

// RouteCount returns how many routes are currently published.
func (r *Router) RouteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

// HasRoute reports whether key has a published route.
func (r *Router) HasRoute(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.table[key]
	return ok
}

// FindTarget looks up key without touching the success/fail counters.
func (r *Router) FindTarget(key Key) (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.table[key]
	return t, ok
}

// FindAllTargets returns every currently published target.
func (r *Router) FindAllTargets() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Target, 0, len(r.table))
	for _, t := range r.table {
		out = append(out, t)
	}
	return out
}

// RouteMessage looks up the target for hdr and records the outcome in the
// success/fail counters — the one call the run-loop's dispatcher actually
// makes per inbound frame. Grounded on ForwardingRouter::RouteMessage.
func (r *Router) RouteMessage(hdr wire.Header) Result {
	key := KeyFromHeader(hdr)

	r.mu.Lock()
	target, ok := r.table[key]
	if ok {
		r.successfulRoutes++
	} else {
		r.failedRoutes++
	}
	r.mu.Unlock()

	if !ok {
		return Result{Success: false, Err: ErrNoRoute}
	}
	return Result{Success: true, Target: target}
}

// Stats returns a snapshot of the route count and cumulative counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		TotalRoutes:      len(r.table),
		SuccessfulRoutes: r.successfulRoutes,
		FailedRoutes:     r.failedRoutes,
	}
}
