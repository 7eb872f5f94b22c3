// Package proxystub implements the client-side Proxy, the server-side
// Stub dispatcher, and the ProxyFactory that ties proxy creation to the
// remote object registry and the local object manager's refcounts.
package proxystub

import (
	"sync"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/objectmanager"
	"github.com/kestrelio/ipcbridge/internal/registry"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// Sender is the narrow contract Proxy.Invoke drives; *runloop.RunLoop
// satisfies it.
type Sender interface {
	SendRequest(hdr wire.Header, body []byte) (wire.Header, []byte, error)
}

// Proxy is the client-side stand-in for a remote object: it wraps the
// object's identity and interface, and turns a method call into a
// send_request round trip. Grounded on ProxyFactory.h's Proxy<T>.
type Proxy struct {
	factory     *ProxyFactory
	objectID    objectid.ID
	interfaceID uint32
}

// ObjectID returns the remote object this proxy addresses.
func (p *Proxy) ObjectID() objectid.ID { return p.objectID }

// InterfaceID returns the object's interface id.
func (p *Proxy) InterfaceID() uint32 { return p.interfaceID }

// Invoke serializes methodID and body into a request header targeting
// this proxy's object, sends it, and returns the response body alongside
// the error_code the peer stamped — a negative value means the remote
// call failed, not that Invoke itself failed to communicate.
func (p *Proxy) Invoke(methodID uint32, body []byte) ([]byte, int32, error) {
	hdr := wire.NewHeader()
	hdr.InterfaceID = p.interfaceID
	hdr.MethodID = methodID
	hdr.SessionID = p.objectID.SessionID
	hdr.Generation = p.objectID.Generation
	hdr.LocalID = p.objectID.LocalID

	respHdr, respBody, err := p.factory.sender.SendRequest(hdr, body)
	if err != nil {
		return nil, 0, err
	}
	return respBody, respHdr.ErrorCode, nil
}

// Release decrements this proxy's local refcount via the factory,
// releasing the cache entry and (on the last reference) notifying the
// owning peer through the wire's release opcode.
func (p *Proxy) Release() error {
	return p.factory.ReleaseProxy(p.objectID)
}

// ProxyFactory is the single entry point for obtaining a Proxy to a
// remote object: it consults the registry for existence and interface id,
// caches one Proxy per ObjectId, and keeps the object manager's tombstone
// refcount in step with the cache. Grounded on ProxyFactory.h.
type ProxyFactory struct {
	registry *registry.Registry
	objects  *objectmanager.Manager
	sender   Sender

	mu    sync.Mutex
	cache map[uint64]*Proxy
}

// NewProxyFactory returns a factory resolving object existence/interface
// id through reg, bookkeeping refcounts through objects, and placing
// outbound calls through sender.
func NewProxyFactory(reg *registry.Registry, objects *objectmanager.Manager, sender Sender) *ProxyFactory {
	return &ProxyFactory{
		registry: reg,
		objects:  objects,
		sender:   sender,
		cache:    make(map[uint64]*Proxy),
	}
}

// CreateProxy returns the Proxy for id, creating and caching one if none
// exists yet. A cache hit still bumps the object manager's refcount —
// the original's documented behavior beyond what spec.md states outright.
func (f *ProxyFactory) CreateProxy(id objectid.ID) (*Proxy, error) {
	if !f.registry.ObjectExists(id) {
		return nil, ErrObjectNotFound
	}
	key := objectid.Encode(id)

	f.mu.Lock()
	if p, ok := f.cache[key]; ok {
		f.mu.Unlock()
		f.objects.AddRef(id)
		return p, nil
	}
	f.mu.Unlock()

	info, ok := f.registry.GetInfo(id)
	if !ok {
		return nil, ErrObjectNotFound
	}

	p := &Proxy{factory: f, objectID: id, interfaceID: info.InterfaceID}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.cache[key]; ok {
		f.objects.AddRef(id)
		return existing, nil
	}
	if err := f.objects.RegisterRemote(id); err != nil {
		return nil, err
	}
	f.cache[key] = p
	return p, nil
}

// GetProxy returns an already-cached proxy for id without creating one.
func (f *ProxyFactory) GetProxy(id objectid.ID) (*Proxy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.cache[objectid.Encode(id)]
	return p, ok
}

// ReleaseProxy decrements id's refcount in the object manager. When that
// drops the entry entirely, the cache entry is dropped too and a
// MethodIDRelease call is sent to the owning peer, translating this
// side's refcount-to-zero into the wire's release opcode.
func (f *ProxyFactory) ReleaseProxy(id objectid.ID) error {
	status := f.objects.Release(id)
	if status != objectmanager.StatusOK {
		return ErrObjectNotFound
	}

	if f.objects.IsValid(id) {
		return nil
	}

	key := objectid.Encode(id)
	f.mu.Lock()
	p, ok := f.cache[key]
	delete(f.cache, key)
	f.mu.Unlock()

	if ok && f.sender != nil {
		hdr := wire.NewHeader()
		hdr.InterfaceID = p.interfaceID
		hdr.MethodID = constants.MethodIDRelease
		hdr.SessionID = id.SessionID
		hdr.Generation = id.Generation
		hdr.LocalID = id.LocalID
		_, _, _ = f.sender.SendRequest(hdr, nil)
	}
	return nil
}

// HasProxy reports whether id currently has a cached proxy.
func (f *ProxyFactory) HasProxy(id objectid.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cache[objectid.Encode(id)]
	return ok
}

// ProxyCount returns how many proxies are currently cached.
func (f *ProxyFactory) ProxyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

// ClearAllProxies empties the cache without touching the object manager.
func (f *ProxyFactory) ClearAllProxies() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[uint64]*Proxy)
}
