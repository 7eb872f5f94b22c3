package proxystub

import (
	"sync"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/objectmanager"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// MethodHandler implements one interface_id/method_id pair against the
// local object resolved from the request header. It returns the
// serialized return value and an error_code (0 on success).
type MethodHandler func(target any, body []byte) (respBody []byte, errorCode int32)

type methodKey struct {
	interfaceID uint32
	methodID    uint32
}

// Stub binds a run-loop's RequestHandler slot to local objects: it
// resolves the wire ObjectId to whatever RegisterLocal handed back,
// dispatches by (interface_id, method_id), and translates the reserved
// release opcode into object_manager.Release directly, never reaching a
// registered MethodHandler. Grounded on spec §4.L's stub description;
// no equivalent concrete class exists in the original — IPCProxyBase
// models only the proxy half, so the dispatch table here is this
// package's own design, still following the original's resolve-then-
// dispatch shape.
type Stub struct {
	objects *objectmanager.Manager

	mu      sync.Mutex
	methods map[methodKey]MethodHandler
}

// NewStub returns a Stub resolving objects through objects.
func NewStub(objects *objectmanager.Manager) *Stub {
	return &Stub{objects: objects, methods: make(map[methodKey]MethodHandler)}
}

// RegisterMethod installs the handler invoked for interfaceID/methodID.
func (s *Stub) RegisterMethod(interfaceID, methodID uint32, h MethodHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[methodKey{interfaceID, methodID}] = h
}

// Dispatch is the run-loop RequestHandler this Stub exposes: it resolves
// the header's ObjectId, handles MethodIDRelease inline, otherwise looks
// up and invokes the registered handler, recovering a handler panic into
// ErrorCodeInternalFatalError exactly as spec §4.L's exception-to-result-
// type boundary requires.
func (s *Stub) Dispatch(hdr wire.Header, body []byte) (respBody []byte, errorCode int32) {
	id := objectid.ID{SessionID: hdr.SessionID, Generation: hdr.Generation, LocalID: hdr.LocalID}

	target, status := s.objects.Lookup(id)
	switch status {
	case objectmanager.StatusStale:
		return nil, ErrorCodeStaleObjectHandle
	case objectmanager.StatusNotFound, objectmanager.StatusNotLocal:
		return nil, ErrorCodeObjectNotFound
	}

	if hdr.MethodID == constants.MethodIDRelease {
		s.objects.Release(id)
		return nil, 0
	}

	s.mu.Lock()
	handler, ok := s.methods[methodKey{hdr.InterfaceID, hdr.MethodID}]
	s.mu.Unlock()
	if !ok {
		return nil, ErrorCodeNoInterface
	}

	return s.invoke(handler, target, body)
}

func (s *Stub) invoke(handler MethodHandler, target any, body []byte) (respBody []byte, errorCode int32) {
	defer func() {
		if r := recover(); r != nil {
			respBody, errorCode = nil, ErrorCodeInternalFatalError
		}
	}()
	return handler(target, body)
}
