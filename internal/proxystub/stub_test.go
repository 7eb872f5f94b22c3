package proxystub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/objectmanager"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

func headerFor(id objectid.ID, interfaceID, methodID uint32) wire.Header {
	h := wire.NewHeader()
	h.SessionID = id.SessionID
	h.Generation = id.Generation
	h.LocalID = id.LocalID
	h.InterfaceID = interfaceID
	h.MethodID = methodID
	return h
}

func TestStubDispatchesToRegisteredHandler(t *testing.T) {
	objs := objectmanager.New(1)
	id := objs.RegisterLocal(new(int))

	s := NewStub(objs)
	s.RegisterMethod(7, 3, func(target any, body []byte) ([]byte, int32) {
		p := target.(*int)
		*p = 100
		return []byte("done"), 0
	})

	respBody, code := s.Dispatch(headerFor(id, 7, 3), nil)
	assert.Equal(t, int32(0), code)
	assert.Equal(t, "done", string(respBody))
}

func TestStubReturnsObjectNotFound(t *testing.T) {
	objs := objectmanager.New(1)
	s := NewStub(objs)

	unknown := objectid.ID{SessionID: 1, Generation: 1, LocalID: 999}
	_, code := s.Dispatch(headerFor(unknown, 7, 3), nil)
	assert.Equal(t, ErrorCodeObjectNotFound, code)
}

func TestStubReturnsStaleObjectHandle(t *testing.T) {
	objs := objectmanager.New(1)
	id := objs.RegisterLocal(new(int))
	require.Equal(t, objectmanager.StatusOK, objs.Release(id))

	s := NewStub(objs)
	_, code := s.Dispatch(headerFor(id, 7, 3), nil)
	assert.Equal(t, ErrorCodeStaleObjectHandle, code)
}

func TestStubReturnsNoInterfaceForUnregisteredMethod(t *testing.T) {
	objs := objectmanager.New(1)
	id := objs.RegisterLocal(new(int))
	s := NewStub(objs)

	_, code := s.Dispatch(headerFor(id, 7, 3), nil)
	assert.Equal(t, ErrorCodeNoInterface, code)
}

func TestStubRecoversHandlerPanic(t *testing.T) {
	objs := objectmanager.New(1)
	id := objs.RegisterLocal(new(int))
	s := NewStub(objs)
	s.RegisterMethod(7, 3, func(target any, body []byte) ([]byte, int32) {
		panic("boom")
	})

	respBody, code := s.Dispatch(headerFor(id, 7, 3), nil)
	assert.Nil(t, respBody)
	assert.Equal(t, ErrorCodeInternalFatalError, code)
}

func TestStubTranslatesReleaseOpcode(t *testing.T) {
	objs := objectmanager.New(1)
	id := objs.RegisterLocal(new(int))
	s := NewStub(objs)

	_, code := s.Dispatch(headerFor(id, 7, constants.MethodIDRelease), nil)
	assert.Equal(t, int32(0), code)
	assert.False(t, objs.IsValid(id))
}
