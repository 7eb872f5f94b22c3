package proxystub

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/objectmanager"
	"github.com/kestrelio/ipcbridge/internal/registry"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

type fakeSender struct {
	calls []wire.Header
	resp  wire.Header
	body  []byte
	err   error
}

func (f *fakeSender) SendRequest(hdr wire.Header, body []byte) (wire.Header, []byte, error) {
	f.calls = append(f.calls, hdr)
	if f.err != nil {
		return wire.Header{}, nil, f.err
	}
	resp := f.resp
	resp.CallID = hdr.CallID
	return resp, f.body, nil
}

func setup(t *testing.T) (*registry.Registry, *objectmanager.Manager, objectid.ID) {
	t.Helper()
	reg := registry.New()
	objs := objectmanager.New(1)

	id := objectid.ID{SessionID: 1, Generation: 1, LocalID: 1}
	_, err := reg.Register(id, uuid.New(), 1, "obj", 1, registry.RegisterOptions{InterfaceID: 55})
	require.NoError(t, err)
	return reg, objs, id
}

func TestCreateProxyCachesAndBumpsRefcount(t *testing.T) {
	reg, objs, id := setup(t)
	sender := &fakeSender{}
	f := NewProxyFactory(reg, objs, sender)

	p1, err := f.CreateProxy(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(55), p1.InterfaceID())

	p2, err := f.CreateProxy(id)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, f.ProxyCount())
}

func TestCreateProxyRejectsUnknownObject(t *testing.T) {
	reg := registry.New()
	objs := objectmanager.New(1)
	f := NewProxyFactory(reg, objs, &fakeSender{})

	_, err := f.CreateProxy(objectid.ID{SessionID: 1, Generation: 1, LocalID: 99})
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestProxyInvokeRoundTrip(t *testing.T) {
	reg, objs, id := setup(t)
	sender := &fakeSender{resp: wire.Header{ErrorCode: 0}, body: []byte("ok")}
	f := NewProxyFactory(reg, objs, sender)

	p, err := f.CreateProxy(id)
	require.NoError(t, err)

	respBody, errorCode, err := p.Invoke(3, []byte("req"))
	require.NoError(t, err)
	assert.Equal(t, int32(0), errorCode)
	assert.Equal(t, "ok", string(respBody))
	require.Len(t, sender.calls, 1)
	assert.Equal(t, uint32(55), sender.calls[0].InterfaceID)
	assert.Equal(t, uint32(3), sender.calls[0].MethodID)
}

func TestReleaseProxySendsWireReleaseOnLastRef(t *testing.T) {
	reg, objs, id := setup(t)
	sender := &fakeSender{}
	f := NewProxyFactory(reg, objs, sender)

	_, err := f.CreateProxy(id)
	require.NoError(t, err)

	require.NoError(t, f.ReleaseProxy(id))
	assert.False(t, f.HasProxy(id))
	require.Len(t, sender.calls, 1)
	assert.Equal(t, constants.MethodIDRelease, sender.calls[0].MethodID)
}

func TestReleaseProxyKeepsCacheUntilLastRef(t *testing.T) {
	reg, objs, id := setup(t)
	sender := &fakeSender{}
	f := NewProxyFactory(reg, objs, sender)

	_, err := f.CreateProxy(id)
	require.NoError(t, err)
	_, err = f.CreateProxy(id) // second ref
	require.NoError(t, err)

	require.NoError(t, f.ReleaseProxy(id))
	assert.True(t, f.HasProxy(id))
	assert.Empty(t, sender.calls)

	require.NoError(t, f.ReleaseProxy(id))
	assert.False(t, f.HasProxy(id))
}

func TestClearAllProxies(t *testing.T) {
	reg, objs, id := setup(t)
	f := NewProxyFactory(reg, objs, &fakeSender{})
	_, err := f.CreateProxy(id)
	require.NoError(t, err)

	f.ClearAllProxies()
	assert.Equal(t, 0, f.ProxyCount())
}
