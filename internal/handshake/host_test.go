package handshake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/registry"
	"github.com/kestrelio/ipcbridge/internal/session"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

func newTestHost() *Host {
	h := NewHost(session.New(), registry.New())
	h.Initialize(constants.SessionIDHost)
	return h
}

func helloHeader() wire.Header {
	h := wire.NewHeader()
	h.InterfaceID = constants.IfaceHelloWelcome
	return h
}

func TestHostHandshakeFullSequence(t *testing.T) {
	h := newTestHost()

	var connected ConnectedClient
	h.SetOnClientConnected(func(c ConnectedClient) { connected = c })

	respBody, err := h.HandleMessage(helloHeader(), MarshalHelloRequest(HelloRequest{
		ProtocolVersion: constants.ProtocolVersion, PID: 99, PluginName: "p",
	}))
	require.NoError(t, err)
	welcome, err := UnmarshalWelcomeResponse(respBody)
	require.NoError(t, err)
	require.Equal(t, constants.WelcomeStatusOK, welcome.Status)
	require.NotEqual(t, constants.SessionIDNull, welcome.SessionID)

	readyHdr := wire.NewHeader()
	readyHdr.InterfaceID = constants.IfaceReady
	ackBody, err := h.HandleMessage(readyHdr, MarshalReadyRequest(ReadyRequest{SessionID: welcome.SessionID}))
	require.NoError(t, err)
	ack, err := UnmarshalReadyAck(ackBody)
	require.NoError(t, err)
	assert.Equal(t, constants.ReadyAckStatusOK, ack.Status)

	assert.True(t, h.HasClient(welcome.SessionID))
	assert.Equal(t, welcome.SessionID, connected.SessionID)
	assert.Equal(t, "p", connected.PluginName)
}

func TestHostRejectsVersionMismatch(t *testing.T) {
	h := newTestHost()
	respBody, err := h.HandleMessage(helloHeader(), MarshalHelloRequest(HelloRequest{
		ProtocolVersion: 999, PID: 1, PluginName: "p",
	}))
	require.NoError(t, err)
	welcome, err := UnmarshalWelcomeResponse(respBody)
	require.NoError(t, err)
	assert.Equal(t, constants.WelcomeStatusVersionMismatch, welcome.Status)
}

func TestHostRejectsEmptyPluginName(t *testing.T) {
	h := newTestHost()
	respBody, err := h.HandleMessage(helloHeader(), MarshalHelloRequest(HelloRequest{
		ProtocolVersion: constants.ProtocolVersion, PID: 1, PluginName: "",
	}))
	require.NoError(t, err)
	welcome, err := UnmarshalWelcomeResponse(respBody)
	require.NoError(t, err)
	assert.Equal(t, constants.WelcomeStatusInvalidName, welcome.Status)
}

func TestReadyRequestUnknownSession(t *testing.T) {
	h := newTestHost()
	readyHdr := wire.NewHeader()
	readyHdr.InterfaceID = constants.IfaceReady
	ackBody, err := h.HandleMessage(readyHdr, MarshalReadyRequest(ReadyRequest{SessionID: 12345}))
	require.NoError(t, err)
	ack, err := UnmarshalReadyAck(ackBody)
	require.NoError(t, err)
	assert.Equal(t, constants.ReadyAckStatusInvalidSession, ack.Status)
}

func TestGoodbyeDisconnectsAndReleasesSession(t *testing.T) {
	h := newTestHost()
	var disconnected uint16
	h.SetOnClientDisconnected(func(id uint16) { disconnected = id })

	welcomeBody, err := h.HandleMessage(helloHeader(), MarshalHelloRequest(HelloRequest{
		ProtocolVersion: constants.ProtocolVersion, PID: 1, PluginName: "p",
	}))
	require.NoError(t, err)
	welcome, _ := UnmarshalWelcomeResponse(welcomeBody)

	goodbyeHdr := wire.NewHeader()
	goodbyeHdr.InterfaceID = constants.IfaceGoodbye
	goodbyeHdr.SessionID = welcome.SessionID
	_, err = h.HandleMessage(goodbyeHdr, MarshalGoodbye(Goodbye{Reason: constants.GoodbyeNormalShutdown}))
	require.NoError(t, err)

	assert.False(t, h.HasClient(welcome.SessionID))
	assert.Equal(t, welcome.SessionID, disconnected)
}

func TestCheckHeartbeatsDisconnectsStaleClients(t *testing.T) {
	h := newTestHost()
	welcomeBody, _ := h.HandleMessage(helloHeader(), MarshalHelloRequest(HelloRequest{
		ProtocolVersion: constants.ProtocolVersion, PID: 1, PluginName: "p",
	}))
	welcome, _ := UnmarshalWelcomeResponse(welcomeBody)

	readyHdr := wire.NewHeader()
	readyHdr.InterfaceID = constants.IfaceReady
	_, err := h.HandleMessage(readyHdr, MarshalReadyRequest(ReadyRequest{SessionID: welcome.SessionID}))
	require.NoError(t, err)

	stale := h.CheckHeartbeats(0)
	assert.Contains(t, stale, welcome.SessionID)
	assert.False(t, h.HasClient(welcome.SessionID))
}

func TestCheckHeartbeatsKeepsLiveClients(t *testing.T) {
	h := newTestHost()
	welcomeBody, _ := h.HandleMessage(helloHeader(), MarshalHelloRequest(HelloRequest{
		ProtocolVersion: constants.ProtocolVersion, PID: 1, PluginName: "p",
	}))
	welcome, _ := UnmarshalWelcomeResponse(welcomeBody)

	readyHdr := wire.NewHeader()
	readyHdr.InterfaceID = constants.IfaceReady
	_, err := h.HandleMessage(readyHdr, MarshalReadyRequest(ReadyRequest{SessionID: welcome.SessionID}))
	require.NoError(t, err)

	stale := h.CheckHeartbeats(time.Hour)
	assert.Empty(t, stale)
	assert.True(t, h.HasClient(welcome.SessionID))
}

func TestRunHeartbeatScannerDisconnectsOnTick(t *testing.T) {
	h := newTestHost()
	welcomeBody, _ := h.HandleMessage(helloHeader(), MarshalHelloRequest(HelloRequest{
		ProtocolVersion: constants.ProtocolVersion, PID: 1, PluginName: "p",
	}))
	welcome, _ := UnmarshalWelcomeResponse(welcomeBody)
	readyHdr := wire.NewHeader()
	readyHdr.InterfaceID = constants.IfaceReady
	_, err := h.HandleMessage(readyHdr, MarshalReadyRequest(ReadyRequest{SessionID: welcome.SessionID}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.RunHeartbeatScanner(gctx, 5*time.Millisecond, 0) })
	require.NoError(t, g.Wait())

	assert.False(t, h.HasClient(welcome.SessionID))
}

func TestUnknownInterfaceIDFails(t *testing.T) {
	h := newTestHost()
	hdr := wire.NewHeader()
	hdr.InterfaceID = 99
	_, err := h.HandleMessage(hdr, nil)
	assert.ErrorIs(t, err, ErrUnknownInterface)
}
