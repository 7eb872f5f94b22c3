package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelio/ipcbridge/internal/constants"
)

func TestChildHappyPath(t *testing.T) {
	c := NewChild()
	assert.Equal(t, StateDisconnected, c.State())

	req := c.CreateHelloRequest(100, "plug")
	assert.Equal(t, StateHelloSent, c.State())
	assert.Equal(t, constants.ProtocolVersion, req.ProtocolVersion)

	require.NoError(t, c.ProcessWelcomeResponse(WelcomeResponse{SessionID: 5, Status: constants.WelcomeStatusOK}))
	assert.Equal(t, StateWelcomeRecv, c.State())
	assert.Equal(t, uint16(5), c.SessionID())

	readyReq := c.CreateReadyRequest()
	assert.Equal(t, StateReadySent, c.State())
	assert.Equal(t, uint16(5), readyReq.SessionID)

	require.NoError(t, c.ProcessReadyAck(ReadyAck{Status: constants.ReadyAckStatusOK}))
	assert.Equal(t, StateConnected, c.State())
}

func TestChildFailsOnWelcomeOutOfOrder(t *testing.T) {
	c := NewChild()
	err := c.ProcessWelcomeResponse(WelcomeResponse{SessionID: 1, Status: constants.WelcomeStatusOK})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateFailed, c.State())
}

func TestChildFailsOnWelcomeBadStatus(t *testing.T) {
	c := NewChild()
	c.CreateHelloRequest(1, "p")
	err := c.ProcessWelcomeResponse(WelcomeResponse{Status: constants.WelcomeStatusTooManyClients})
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Equal(t, StateFailed, c.State())
}

func TestChildFailsOnReadyAckOutOfOrder(t *testing.T) {
	c := NewChild()
	c.CreateHelloRequest(1, "p")
	require.NoError(t, c.ProcessWelcomeResponse(WelcomeResponse{SessionID: 3, Status: constants.WelcomeStatusOK}))
	err := c.ProcessReadyAck(ReadyAck{Status: constants.ReadyAckStatusOK})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestChildResetReturnsToDisconnected(t *testing.T) {
	c := NewChild()
	c.CreateHelloRequest(1, "p")
	c.Reset()
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, uint16(0), c.SessionID())
}
