package handshake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloRequestRoundTrip(t *testing.T) {
	req := HelloRequest{ProtocolVersion: 1, PID: 4242, PluginName: "example.plugin"}
	out, err := UnmarshalHelloRequest(MarshalHelloRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, out)
}

func TestHelloRequestTruncatesOverlongPluginName(t *testing.T) {
	long := strings.Repeat("x", 200)
	req := HelloRequest{ProtocolVersion: 1, PID: 1, PluginName: long}
	out, err := UnmarshalHelloRequest(MarshalHelloRequest(req))
	require.NoError(t, err)
	assert.Less(t, len(out.PluginName), 64)
}

func TestWelcomeResponseRoundTrip(t *testing.T) {
	resp := WelcomeResponse{SessionID: 7, Status: 0}
	out, err := UnmarshalWelcomeResponse(MarshalWelcomeResponse(resp))
	require.NoError(t, err)
	assert.Equal(t, resp, out)
}

func TestReadyRequestRoundTrip(t *testing.T) {
	req := ReadyRequest{SessionID: 9}
	out, err := UnmarshalReadyRequest(MarshalReadyRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, out)
}

func TestReadyAckRoundTrip(t *testing.T) {
	ack := ReadyAck{Status: 2}
	out, err := UnmarshalReadyAck(MarshalReadyAck(ack))
	require.NoError(t, err)
	assert.Equal(t, ack, out)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	hb := Heartbeat{TimestampMs: 1234567}
	out, err := UnmarshalHeartbeat(MarshalHeartbeat(hb))
	require.NoError(t, err)
	assert.Equal(t, hb, out)
}

func TestGoodbyeRoundTrip(t *testing.T) {
	gb := Goodbye{Reason: 1}
	out, err := UnmarshalGoodbye(MarshalGoodbye(gb))
	require.NoError(t, err)
	assert.Equal(t, gb, out)
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	_, err := UnmarshalHelloRequest([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = UnmarshalWelcomeResponse([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = UnmarshalReadyRequest([]byte{1})
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = UnmarshalReadyAck([]byte{1})
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = UnmarshalHeartbeat([]byte{1})
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = UnmarshalGoodbye([]byte{1})
	assert.ErrorIs(t, err, ErrTruncatedMessage)
}
