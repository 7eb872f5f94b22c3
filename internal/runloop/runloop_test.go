package runloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/transport"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

type frame struct {
	hdr  wire.Header
	body []byte
}

// chanTransport is an in-memory Transport implementation for exercising
// RunLoop's request/response correlation without real FIFOs.
type chanTransport struct {
	out chan frame
	in  chan frame
}

func newChanPair() (a, b *chanTransport) {
	c1 := make(chan frame, 16)
	c2 := make(chan frame, 16)
	return &chanTransport{out: c1, in: c2}, &chanTransport{out: c2, in: c1}
}

func (t *chanTransport) Send(h wire.Header, body []byte, ownerSession uint16) error {
	_ = ownerSession
	cp := append([]byte(nil), body...)
	t.out <- frame{hdr: h, body: cp}
	return nil
}

func (t *chanTransport) Receive(timeout time.Duration) (wire.Header, []byte, error) {
	select {
	case f := <-t.in:
		return f.hdr, f.body, nil
	case <-time.After(timeout):
		return wire.Header{}, nil, transport.ErrTimeout
	}
}

func TestSendRequestRoundTrip(t *testing.T) {
	clientTr, serverTr := newChanPair()
	client := New(clientTr, 2)
	server := New(serverTr, 1)

	server.SetRequestHandler(func(hdr wire.Header, body []byte) ([]byte, int32) {
		out := make([]byte, len(body))
		for i, b := range body {
			out[len(body)-1-i] = b
		}
		return out, 0
	})
	require.NoError(t, server.Run())
	defer server.Stop()

	hdr := wire.NewHeader()
	hdr.InterfaceID = 7
	respHdr, respBody, err := client.SendRequest(hdr, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, int32(0), respHdr.ErrorCode)
	assert.Equal(t, "cba", string(respBody))
}

func TestSendRequestNoHandlerRepliesInvalidInterfaceID(t *testing.T) {
	clientTr, serverTr := newChanPair()
	client := New(clientTr, 2)
	server := New(serverTr, 1)
	require.NoError(t, server.Run())
	defer server.Stop()

	hdr := wire.NewHeader()
	respHdr, _, err := client.SendRequest(hdr, nil)
	require.NoError(t, err)
	assert.Equal(t, ErrInvalidInterfaceID, respHdr.ErrorCode)
}

func TestSendRequestDeadlockDetected(t *testing.T) {
	clientTr, _ := newChanPair()
	client := New(clientTr, 1)
	client.nestedDepth = constants.MaxNestedDepth

	_, _, err := client.SendRequest(wire.NewHeader(), nil)
	assert.ErrorIs(t, err, ErrDeadlockDetected)
}

func TestStopWakesBlockedSendRequest(t *testing.T) {
	clientTr, _ := newChanPair()
	client := New(clientTr, 1)
	require.NoError(t, client.Run())

	done := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest(wire.NewHeader(), nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("SendRequest did not unblock after Stop")
	}
}

// TestNestedReentrantCallDoesNotDeadlock exercises spec §4.J / E6: while
// client's SendRequest(R1) is blocked awaiting server's response, server's
// handler issues its own SendRequest(R2) back to client. Client must keep
// dispatching inbound requests on its receive loop despite the blocked
// caller goroutine, or this deadlocks.
func TestNestedReentrantCallDoesNotDeadlock(t *testing.T) {
	clientTr, serverTr := newChanPair()
	client := New(clientTr, 2)
	server := New(serverTr, 1)

	client.SetRequestHandler(func(hdr wire.Header, body []byte) ([]byte, int32) {
		return []byte("nested-reply"), 0
	})
	server.SetRequestHandler(func(hdr wire.Header, body []byte) ([]byte, int32) {
		nestedHdr := wire.NewHeader()
		_, nestedBody, err := server.SendRequest(nestedHdr, []byte("nested-call"))
		require.NoError(t, err)
		assert.Equal(t, "nested-reply", string(nestedBody))
		return []byte("outer-reply"), 0
	})

	require.NoError(t, client.Run())
	defer client.Stop()
	require.NoError(t, server.Run())
	defer server.Stop()

	hdr := wire.NewHeader()
	respHdr, respBody, err := client.SendRequest(hdr, []byte("outer-call"))
	require.NoError(t, err)
	assert.Equal(t, int32(0), respHdr.ErrorCode)
	assert.Equal(t, "outer-reply", string(respBody))
}

func TestUnknownResponseCallIDDropped(t *testing.T) {
	tr, _ := newChanPair()
	r := New(tr, 1)

	hdr := wire.NewHeader()
	hdr.MessageType = constants.MessageTypeResponse
	hdr.CallID = 999
	assert.NotPanics(t, func() { r.processMessage(hdr, nil) })
}

func TestRunWithContextStopsOnCancel(t *testing.T) {
	tr, _ := newChanPair()
	r := New(tr, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunWithContext(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.False(t, r.IsRunning())
	case <-time.After(time.Second):
		t.Fatal("RunWithContext did not return after cancel")
	}
}
