package handshake

import (
	"sync"
	"time"

	"github.com/kestrelio/ipcbridge/internal/constants"
)

// State is the child-side handshake state machine, exactly spec §4.I's
// "strictly Disconnected → HelloSent → WelcomeRecv → ReadySent →
// Connected, with explicit Failed on any out-of-order/erroneous reply."
type State uint8

const (
	StateDisconnected State = iota
	StateHelloSent
	StateWelcomeRecv
	StateReadySent
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHelloSent:
		return "hello_sent"
	case StateWelcomeRecv:
		return "welcome_recv"
	case StateReadySent:
		return "ready_sent"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Child drives the handshake from the plugin side. The zero value is not
// ready; use NewChild.
type Child struct {
	mu        sync.Mutex
	state     State
	sessionID uint16
}

// NewChild returns a Child in StateDisconnected.
func NewChild() *Child {
	return &Child{state: StateDisconnected}
}

// State returns the current handshake state.
func (c *Child) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session id assigned by WelcomeResponse, valid once
// State() is at least StateWelcomeRecv.
func (c *Child) SessionID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// CreateHelloRequest builds the opening request and transitions to
// StateHelloSent.
func (c *Child) CreateHelloRequest(pid uint32, pluginName string) HelloRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateHelloSent
	return HelloRequest{ProtocolVersion: constants.ProtocolVersion, PID: pid, PluginName: pluginName}
}

// ProcessWelcomeResponse validates the host's reply and advances to
// StateWelcomeRecv, or fails.
func (c *Child) ProcessWelcomeResponse(resp WelcomeResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateHelloSent {
		c.state = StateFailed
		return ErrInvalidState
	}
	if resp.Status != constants.WelcomeStatusOK || resp.SessionID == constants.SessionIDNull {
		c.state = StateFailed
		return ErrHandshakeFailed
	}
	c.sessionID = resp.SessionID
	c.state = StateWelcomeRecv
	return nil
}

// CreateReadyRequest builds the confirmation request and transitions to
// StateReadySent.
func (c *Child) CreateReadyRequest() ReadyRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateReadySent
	return ReadyRequest{SessionID: c.sessionID}
}

// ProcessReadyAck validates the host's ack and advances to StateConnected,
// or fails.
func (c *Child) ProcessReadyAck(ack ReadyAck) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReadySent {
		c.state = StateFailed
		return ErrInvalidState
	}
	if ack.Status != constants.ReadyAckStatusOK {
		c.state = StateFailed
		return ErrHandshakeFailed
	}
	c.state = StateConnected
	return nil
}

// Reset returns the child to StateDisconnected so a retry restarts the
// handshake from scratch, per spec §4.I.
func (c *Child) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
	c.sessionID = 0
}

// NewHeartbeat stamps the current time for a Heartbeat message.
func NewHeartbeat(t time.Time) Heartbeat {
	return Heartbeat{TimestampMs: uint64(t.UnixMilli())}
}

// NewGoodbye builds a Goodbye message for the given reason.
func NewGoodbye(reason uint32) Goodbye {
	return Goodbye{Reason: reason}
}
