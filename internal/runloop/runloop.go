// Package runloop implements the cooperative receive loop and outbound
// call bookkeeping shared by both sides of a connection: one goroutine
// owns the transport's blocking Receive, while any number of caller
// goroutines may invoke SendRequest concurrently and block on their own
// call id's completion.
package runloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/interfaces"
	"github.com/kestrelio/ipcbridge/internal/logging"
	"github.com/kestrelio/ipcbridge/internal/transport"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// Transport is the narrow contract RunLoop drives; *transport.Transport
// satisfies it.
type Transport interface {
	Send(h wire.Header, body []byte, ownerSession uint16) error
	Receive(timeout time.Duration) (wire.Header, []byte, error)
}

// RequestHandler processes one inbound Request message and returns the
// response body plus an error_code to stamp on the outbound Response
// (constants.CodeOK-equivalent zero on success). Absent a handler, the
// loop replies InvalidInterfaceId itself.
type RequestHandler func(hdr wire.Header, body []byte) (respBody []byte, errorCode int32)

// ErrInvalidInterfaceID is the error_code stamped on a Response when no
// RequestHandler is installed, spec §4.J.
const ErrInvalidInterfaceID int32 = -5006 // mirrors errors.CodeInvalidInterfaceID

type pendingCall struct {
	completed    bool
	responseBody []byte
	errorCode    int32
}

// RunLoop owns one Transport's receive loop and the pending-call table
// every SendRequest blocks against. The zero value is not ready; use New.
type RunLoop struct {
	transport      Transport
	ownerSession   uint16
	requestHandler RequestHandler
	observer       interfaces.Observer
	logger         interfaces.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	pending     map[uint64]*pendingCall
	nextCallID  uint64
	running     bool
	nestedDepth int

	doneCh chan struct{}
}

// New returns a RunLoop driving transport. ownerSession stamps outbound
// headers' session/generation/local_id fields are left to the caller; this
// field is only used for ShmPool-owning sends in the transport layer.
func New(transport Transport, ownerSession uint16) *RunLoop {
	r := &RunLoop{
		transport:    transport,
		ownerSession: ownerSession,
		pending:      make(map[uint64]*pendingCall),
		nextCallID:   1,
		logger:       logging.Default(),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// SetRequestHandler installs the handler for inbound Request messages.
func (r *RunLoop) SetRequestHandler(h RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestHandler = h
}

// SetObserver installs the telemetry sink; nil disables observation.
func (r *RunLoop) SetObserver(o interfaces.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Run starts the receive-loop goroutine. Returns an error if already
// running (mirrors the original's DeadlockDetected-on-double-Run, recast
// here as a plain sentinel since this is a startup-time misuse, not a
// wire-protocol failure).
func (r *RunLoop) Run() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runInternal()
	return nil
}

// RunWithContext starts the receive loop and stops it when ctx is
// canceled; intended as one errgroup.Group member alongside
// handshake.Host.RunHeartbeatScanner.
func (r *RunLoop) RunWithContext(ctx context.Context) error {
	if err := r.Run(); err != nil {
		return err
	}
	<-ctx.Done()
	r.Stop()
	return nil
}

// Stop marks the loop not-running, wakes every blocked SendRequest with a
// Timeout outcome, and waits for the receive goroutine to exit.
// Idempotent.
func (r *RunLoop) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cond.Broadcast()
	done := r.doneCh
	r.mu.Unlock()

	<-done
}

// IsRunning reports whether the receive loop is active.
func (r *RunLoop) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *RunLoop) runInternal() {
	defer close(r.doneCh)
	for r.IsRunning() {
		hdr, body, err := r.transport.Receive(constants.DefaultPollInterval)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			break
		}
		r.processMessage(hdr, body)
	}
}

// SendRequest allocates a call id, stamps it onto header, sends, and
// blocks until the matching Response arrives, the loop stops, or depth
// already sits at the bound (failed without transmitting — spec §4.J).
func (r *RunLoop) SendRequest(hdr wire.Header, body []byte) (wire.Header, []byte, error) {
	r.mu.Lock()
	if r.nestedDepth >= constants.MaxNestedDepth {
		r.mu.Unlock()
		return wire.Header{}, nil, ErrDeadlockDetected
	}

	callID := r.nextCallID
	r.nextCallID++
	hdr.CallID = callID
	hdr.MessageType = constants.MessageTypeRequest

	r.pending[callID] = &pendingCall{}
	r.mu.Unlock()

	if err := r.transport.Send(hdr, body, r.ownerSession); err != nil {
		r.mu.Lock()
		delete(r.pending, callID)
		r.mu.Unlock()
		return wire.Header{}, nil, ErrTransportFailed
	}

	r.mu.Lock()
	r.nestedDepth++
	defer func() {
		r.mu.Lock()
		r.nestedDepth--
		r.mu.Unlock()
	}()

	call := r.pending[callID]
	for !call.completed && r.running {
		r.cond.Wait()
	}

	respBody := call.responseBody
	errorCode := call.errorCode
	delete(r.pending, callID)
	completed := call.completed
	r.mu.Unlock()

	if !completed {
		return wire.Header{}, nil, ErrTimeout
	}

	respHdr := hdr
	respHdr.ErrorCode = errorCode
	respHdr.MessageType = constants.MessageTypeResponse
	return respHdr, respBody, nil
}

// SendResponse stamps message_type=Response and transmits, exactly one
// per call_id.
func (r *RunLoop) SendResponse(hdr wire.Header, body []byte) error {
	hdr.MessageType = constants.MessageTypeResponse
	return r.transport.Send(hdr, body, r.ownerSession)
}

// SendEvent stamps message_type=Event and transmits, fire-and-forget.
func (r *RunLoop) SendEvent(hdr wire.Header, body []byte) error {
	hdr.MessageType = constants.MessageTypeEvent
	return r.transport.Send(hdr, body, r.ownerSession)
}

// dispatchRequest runs one inbound Request's handler and sends the
// resulting Response. Run on its own goroutine per message so a handler
// that nests a SendRequest call never blocks the receive loop.
func (r *RunLoop) dispatchRequest(hdr wire.Header, body []byte) {
	r.mu.Lock()
	handler := r.requestHandler
	r.mu.Unlock()

	if handler == nil {
		resp := hdr
		resp.MessageType = constants.MessageTypeResponse
		resp.ErrorCode = ErrInvalidInterfaceID
		_ = r.transport.Send(resp, nil, r.ownerSession)
		return
	}

	start := time.Now()
	respBody, errorCode := handler(hdr, body)
	if r.observer != nil {
		r.observer.ObserveCall(hdr.InterfaceID, hdr.MethodID, uint64(time.Since(start).Nanoseconds()), errorCode)
	}

	resp := hdr
	resp.MessageType = constants.MessageTypeResponse
	resp.ErrorCode = errorCode
	_ = r.transport.Send(resp, respBody, r.ownerSession)
}

func (r *RunLoop) processMessage(hdr wire.Header, body []byte) {
	switch hdr.MessageType {
	case constants.MessageTypeResponse:
		r.mu.Lock()
		call, ok := r.pending[hdr.CallID]
		if ok {
			call.completed = true
			call.responseBody = body
			call.errorCode = hdr.ErrorCode
			r.cond.Broadcast()
		}
		pendingN := len(r.pending)
		r.mu.Unlock()
		if !ok && r.logger != nil {
			r.logger.Debugf("runloop: response for unknown call_id=%d dropped", hdr.CallID)
		}
		if r.observer != nil {
			r.observer.ObservePendingCalls(pendingN)
		}

	case constants.MessageTypeRequest:
		// Dispatched on its own goroutine so the receive loop keeps
		// pumping transport.Receive while the handler runs. A handler
		// that itself calls SendRequest (nested/re-entrant calls, spec
		// §4.J, E6) blocks that goroutine on the pending-call condvar,
		// not the receive loop — otherwise a nested call would starve
		// the very loop that must deliver its own response.
		go r.dispatchRequest(hdr, body)

	case constants.MessageTypeEvent, constants.MessageTypeHeartbeat:
		// Delivered to corresponding handlers elsewhere, or silently
		// accepted — spec §4.J.

	default:
		if r.logger != nil {
			r.logger.Debugf("runloop: invalid message_type=%d dropped", hdr.MessageType)
		}
	}
}
