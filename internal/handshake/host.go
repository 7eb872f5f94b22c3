package handshake

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/registry"
	"github.com/kestrelio/ipcbridge/internal/session"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// ConnectedClient describes one peer that has completed (or is completing)
// the handshake, alongside the bare session id the protocol itself tracks.
// Grounded on Host/HandshakeHandler.h's ConnectedClient.
type ConnectedClient struct {
	SessionID     uint16
	PID           uint32
	PluginName    string
	IsReady       bool
	LastHeartbeat time.Time
}

// ClientConnectedFunc is invoked once a client completes ReadyAck(ok).
type ClientConnectedFunc func(ConnectedClient)

// ClientDisconnectedFunc is invoked on Goodbye or heartbeat timeout.
type ClientDisconnectedFunc func(sessionID uint16)

// Host processes the host side of every control-plane message and keeps
// the connected-client registry spec.md's distilled state machine leaves
// implicit. One Host per process; it is safe for concurrent use.
type Host struct {
	mu             sync.Mutex
	localSessionID uint16
	initialized    bool

	sessions *session.Coordinator
	objects  *registry.Registry

	clients map[uint16]*ConnectedClient

	onConnected    ClientConnectedFunc
	onDisconnected ClientDisconnectedFunc
}

// NewHost returns a Host that allocates session ids from sessions and
// tears down published objects in objects on disconnect.
func NewHost(sessions *session.Coordinator, objects *registry.Registry) *Host {
	return &Host{
		sessions: sessions,
		objects:  objects,
		clients:  make(map[uint16]*ConnectedClient),
	}
}

// Initialize records this host process's own session id. Must be called
// before HandleMessage.
func (h *Host) Initialize(localSessionID uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.localSessionID = localSessionID
	h.initialized = true
}

// Shutdown disconnects every connected client and releases its session id.
func (h *Host) Shutdown() {
	h.mu.Lock()
	ids := make([]uint16, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.initialized = false
	h.mu.Unlock()

	for _, id := range ids {
		h.disconnect(id, constants.GoodbyeNormalShutdown)
	}
}

func (h *Host) SetOnClientConnected(cb ClientConnectedFunc)       { h.onConnected = cb }
func (h *Host) SetOnClientDisconnected(cb ClientDisconnectedFunc) { h.onDisconnected = cb }

// HasClient reports whether sessionID names a currently connected client.
func (h *Host) HasClient(sessionID uint16) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[sessionID]
	return ok
}

// GetClient returns a snapshot of one connected client.
func (h *Host) GetClient(sessionID uint16) (ConnectedClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[sessionID]
	if !ok {
		return ConnectedClient{}, false
	}
	return *c, true
}

// ListClients returns a snapshot of every connected client.
func (h *Host) ListClients() []ConnectedClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ConnectedClient, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, *c)
	}
	return out
}

// ClientCount returns how many clients are currently connected.
func (h *Host) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleMessage dispatches one control-plane frame by its interface_id and
// returns the marshaled response body, if the message expects one
// (HelloRequest and ReadyRequest do; Heartbeat and Goodbye do not).
func (h *Host) HandleMessage(hdr wire.Header, body []byte) ([]byte, error) {
	switch hdr.InterfaceID {
	case constants.IfaceHelloWelcome:
		req, err := UnmarshalHelloRequest(body)
		if err != nil {
			return nil, err
		}
		resp := h.handleHello(req)
		return MarshalWelcomeResponse(resp), nil

	case constants.IfaceReady:
		req, err := UnmarshalReadyRequest(body)
		if err != nil {
			return nil, err
		}
		ack := h.handleReady(req)
		return MarshalReadyAck(ack), nil

	case constants.IfaceHeartbeat:
		hb, err := UnmarshalHeartbeat(body)
		if err != nil {
			return nil, err
		}
		h.handleHeartbeat(hdr.SessionID, hb)
		return nil, nil

	case constants.IfaceGoodbye:
		gb, err := UnmarshalGoodbye(body)
		if err != nil {
			return nil, err
		}
		h.disconnect(hdr.SessionID, gb.Reason)
		return nil, nil

	default:
		return nil, ErrUnknownInterface
	}
}

func (h *Host) handleHello(req HelloRequest) WelcomeResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	if req.ProtocolVersion != constants.ProtocolVersion {
		return WelcomeResponse{Status: constants.WelcomeStatusVersionMismatch}
	}
	if req.PluginName == "" {
		return WelcomeResponse{Status: constants.WelcomeStatusInvalidName}
	}

	sessionID := h.sessions.Allocate()
	if sessionID == constants.SessionIDNull {
		return WelcomeResponse{Status: constants.WelcomeStatusTooManyClients}
	}

	h.clients[sessionID] = &ConnectedClient{
		SessionID:     sessionID,
		PID:           req.PID,
		PluginName:    req.PluginName,
		IsReady:       false,
		LastHeartbeat: now(),
	}
	return WelcomeResponse{SessionID: sessionID, Status: constants.WelcomeStatusOK}
}

func (h *Host) handleReady(req ReadyRequest) ReadyAck {
	h.mu.Lock()
	client, ok := h.clients[req.SessionID]
	if !ok {
		h.mu.Unlock()
		return ReadyAck{Status: constants.ReadyAckStatusInvalidSession}
	}
	if client.IsReady {
		h.mu.Unlock()
		return ReadyAck{Status: constants.ReadyAckStatusNotReady}
	}
	client.IsReady = true
	client.LastHeartbeat = now()
	connected := *client
	h.mu.Unlock()

	if h.onConnected != nil {
		h.onConnected(connected)
	}
	return ReadyAck{Status: constants.ReadyAckStatusOK}
}

func (h *Host) handleHeartbeat(sessionID uint16, hb Heartbeat) {
	_ = hb
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[sessionID]; ok {
		client.LastHeartbeat = now()
	}
}

// CheckHeartbeats disconnects every ready client whose last heartbeat is
// older than timeout, returning the disconnected session ids. Call this
// periodically from the run-loop's poll cycle.
func (h *Host) CheckHeartbeats(timeout time.Duration) []uint16 {
	h.mu.Lock()
	cutoff := now().Add(-timeout)
	var stale []uint16
	for id, c := range h.clients {
		if c.IsReady && c.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()

	for _, id := range stale {
		h.disconnect(id, constants.GoodbyeHeartbeatTimeout)
	}
	return stale
}

// RunHeartbeatScanner polls CheckHeartbeats at interval until ctx is
// canceled. Intended to be run as one goroutine in an errgroup.Group
// alongside the run-loop's receive goroutine, so a cancellation of one
// tears the other down too.
func (h *Host) RunHeartbeatScanner(ctx context.Context, interval, timeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.CheckHeartbeats(timeout)
		}
	}
}

// disconnect tears a session down: removes its client record, unregisters
// every object it published, releases its session id, and fires the
// disconnected callback — spec §4.I step 4.
func (h *Host) disconnect(sessionID uint16, reason uint32) {
	_ = reason
	h.mu.Lock()
	_, existed := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()
	if !existed {
		return
	}

	if h.objects != nil {
		h.objects.UnregisterAllFromSession(sessionID)
	}
	h.sessions.Release(sessionID)

	if h.onDisconnected != nil {
		h.onDisconnected(sessionID)
	}
}

var now = time.Now
