package ipcbridge

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/handshake"
	"github.com/kestrelio/ipcbridge/internal/interfaces"
	"github.com/kestrelio/ipcbridge/internal/objectmanager"
	"github.com/kestrelio/ipcbridge/internal/pluginloader"
	"github.com/kestrelio/ipcbridge/internal/proxystub"
	"github.com/kestrelio/ipcbridge/internal/registry"
	"github.com/kestrelio/ipcbridge/internal/router"
	"github.com/kestrelio/ipcbridge/internal/runloop"
	"github.com/kestrelio/ipcbridge/internal/session"
	"github.com/kestrelio/ipcbridge/internal/shmpool"
	"github.com/kestrelio/ipcbridge/internal/telemetry"
	"github.com/kestrelio/ipcbridge/internal/transport"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// HostParams configures a Host's identity and resource sizing.
type HostParams struct {
	// HostID names this process on the transport layer; peers address it
	// via transport.MakeQueueName(HostID, peerID, ...).
	HostID string

	// ShmPoolSize bounds the shared memory pool's total size in bytes.
	// Zero uses a 16 MiB default.
	ShmPoolSize int

	// PluginRuntime materializes plugin packages from a filesystem path.
	// Nil disables LoadPlugin.
	PluginRuntime interfaces.PluginRuntime
}

// HostState is the lifecycle state of a Host.
type HostState string

const (
	HostStateCreated HostState = "created"
	HostStateRunning HostState = "running"
	HostStateStopped HostState = "stopped"
)

type peerConn struct {
	peerID    string
	sessionID uint16
	transport *transport.Transport
	loop      *runloop.RunLoop
}

// Host is the host-process side of the protocol: it accepts plugin-child
// connections over paired message queues, runs the handshake, publishes
// and resolves objects through the remote object registry, and forwards
// calls between peers through per-connection run-loops.
type Host struct {
	params HostParams
	opts   Options
	logger Logger

	metrics    *Metrics
	collectors *telemetry.Collectors

	sessions      *session.Coordinator
	objects       *objectmanager.Manager
	registryTbl   *registry.Registry
	router        *router.Router
	proxies       *proxystub.ProxyFactory
	stub          *proxystub.Stub
	plugins       *pluginloader.Loader
	handshakeHost *handshake.Host
	pool          *shmpool.Pool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu    sync.Mutex
	state HostState
	peers map[uint16]*peerConn
}

// NewHost builds a Host ready to accept peers; it does not start serving
// until Serve is called alongside at least one AcceptPeer.
func NewHost(params HostParams, opts Options) (*Host, error) {
	if params.HostID == "" {
		return nil, NewError("NewHost", CodeInvalidArgument, "host id required")
	}
	opts = opts.withDefaults()

	poolSize := params.ShmPoolSize
	if poolSize <= 0 {
		poolSize = 16 << 20
	}
	pool, err := shmpool.Initialize(constants.ShmPrefix+"_"+params.HostID, poolSize)
	if err != nil {
		return nil, WrapError("NewHost", err)
	}

	sessions := session.New()
	sessions.SetLocal(constants.SessionIDHost)
	reg := registry.New()

	hs := handshake.NewHost(sessions, reg)
	hs.Initialize(constants.SessionIDHost)

	var plugins *pluginloader.Loader
	if params.PluginRuntime != nil {
		plugins = pluginloader.New(constants.SessionIDHost, params.PluginRuntime, reg)
	}

	ctx, cancel := context.WithCancel(opts.Context)
	group, _ := errgroup.WithContext(ctx)

	h := &Host{
		params:        params,
		opts:          opts,
		logger:        opts.Logger,
		metrics:       NewMetrics(),
		collectors:    telemetry.NewCollectors(opts.Registerer),
		sessions:      sessions,
		objects:       objectmanager.New(constants.SessionIDHost),
		registryTbl:   reg,
		router:        router.New(),
		plugins:       plugins,
		handshakeHost: hs,
		pool:          pool,
		ctx:           ctx,
		cancel:        cancel,
		group:         group,
		state:         HostStateCreated,
		peers:         make(map[uint16]*peerConn),
	}
	h.proxies = proxystub.NewProxyFactory(reg, h.objects, h)
	h.stub = proxystub.NewStub(h.objects)
	h.registerControlObject()
	return h, nil
}

// registerControlObject publishes the fixed-address control object an
// operator tool (cmd/ipcctl) calls into for registry/session/plugin
// introspection. It must be the first object registered so it lands at
// the well-known {generation:1, local_id:1} coordinates constants.go
// reserves for it.
func (h *Host) registerControlObject() {
	id := h.objects.RegisterLocal(h)
	if id.Generation != constants.ControlObjectGeneration || id.LocalID != constants.ControlObjectLocalID {
		panic("ipcbridge: control object registered at unexpected coordinates")
	}
	h.stub.RegisterMethod(constants.IfaceControl, constants.MethodControlListRegistry, func(_ any, _ []byte) ([]byte, int32) {
		return marshalRegistryList(h.registryTbl.ListAll()), 0
	})
	h.stub.RegisterMethod(constants.IfaceControl, constants.MethodControlListSessions, func(_ any, _ []byte) ([]byte, int32) {
		return marshalSessionList(h.handshakeHost.ListClients()), 0
	})
	h.stub.RegisterMethod(constants.IfaceControl, constants.MethodControlListPlugins, func(_ any, _ []byte) ([]byte, int32) {
		if h.plugins == nil {
			return marshalPluginList(nil), 0
		}
		return marshalPluginList(h.plugins.LoadedPluginPaths()), 0
	})
}

// AcceptPeer opens the paired transport for peerID, runs the host side of
// the handshake synchronously, and starts the peer's run-loop, returning
// its assigned session id.
func (h *Host) AcceptPeer(peerID string) (uint16, error) {
	h.mu.Lock()
	if h.state == HostStateStopped {
		h.mu.Unlock()
		return 0, NewError("Host.AcceptPeer", CodeInvalidState, "host stopped")
	}
	h.mu.Unlock()

	sendName := transport.MakeQueueName(h.params.HostID, peerID, true)
	recvName := transport.MakeQueueName(h.params.HostID, peerID, false)
	tr, err := transport.Open(sendName, recvName, h.opts.MaxMessageSize)
	if err != nil {
		return 0, WrapError("Host.AcceptPeer", err)
	}
	tr.SetSharedMemoryPool(h.pool)

	sessionID, err := h.runHandshake(tr)
	if err != nil {
		tr.Close()
		return 0, err
	}

	loop := runloop.New(tr, sessionID)
	loop.SetObserver(h.metrics.asObserver(h.collectors))
	loop.SetRequestHandler(h.dispatchRequest)

	h.mu.Lock()
	h.peers[sessionID] = &peerConn{peerID: peerID, sessionID: sessionID, transport: tr, loop: loop}
	h.mu.Unlock()

	h.group.Go(func() error { return loop.RunWithContext(h.ctx) })

	if h.logger != nil {
		h.logger.Printf("ipcbridge: host accepted peer %s as session %d", peerID, sessionID)
	}
	return sessionID, nil
}

// runHandshake drives the Hello/Ready exchange directly over tr, before
// any run-loop owns the transport's receive side.
func (h *Host) runHandshake(tr *transport.Transport) (uint16, error) {
	helloHdr, helloBody, err := tr.Receive(h.opts.HeartbeatTimeout)
	if err != nil {
		return 0, WrapError("Host.runHandshake", err)
	}
	welcomeBody, err := h.handshakeHost.HandleMessage(helloHdr, helloBody)
	if err != nil {
		return 0, WrapError("Host.runHandshake", err)
	}
	welcomeHdr := helloHdr
	welcomeHdr.MessageType = constants.MessageTypeResponse
	if err := tr.Send(welcomeHdr, welcomeBody, constants.SessionIDHost); err != nil {
		return 0, WrapError("Host.runHandshake", err)
	}

	readyHdr, readyBody, err := tr.Receive(h.opts.HeartbeatTimeout)
	if err != nil {
		return 0, WrapError("Host.runHandshake", err)
	}
	ackBody, err := h.handshakeHost.HandleMessage(readyHdr, readyBody)
	if err != nil {
		return 0, WrapError("Host.runHandshake", err)
	}
	ackHdr := readyHdr
	ackHdr.MessageType = constants.MessageTypeResponse
	if err := tr.Send(ackHdr, ackBody, constants.SessionIDHost); err != nil {
		return 0, WrapError("Host.runHandshake", err)
	}

	client, ok := h.handshakeHost.GetClient(readyHdr.SessionID)
	if !ok {
		return 0, NewError("Host.runHandshake", CodeHandshakeFailed, "client did not complete handshake")
	}
	return client.SessionID, nil
}

// dispatchRequest is the run-loop RequestHandler installed on every peer:
// it forwards through the router when the target object belongs to
// another peer, otherwise dispatches locally through the stub.
func (h *Host) dispatchRequest(hdr wire.Header, body []byte) ([]byte, int32) {
	start := time.Now()
	var respBody []byte
	var code int32

	result := h.router.RouteMessage(hdr)
	if h.collectors != nil {
		if result.Success {
			h.collectors.RouteSuccesses.Inc()
		} else {
			h.collectors.RouteFailures.Inc()
		}
	}
	if result.Success && result.Target.SessionID != constants.SessionIDHost {
		respBody, code = h.forward(result.Target.SessionID, hdr, body)
	} else {
		respBody, code = h.stub.Dispatch(hdr, body)
	}

	if h.collectors != nil {
		h.collectors.CallLatency.WithLabelValues(
			strconv.FormatUint(uint64(hdr.InterfaceID), 10),
			strconv.FormatUint(uint64(hdr.MethodID), 10),
		).Observe(time.Since(start).Seconds())
	}
	return respBody, code
}

func (h *Host) forward(targetSession uint16, hdr wire.Header, body []byte) ([]byte, int32) {
	h.mu.Lock()
	peer, ok := h.peers[targetSession]
	h.mu.Unlock()
	if !ok {
		return nil, proxystub.ErrorCodeObjectNotFound
	}
	respHdr, respBody, err := peer.loop.SendRequest(hdr, body)
	if err != nil {
		return nil, proxystub.ErrorCodeInternalFatalError
	}
	return respBody, respHdr.ErrorCode
}

// SendRequest implements proxystub.Sender, routing an outbound proxy call
// to the peer that owns the target object.
func (h *Host) SendRequest(hdr wire.Header, body []byte) (wire.Header, []byte, error) {
	h.mu.Lock()
	peer, ok := h.peers[hdr.SessionID]
	h.mu.Unlock()
	if !ok {
		return wire.Header{}, nil, NewSessionError("Host.SendRequest", hdr.SessionID, CodeConnectionLost, "peer not connected")
	}
	return peer.loop.SendRequest(hdr, body)
}

// Serve runs the host's background goroutines (heartbeat scanning) until
// ctx is canceled or Shutdown is called.
func (h *Host) Serve(ctx context.Context) error {
	h.mu.Lock()
	h.state = HostStateRunning
	h.mu.Unlock()

	h.group.Go(func() error {
		return h.runHeartbeatScanner(h.ctx, h.opts.HeartbeatInterval, h.opts.HeartbeatTimeout)
	})
	h.group.Go(func() error {
		return h.sampleGauges(h.ctx, h.opts.HeartbeatInterval)
	})

	select {
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
	return h.group.Wait()
}

// runHeartbeatScanner polls handshake.Host.CheckHeartbeats at interval
// until ctx is canceled, recording a heartbeat miss for every session it
// disconnects for timing out — unlike handshake.Host.RunHeartbeatScanner,
// which drops that per-session result on the floor, this is the copy that
// actually feeds Metrics/telemetry.Collectors (spec §4.I step 4).
func (h *Host) runHeartbeatScanner(ctx context.Context, interval, timeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			observer := h.metrics.asObserver(h.collectors)
			for _, sessionID := range h.handshakeHost.CheckHeartbeats(timeout) {
				observer.ObserveHeartbeatMiss(sessionID)
			}
		}
	}
}

// sampleGauges periodically pushes the registry/session/shm-pool size
// gauges telemetry.Collectors exposes — unlike a counter, each reflects a
// live count rather than an event, so it is sampled rather than fed
// incrementally at a single call site.
func (h *Host) sampleGauges(ctx context.Context, interval time.Duration) error {
	if h.collectors == nil {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.collectors.RegistrySize.Set(float64(h.registryTbl.Count()))
			h.collectors.SessionCount.Set(float64(h.PeerCount()))
			if h.pool != nil {
				h.collectors.ShmPoolUsedBytes.Set(float64(h.pool.UsedSize()))
			}
		}
	}
}

// Shutdown stops every peer's run-loop, tears down the handshake state,
// unloads any loaded plugins, and releases the shared memory pool.
// Idempotent.
func (h *Host) Shutdown(ctx context.Context) error {
	_ = ctx
	h.mu.Lock()
	if h.state == HostStateStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = HostStateStopped
	peers := make([]*peerConn, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[uint16]*peerConn)
	h.mu.Unlock()

	h.handshakeHost.Shutdown()
	for _, p := range peers {
		p.loop.Stop()
		p.transport.Close()
		p.transport.Remove()
	}
	if h.plugins != nil {
		h.plugins.Shutdown()
	}

	h.metrics.Stop()
	h.cancel()
	_ = h.group.Wait()

	if h.pool != nil {
		return h.pool.Shutdown()
	}
	return nil
}

// State returns the host's current lifecycle state.
func (h *Host) State() HostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PeerCount returns the number of currently connected peers.
func (h *Host) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Registry returns the remote object registry peers publish objects into.
func (h *Host) Registry() *registry.Registry { return h.registryTbl }

// Sessions returns the session id coordinator.
func (h *Host) Sessions() *session.Coordinator { return h.sessions }

// Objects returns the host-local object manager.
func (h *Host) Objects() *objectmanager.Manager { return h.objects }

// Router returns the forwarding router used to dispatch calls between
// peers.
func (h *Host) Router() *router.Router { return h.router }

// Proxies returns the proxy factory for creating proxies to remote
// (peer-owned) objects.
func (h *Host) Proxies() *proxystub.ProxyFactory { return h.proxies }

// Stub returns the server-side dispatcher for host-local objects.
func (h *Host) Stub() *proxystub.Stub { return h.stub }

// Plugins returns the plugin loader, or nil if HostParams.PluginRuntime
// was not set.
func (h *Host) Plugins() *pluginloader.Loader { return h.plugins }

// Metrics returns the in-process call statistics.
func (h *Host) Metrics() *Metrics { return h.metrics }
