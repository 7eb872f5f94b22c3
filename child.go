package ipcbridge

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/handshake"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/kestrelio/ipcbridge/internal/objectmanager"
	"github.com/kestrelio/ipcbridge/internal/proxystub"
	"github.com/kestrelio/ipcbridge/internal/registry"
	"github.com/kestrelio/ipcbridge/internal/runloop"
	"github.com/kestrelio/ipcbridge/internal/telemetry"
	"github.com/kestrelio/ipcbridge/internal/transport"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// ClientParams identifies a plugin-child connecting to a Host.
type ClientParams struct {
	// HostID names the host process this client connects to.
	HostID string

	// PeerID names this plugin on the transport layer; must be unique
	// among the host's concurrently connected peers.
	PeerID string

	// PID is this process's own process id, carried in HelloRequest.
	PID uint32

	// PluginName identifies this plugin to the host.
	PluginName string
}

// ClientState is the lifecycle state of a Client.
type ClientState string

const (
	ClientStateCreated   ClientState = "created"
	ClientStateConnected ClientState = "connected"
	ClientStateClosed    ClientState = "closed"
)

// Client is the plugin-child side of the protocol: it connects to a Host
// over a paired message queue, completes the handshake, and exposes
// CallMethod for invoking objects the host (or another peer, through the
// host's router) has published.
type Client struct {
	params ClientParams
	opts   Options
	logger Logger

	metrics        *Metrics
	collectors     *telemetry.Collectors
	handshakeChild *handshake.Child

	sessionID uint16
	objects   *objectmanager.Manager
	proxies   *proxystub.ProxyFactory
	stub      *proxystub.Stub

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu        sync.Mutex
	state     ClientState
	transport *transport.Transport
	loop      *runloop.RunLoop
}

// NewClient builds a Client ready to Connect.
func NewClient(params ClientParams, opts Options) (*Client, error) {
	if params.HostID == "" || params.PeerID == "" {
		return nil, NewError("NewClient", CodeInvalidArgument, "host id and peer id required")
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(opts.Context)
	group, _ := errgroup.WithContext(ctx)

	return &Client{
		params:         params,
		opts:           opts,
		logger:         opts.Logger,
		metrics:        NewMetrics(),
		collectors:     telemetry.NewCollectors(opts.Registerer),
		handshakeChild: handshake.NewChild(),
		ctx:            ctx,
		cancel:         cancel,
		group:          group,
		state:          ClientStateCreated,
	}, nil
}

// Connect opens the paired transport to the host, runs the plugin-child
// side of the handshake, and starts the run-loop and heartbeat sender.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state != ClientStateCreated {
		c.mu.Unlock()
		return NewError("Client.Connect", CodeInvalidState, "already connected")
	}
	c.mu.Unlock()

	sendName := transport.MakeQueueName(c.params.HostID, c.params.PeerID, false)
	recvName := transport.MakeQueueName(c.params.HostID, c.params.PeerID, true)
	tr, err := transport.Open(sendName, recvName, c.opts.MaxMessageSize)
	if err != nil {
		return WrapError("Client.Connect", err)
	}

	if err := c.runHandshake(tr); err != nil {
		tr.Close()
		return err
	}

	c.sessionID = c.handshakeChild.SessionID()
	objects := objectmanager.New(c.sessionID)
	stub := proxystub.NewStub(objects)

	loop := runloop.New(tr, c.sessionID)
	loop.SetObserver(c.metrics.asObserver(c.collectors))
	loop.SetRequestHandler(stub.Dispatch)

	c.mu.Lock()
	c.transport = tr
	c.objects = objects
	c.stub = stub
	c.state = ClientStateConnected
	c.mu.Unlock()

	c.proxies = proxystub.NewProxyFactory(registry.New(), objects, c)

	c.mu.Lock()
	c.loop = loop
	c.mu.Unlock()

	c.group.Go(func() error { return loop.RunWithContext(c.ctx) })
	c.group.Go(c.runHeartbeat)

	if c.logger != nil {
		c.logger.Printf("ipcbridge: client connected as session %d", c.sessionID)
	}
	return nil
}

func (c *Client) runHandshake(tr *transport.Transport) error {
	hello := c.handshakeChild.CreateHelloRequest(c.params.PID, c.params.PluginName)
	helloHdr := wire.NewHeader()
	helloHdr.InterfaceID = constants.IfaceHelloWelcome
	helloHdr.MessageType = constants.MessageTypeRequest
	if err := tr.Send(helloHdr, handshake.MarshalHelloRequest(hello), constants.SessionIDNull); err != nil {
		return WrapError("Client.runHandshake", err)
	}

	_, welcomeBody, err := tr.Receive(c.opts.HeartbeatTimeout)
	if err != nil {
		return WrapError("Client.runHandshake", err)
	}
	welcome, err := handshake.UnmarshalWelcomeResponse(welcomeBody)
	if err != nil {
		return WrapError("Client.runHandshake", err)
	}
	if err := c.handshakeChild.ProcessWelcomeResponse(welcome); err != nil {
		return WrapError("Client.runHandshake", err)
	}

	ready := c.handshakeChild.CreateReadyRequest()
	readyHdr := wire.NewHeader()
	readyHdr.InterfaceID = constants.IfaceReady
	readyHdr.MessageType = constants.MessageTypeRequest
	readyHdr.SessionID = c.handshakeChild.SessionID()
	if err := tr.Send(readyHdr, handshake.MarshalReadyRequest(ready), c.handshakeChild.SessionID()); err != nil {
		return WrapError("Client.runHandshake", err)
	}

	_, ackBody, err := tr.Receive(c.opts.HeartbeatTimeout)
	if err != nil {
		return WrapError("Client.runHandshake", err)
	}
	ack, err := handshake.UnmarshalReadyAck(ackBody)
	if err != nil {
		return WrapError("Client.runHandshake", err)
	}
	return c.handshakeChild.ProcessReadyAck(ack)
}

// runHeartbeat sends a Heartbeat event at HeartbeatInterval until ctx is
// canceled, pairing with handshake.Host.RunHeartbeatScanner on the host
// side.
func (c *Client) runHeartbeat() error {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-ticker.C:
			c.mu.Lock()
			loop := c.loop
			c.mu.Unlock()
			if loop == nil {
				continue
			}
			hb := handshake.NewHeartbeat(time.Now())
			hdr := wire.NewHeader()
			hdr.InterfaceID = constants.IfaceHeartbeat
			hdr.SessionID = c.sessionID
			_ = loop.SendEvent(hdr, handshake.MarshalHeartbeat(hb))
		}
	}
}

// CallMethod invokes methodID on target through interfaceID, blocking
// until the host (or, via the host's router, the owning peer) responds.
func (c *Client) CallMethod(target objectid.ID, interfaceID, methodID uint32, body []byte) ([]byte, error) {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()
	if loop == nil {
		return nil, NewError("Client.CallMethod", CodeInvalidState, "not connected")
	}

	hdr := wire.NewHeader()
	hdr.SessionID = target.SessionID
	hdr.Generation = target.Generation
	hdr.LocalID = target.LocalID
	hdr.InterfaceID = interfaceID
	hdr.MethodID = methodID

	respHdr, respBody, err := loop.SendRequest(hdr, body)
	if err != nil {
		return nil, WrapError("Client.CallMethod", err)
	}
	if respHdr.ErrorCode != 0 {
		return nil, NewSessionError("Client.CallMethod", c.sessionID, Code(respHdr.ErrorCode), "remote call failed")
	}
	return respBody, nil
}

// SendRequest implements proxystub.Sender for this client's proxy
// factory.
func (c *Client) SendRequest(hdr wire.Header, body []byte) (wire.Header, []byte, error) {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()
	if loop == nil {
		return wire.Header{}, nil, NewError("Client.SendRequest", CodeInvalidState, "not connected")
	}
	return loop.SendRequest(hdr, body)
}

// Close sends Goodbye, stops the run-loop, and releases the transport.
// Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == ClientStateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = ClientStateClosed
	loop := c.loop
	tr := c.transport
	c.mu.Unlock()

	if loop != nil {
		goodbye := handshake.NewGoodbye(constants.GoodbyeNormalShutdown)
		hdr := wire.NewHeader()
		hdr.InterfaceID = constants.IfaceGoodbye
		hdr.SessionID = c.sessionID
		_ = loop.SendEvent(hdr, handshake.MarshalGoodbye(goodbye))
		loop.Stop()
	}

	c.metrics.Stop()
	c.cancel()
	_ = c.group.Wait()

	if tr != nil {
		return tr.Close()
	}
	return nil
}

// State returns the client's current lifecycle state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session id assigned by the host, valid once
// State() is at least ClientStateConnected.
func (c *Client) SessionID() uint16 { return c.sessionID }

// Objects returns this client's local object manager.
func (c *Client) Objects() *objectmanager.Manager { return c.objects }

// Proxies returns the proxy factory for creating proxies to host-owned
// (or, via the router, other peers') objects.
func (c *Client) Proxies() *proxystub.ProxyFactory { return c.proxies }

// Stub returns the dispatcher for this client's locally published
// objects.
func (c *Client) Stub() *proxystub.Stub { return c.stub }

// Metrics returns the in-process call statistics.
func (c *Client) Metrics() *Metrics { return c.metrics }
