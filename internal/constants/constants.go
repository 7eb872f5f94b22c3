// Package constants holds the protocol and timing values shared by every
// ipcbridge component: wire magic/version, reserved session ids, nesting
// bounds, and heartbeat timing.
package constants

import "time"

// Wire protocol constants (Message Header V2).
const (
	// WireMagic is the header sentinel. Frames whose header does not
	// start with this value are rejected outright.
	WireMagic uint32 = 0x44415349 // "DASI"

	// ProtocolVersion is the current Message Header V2 version.
	ProtocolVersion uint16 = 1

	// HeaderSize is the exact marshaled size of a Message Header V2 frame:
	// magic(4)+version(2)+flags(2)+call_id(8)+message_type(1)+pad(3)+
	// error_code(4)+interface_id(4)+method_id(4)+session_id(2)+
	// generation(2)+local_id(4)+body_size(4) = 44.
	HeaderSize = 44

	// FlagLargeBody marks a body delivered through the shared memory pool
	// rather than inline after the header. Other bits are reserved.
	FlagLargeBody uint16 = 0x01
)

// Control-plane interface_id discriminators (object_id=0, method_id=0).
const (
	IfaceHelloWelcome uint32 = 1
	IfaceReady        uint32 = 2
	IfaceHeartbeat    uint32 = 3
	IfaceGoodbye      uint32 = 4

	// IfaceControl is the host's operator-facing introspection interface
	// (registry/session/plugin listing), published at a fixed ObjectId so
	// an operator tool can address it without a discovery round-trip.
	IfaceControl uint32 = 5
)

// Control interface method ids, dispatched through IfaceControl.
const (
	MethodControlListRegistry uint32 = 1
	MethodControlListSessions uint32 = 2
	MethodControlListPlugins  uint32 = 3
)

// ControlObjectGeneration and ControlObjectLocalID are the fixed ObjectId
// coordinates of the host's control object: it is always the first object
// a Host registers, so it always lands at generation 1, local id 1.
const (
	ControlObjectGeneration uint16 = 1
	ControlObjectLocalID    uint32 = 1
)

// Reserved session ids: 0 is null, 1 is the host, 0xFFFF is
// broadcast/invalid. Every other u16 value is allocatable.
const (
	SessionIDNull      uint16 = 0
	SessionIDHost      uint16 = 1
	SessionIDBroadcast uint16 = 0xFFFF

	// MinSessionID and MaxSessionID bound the allocatable range.
	MinSessionID uint16 = 2
	MaxSessionID uint16 = 0xFFFE
)

// MaxNestedDepth bounds re-entrant send_request nesting on a single
// run-loop before a call is refused as a likely deadlock.
const MaxNestedDepth = 32

// PluginNameSize is the fixed, NUL-terminated length of HelloRequest's
// plugin_name field.
const PluginNameSize = 64

// Handshake and heartbeat timing defaults.
//
// HeartbeatTimeout must be several multiples of HeartbeatInterval: a
// single dropped beat should never disconnect a live peer, only a
// sustained silence should.
const (
	DefaultHeartbeatInterval = 1000 * time.Millisecond
	DefaultHeartbeatTimeout  = 5000 * time.Millisecond

	// DefaultPollInterval is how often the run-loop's blocking receive
	// re-checks for shutdown while no frame has arrived.
	DefaultPollInterval = 100 * time.Millisecond
)

// Transport sizing defaults.
const (
	// DefaultMaxMessageSize is the largest body sent inline before the
	// message queue transport falls back to the shared memory pool.
	DefaultMaxMessageSize = 1 << 16 // 64 KiB

	// DefaultMaxMessages bounds queue depth per direction.
	DefaultMaxMessages = 256
)

// Handshake status codes (WelcomeResponse.status).
const (
	WelcomeStatusOK              uint32 = 0
	WelcomeStatusVersionMismatch uint32 = 1
	WelcomeStatusTooManyClients  uint32 = 2
	WelcomeStatusInvalidName     uint32 = 3
)

// ReadyAck status codes.
const (
	ReadyAckStatusOK             uint32 = 0
	ReadyAckStatusInvalidSession uint32 = 1
	ReadyAckStatusNotReady       uint32 = 2
)

// GoodbyeReason values carried in the Goodbye control message.
const (
	GoodbyeNormalShutdown   uint32 = 0
	GoodbyeHeartbeatTimeout uint32 = 1
	GoodbyeProtocolError    uint32 = 2
	GoodbyeResourceExhaust  uint32 = 3
	GoodbyeRequestedByPeer  uint32 = 4
)

// Message types carried in the Message Header V2 message_type field.
const (
	MessageTypeRequest   uint8 = 1
	MessageTypeResponse  uint8 = 2
	MessageTypeEvent     uint8 = 3
	MessageTypeHeartbeat uint8 = 4
)

// MethodIDRelease is the reserved method_id a stub maps directly to
// object_manager.release instead of dispatching to the target interface's
// method table — the wire-level proxy-lifetime opcode spec §4.L requires.
const MethodIDRelease uint32 = 0xFFFFFFFF

// TransportPrefix and ShmPrefix name the OS-visible queues/regions this
// process creates; see internal/transport and internal/shmpool. Names are
// derived, never negotiated, so both peers compute the same string.
const (
	TransportPrefix = "ipcbridge"
	ShmPrefix       = "ipcbridge_shm"
)
