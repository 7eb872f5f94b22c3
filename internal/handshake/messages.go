// Package handshake implements the control-plane state machines on both
// sides of a connection: the host's Hello/Ready/Heartbeat/Goodbye handler
// and the child's Disconnected→...→Connected state machine, plus the
// connected-client registry a host keeps alongside the bare protocol.
package handshake

import (
	"encoding/binary"

	"github.com/kestrelio/ipcbridge/internal/constants"
)

// HelloRequest is sent child→host to open a connection. PluginName is
// carried NUL-terminated in a fixed constants.PluginNameSize buffer on the
// wire, same as the C struct this is ported from.
type HelloRequest struct {
	ProtocolVersion uint32
	PID             uint32
	PluginName      string
}

// MarshalHelloRequest packs req into its fixed 72-byte wire form:
// protocol_version(4)+pid(4)+plugin_name(64).
func MarshalHelloRequest(req HelloRequest) []byte {
	buf := make([]byte, 8+constants.PluginNameSize)
	binary.LittleEndian.PutUint32(buf[0:4], req.ProtocolVersion)
	binary.LittleEndian.PutUint32(buf[4:8], req.PID)
	n := copy(buf[8:8+constants.PluginNameSize-1], req.PluginName)
	_ = n // remaining bytes, including the terminator, are already zero
	return buf
}

// UnmarshalHelloRequest parses the fixed wire form back into a HelloRequest.
func UnmarshalHelloRequest(in []byte) (HelloRequest, error) {
	if len(in) < 8+constants.PluginNameSize {
		return HelloRequest{}, ErrTruncatedMessage
	}
	var req HelloRequest
	req.ProtocolVersion = binary.LittleEndian.Uint32(in[0:4])
	req.PID = binary.LittleEndian.Uint32(in[4:8])
	nameBuf := in[8 : 8+constants.PluginNameSize]
	end := 0
	for end < len(nameBuf) && nameBuf[end] != 0 {
		end++
	}
	req.PluginName = string(nameBuf[:end])
	return req, nil
}

// WelcomeResponse is sent host→child in reply to HelloRequest.
type WelcomeResponse struct {
	SessionID uint16
	Status    uint32
}

func MarshalWelcomeResponse(resp WelcomeResponse) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], resp.SessionID)
	// buf[2:4] reserved, left zero
	binary.LittleEndian.PutUint32(buf[4:8], resp.Status)
	return buf
}

func UnmarshalWelcomeResponse(in []byte) (WelcomeResponse, error) {
	if len(in) < 8 {
		return WelcomeResponse{}, ErrTruncatedMessage
	}
	return WelcomeResponse{
		SessionID: binary.LittleEndian.Uint16(in[0:2]),
		Status:    binary.LittleEndian.Uint32(in[4:8]),
	}, nil
}

// ReadyRequest confirms the child is ready to operate under its assigned
// session id.
type ReadyRequest struct {
	SessionID uint16
}

func MarshalReadyRequest(req ReadyRequest) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], req.SessionID)
	return buf
}

func UnmarshalReadyRequest(in []byte) (ReadyRequest, error) {
	if len(in) < 4 {
		return ReadyRequest{}, ErrTruncatedMessage
	}
	return ReadyRequest{SessionID: binary.LittleEndian.Uint16(in[0:2])}, nil
}

// ReadyAck is the host's reply to ReadyRequest.
type ReadyAck struct {
	Status uint32
}

func MarshalReadyAck(ack ReadyAck) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], ack.Status)
	return buf
}

func UnmarshalReadyAck(in []byte) (ReadyAck, error) {
	if len(in) < 4 {
		return ReadyAck{}, ErrTruncatedMessage
	}
	return ReadyAck{Status: binary.LittleEndian.Uint32(in[0:4])}, nil
}

// Heartbeat carries the sender's timestamp in milliseconds; either side
// may send one.
type Heartbeat struct {
	TimestampMs uint64
}

func MarshalHeartbeat(hb Heartbeat) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf[0:8], hb.TimestampMs)
	return buf
}

func UnmarshalHeartbeat(in []byte) (Heartbeat, error) {
	if len(in) < 8 {
		return Heartbeat{}, ErrTruncatedMessage
	}
	return Heartbeat{TimestampMs: binary.LittleEndian.Uint64(in[0:8])}, nil
}

// Goodbye announces an orderly or forced disconnect; either side may send
// one, and either side may also simply stop heartbeating.
type Goodbye struct {
	Reason uint32
}

func MarshalGoodbye(gb Goodbye) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], gb.Reason)
	return buf
}

func UnmarshalGoodbye(in []byte) (Goodbye, error) {
	if len(in) < 8 {
		return Goodbye{}, ErrTruncatedMessage
	}
	return Goodbye{Reason: binary.LittleEndian.Uint32(in[0:4])}, nil
}
