// Package wire implements the Message Header V2 frame: a fixed, 8-byte
// aligned, little-endian header shared by every message on a transport,
// plus the small-vs-large body framing rule.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/kestrelio/ipcbridge/internal/constants"
)

// Header is the fixed frame every transport message starts with.
type Header struct {
	Magic       uint32
	Version     uint16
	Flags       uint16
	CallID      uint64
	MessageType uint8
	_           [3]byte // pad, always zero on the wire
	ErrorCode   int32
	InterfaceID uint32
	MethodID    uint32
	SessionID   uint16
	Generation  uint16
	LocalID     uint32
	BodySize    uint32
}

// Errors parse_header can return, per spec §4.B.
var (
	ErrBadMagic   = errors.New("wire: bad magic")
	ErrBadVersion = errors.New("wire: unsupported protocol version")
	ErrTruncated  = errors.New("wire: truncated header")
)

// NewHeader builds a Header stamped with the current magic and version,
// ready for its caller to fill in the remaining fields.
func NewHeader() Header {
	return Header{Magic: constants.WireMagic, Version: constants.ProtocolVersion}
}

// Marshal writes the exact field layout of Message Header V2 into a
// constants.HeaderSize-byte buffer using little-endian encoding throughout.
func Marshal(h Header) []byte {
	buf := make([]byte, constants.HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.CallID)
	buf[16] = h.MessageType
	// buf[17:20] padding, left zero
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.ErrorCode))
	binary.LittleEndian.PutUint32(buf[24:28], h.InterfaceID)
	binary.LittleEndian.PutUint32(buf[28:32], h.MethodID)
	binary.LittleEndian.PutUint16(buf[32:34], h.SessionID)
	binary.LittleEndian.PutUint16(buf[34:36], h.Generation)
	binary.LittleEndian.PutUint32(buf[36:40], h.LocalID)
	binary.LittleEndian.PutUint32(buf[40:44], h.BodySize)
	return buf
}

// ParseHeader parses a frame's leading constants.HeaderSize bytes. It
// validates magic and version but not body_size against a transport limit
// — that check belongs to the transport, which knows its own negotiated
// max.
func ParseHeader(in []byte) (Header, error) {
	if len(in) < constants.HeaderSize {
		return Header{}, ErrTruncated
	}
	var h Header
	h.Magic = binary.LittleEndian.Uint32(in[0:4])
	if h.Magic != constants.WireMagic {
		return Header{}, ErrBadMagic
	}
	h.Version = binary.LittleEndian.Uint16(in[4:6])
	if h.Version != constants.ProtocolVersion {
		return Header{}, ErrBadVersion
	}
	h.Flags = binary.LittleEndian.Uint16(in[6:8])
	h.CallID = binary.LittleEndian.Uint64(in[8:16])
	h.MessageType = in[16]
	h.ErrorCode = int32(binary.LittleEndian.Uint32(in[20:24]))
	h.InterfaceID = binary.LittleEndian.Uint32(in[24:28])
	h.MethodID = binary.LittleEndian.Uint32(in[28:32])
	h.SessionID = binary.LittleEndian.Uint16(in[32:34])
	h.Generation = binary.LittleEndian.Uint16(in[34:36])
	h.LocalID = binary.LittleEndian.Uint32(in[36:40])
	h.BodySize = binary.LittleEndian.Uint32(in[40:44])
	return h, nil
}

// IsLargeBody reports whether flag 0 (large-body-in-shared-memory) is set.
func (h Header) IsLargeBody() bool {
	return h.Flags&constants.FlagLargeBody != 0
}

// ValidForLimit reports whether a frame is valid given the transport's
// negotiated maximum message size: body_size must fit the limit, and when
// the large-body flag is set, body_size must equal 8 (one u64 handle).
func ValidForLimit(h Header, maxMessageSize uint32) bool {
	if h.BodySize > maxMessageSize {
		return false
	}
	if h.IsLargeBody() && h.BodySize != 8 {
		return false
	}
	return true
}
