package wire

import (
	"testing"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	h := NewHeader()
	h.Flags = constants.FlagLargeBody
	h.CallID = 42
	h.MessageType = constants.MessageTypeRequest
	h.ErrorCode = -5
	h.InterfaceID = 7
	h.MethodID = 3
	h.SessionID = 9
	h.Generation = 1
	h.LocalID = 123
	h.BodySize = 8

	buf := Marshal(h)
	require.Len(t, buf, constants.HeaderSize)

	got, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	h := NewHeader()
	buf := Marshal(h)
	buf[0] ^= 0xFF
	_, err := ParseHeader(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParseHeaderRejectsBadVersion(t *testing.T) {
	h := NewHeader()
	h.Version = 99
	buf := Marshal(h)
	_, err := ParseHeader(buf)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestParseHeaderRejectsTruncated(t *testing.T) {
	_, err := ParseHeader(make([]byte, 4))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestValidForLimit(t *testing.T) {
	h := NewHeader()
	h.BodySize = 100
	assert.True(t, ValidForLimit(h, 200))
	assert.False(t, ValidForLimit(h, 50))

	h.Flags = constants.FlagLargeBody
	h.BodySize = 8
	assert.True(t, ValidForLimit(h, 200))
	h.BodySize = 16
	assert.False(t, ValidForLimit(h, 200))
}
