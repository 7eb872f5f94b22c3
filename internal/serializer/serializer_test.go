package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.WriteInt8(-5)
	w.WriteUint8(200)
	w.WriteInt16(-1000)
	w.WriteUint16(60000)
	w.WriteInt32(-100000)
	w.WriteUint32(4000000000)
	w.WriteInt64(-1 << 40)
	w.WriteUint64(1 << 60)
	w.WriteFloat32(3.25)
	w.WriteFloat64(2.71828)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteString("hello")

	r := NewReader(w.Bytes())
	i8, err := r.ReadInt8()
	require.NoError(t, err)
	assert.Equal(t, int8(-5), i8)

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(200), u8)

	i16, err := r.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(-1000), i16)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(60000), u16)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-100000), i32)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000000), u32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1<<40), i64)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<60), u64)

	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(3.25), f32)

	f64, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 2.71828, f64)

	b1, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b1)

	b2, err := r.ReadBool()
	require.NoError(t, err)
	assert.False(t, b2)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, bs)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	assert.Equal(t, 0, r.Remaining())
}

func TestReadPastEndFails(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.ReadUint32()
	assert.ErrorIs(t, err, ErrDeserializationFailed)
}

func TestReadBytesRejectsOversizedLength(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint64(1000)
	w.Write([]byte{1, 2, 3})
	r := NewReader(w.Bytes())
	_, err := r.ReadBytes()
	assert.ErrorIs(t, err, ErrDeserializationFailed)
}

func TestWriterSeekTruncates(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint32(1)
	w.WriteUint32(2)
	w.Seek(4)
	w.WriteUint32(3)
	assert.Equal(t, 8, len(w.Bytes()))

	r := NewReader(w.Bytes())
	first, _ := r.ReadUint32()
	second, _ := r.ReadUint32()
	assert.Equal(t, uint32(1), first)
	assert.Equal(t, uint32(3), second)
}

func TestReaderSeek(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint32(10)
	w.WriteUint32(20)
	r := NewReader(w.Bytes())
	r.Seek(4)
	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(20), v)
}
