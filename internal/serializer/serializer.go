// Package serializer implements the length-prefixed primitive reader and
// writer that sits under proxy/stub argument marshaling: a growable byte
// buffer on the write side, a read cursor with explicit seek on the read
// side, everything little-endian.
package serializer

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrDeserializationFailed is returned whenever a Reader is asked for more
// bytes than remain, per spec §4.E ("read past end returns
// DeserializationFailed").
var ErrDeserializationFailed = errors.New("serializer: deserialization failed")

// Writer accumulates bytes into a growable buffer. The zero value is ready
// to use.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter returns a Writer with capacity pre-reserved.
func NewWriter(capacityHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capacityHint)}
}

// Write appends p at the current position, growing and overwriting in
// place if the position is before the end (after a Seek).
func (w *Writer) Write(p []byte) {
	need := w.pos + len(p)
	if need > len(w.buf) {
		if need > cap(w.buf) {
			grown := make([]byte, need)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:need]
		}
	}
	copy(w.buf[w.pos:need], p)
	w.pos = need
}

// Position returns the current write cursor.
func (w *Writer) Position() int { return w.pos }

// Seek moves the write cursor to pos, truncating the buffer to pos — a
// writer-side seek always discards anything past the new cursor, per
// spec §4.E.
func (w *Writer) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(w.buf) {
		pos = len(w.buf)
	}
	w.buf = w.buf[:pos]
	w.pos = pos
}

// Reserve grows the backing array without advancing the cursor, so a
// subsequent burst of Write calls does not repeatedly reallocate.
func (w *Writer) Reserve(n int) {
	if cap(w.buf)-len(w.buf) >= n {
		return
	}
	grown := make([]byte, len(w.buf), len(w.buf)+n)
	copy(grown, w.buf)
	w.buf = grown
}

// Bytes returns the buffer written so far.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteInt8(v int8)   { w.Write([]byte{byte(v)}) }
func (w *Writer) WriteUint8(v uint8) { w.Write([]byte{v}) }

func (w *Writer) WriteInt16(v int16)   { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func (w *Writer) WriteInt32(v int32)   { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func (w *Writer) WriteInt64(v int64)   { w.WriteUint64(uint64(v)) }
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func (w *Writer) WriteFloat32(v float32) { w.WriteUint32(math.Float32bits(v)) }
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteBytes writes a u64 length prefix followed by the payload.
func (w *Writer) WriteBytes(p []byte) {
	w.WriteUint64(uint64(len(p)))
	w.Write(p)
}

// WriteString writes s as length-prefixed bytes. The IPC layer does not
// validate utf-8; that contract belongs to the caller.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// Reader walks a fixed byte buffer with an explicit read cursor.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for reading from position 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Position returns the current read cursor.
func (r *Reader) Position() int { return r.pos }

// Remaining returns how many bytes are left to read.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Seek moves the read cursor to pos, clamped to the buffer's bounds.
func (r *Reader) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(r.buf) {
		pos = len(r.buf)
	}
	r.pos = pos
}

// Read copies the next n bytes out, failing if fewer remain.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, ErrDeserializationFailed
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadBytes reads a u64 length prefix then that many bytes, validating the
// length against what remains before allocating.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Remaining()) {
		return nil, ErrDeserializationFailed
	}
	out := make([]byte, n)
	b, err := r.Read(int(n))
	if err != nil {
		return nil, err
	}
	copy(out, b)
	return out, nil
}

// ReadString reads length-prefixed bytes and casts them to a string
// without utf-8 validation, mirroring the write side's contract.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
