// Package transport implements the paired message queue transport: two
// named FIFOs per peer (host→peer, peer→host), small-body-inline framing,
// and a large-body escape through a shared memory pool handle.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kestrelio/ipcbridge/internal/constants"
	"github.com/kestrelio/ipcbridge/internal/shmpool"
	"github.com/kestrelio/ipcbridge/internal/wire"
)

// ShmPool is the narrow shared-memory contract the transport needs; it is
// satisfied by *shmpool.Pool.
type ShmPool interface {
	Allocate(size int, ownerSession uint16) (shmpool.Block, error)
	Deallocate(handle uint64) error
	GetBlockByHandle(handle uint64) (shmpool.Block, error)
}

// Dir is where named FIFOs are created; overridable for tests.
var Dir = "/tmp"

// MakeQueueName derives the deterministic FIFO name for one direction of
// a host/peer pair: "<prefix>_<host_pid>_<peer_pid>_<h2p|p2h>".
func MakeQueueName(hostID, peerID string, hostToPeer bool) string {
	dir := "p2h"
	if hostToPeer {
		dir = "h2p"
	}
	return fmt.Sprintf("%s_%s_%s_%s", constants.TransportPrefix, hostID, peerID, dir)
}

// Transport is a paired-FIFO message queue: one direction for sending,
// one for receiving. Both peers construct their own Transport pointed at
// the same two queue names, with send/receive swapped.
type Transport struct {
	sendMu         sync.Mutex
	recvMu         sync.Mutex
	poolMu         sync.Mutex
	sendPath       string
	recvPath       string
	sendFile       *os.File
	recvFile       *os.File
	maxMessageSize uint32
	pool           ShmPool
}

// Open creates (if needed) and opens the named FIFOs for sendName (this
// side writes) and recvName (this side reads). Both peers must compute
// the same two names via MakeQueueName with hostToPeer flipped.
func Open(sendName, recvName string, maxMessageSize uint32) (*Transport, error) {
	sendPath := dirJoin(sendName)
	recvPath := dirJoin(recvName)

	for _, p := range []string{sendPath, recvPath} {
		if err := unix.Mkfifo(p, 0600); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("transport: mkfifo %s: %w", p, err)
		}
	}

	return &Transport{
		sendPath:       sendPath,
		recvPath:       recvPath,
		maxMessageSize: maxMessageSize,
	}, nil
}

func dirJoin(name string) string {
	return Dir + "/" + name
}

// SetSharedMemoryPool attaches the pool used for the large-body escape.
// Send/Receive of a large-body frame fails with ErrSharedMemoryUnavailable
// until this is called.
func (t *Transport) SetSharedMemoryPool(pool ShmPool) {
	t.poolMu.Lock()
	defer t.poolMu.Unlock()
	t.pool = pool
}

func (t *Transport) sharedMemoryPool() ShmPool {
	t.poolMu.Lock()
	defer t.poolMu.Unlock()
	return t.pool
}

func (t *Transport) openSend() (*os.File, error) {
	if t.sendFile != nil {
		return t.sendFile, nil
	}
	f, err := os.OpenFile(t.sendPath, os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	t.sendFile = f
	return f, nil
}

func (t *Transport) openRecv() (*os.File, error) {
	if t.recvFile != nil {
		return t.recvFile, nil
	}
	f, err := os.OpenFile(t.recvPath, os.O_RDONLY, 0600)
	if err != nil {
		return nil, err
	}
	t.recvFile = f
	return f, nil
}

// Send writes header+body as a single frame, or — when it exceeds
// maxMessageSize — allocates a shared memory block, copies body into it,
// sets the large-body flag, and sends header+handle instead.
func (t *Transport) Send(h wire.Header, body []byte, ownerSession uint16) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	total := uint32(constants.HeaderSize) + uint32(len(body))
	if total <= t.maxMessageSize {
		h.BodySize = uint32(len(body))
		return t.sendFrameLocked(h, body)
	}
	return t.sendLargeLocked(h, body, ownerSession)
}

func (t *Transport) sendFrameLocked(h wire.Header, body []byte) error {
	f, err := t.openSend()
	if err != nil {
		return ErrMessageQueueFailed
	}
	frame := make([]byte, 0, constants.HeaderSize+len(body))
	frame = append(frame, wire.Marshal(h)...)
	frame = append(frame, body...)
	if err := writeFull(f, prefixLength(frame)); err != nil {
		return ErrMessageQueueFailed
	}
	return nil
}

func (t *Transport) sendLargeLocked(h wire.Header, body []byte, ownerSession uint16) error {
	pool := t.sharedMemoryPool()
	if pool == nil {
		return ErrSharedMemoryUnavailable
	}
	block, err := pool.Allocate(len(body), ownerSession)
	if err != nil {
		return ErrSharedMemoryUnavailable
	}
	copy(block.Data, body)

	h.Flags |= constants.FlagLargeBody
	h.BodySize = 8
	var handleBuf [8]byte
	binary.LittleEndian.PutUint64(handleBuf[:], block.Handle)

	if err := t.sendFrameLocked(h, handleBuf[:]); err != nil {
		_ = pool.Deallocate(block.Handle)
		return err
	}
	return nil
}

// Receive blocks up to timeout for the next frame. On the large-body
// flag, it resolves and copies the shared memory block into the returned
// body, then deallocates the handle — the receiver-deallocates discipline
// of spec §3.5/§4.D.
func (t *Transport) Receive(timeout time.Duration) (wire.Header, []byte, error) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()

	f, err := t.openRecv()
	if err != nil {
		return wire.Header{}, nil, ErrMessageQueueFailed
	}

	frame, release, err := readFullWithTimeout(f, timeout)
	if err == errTimeout {
		return wire.Header{}, nil, ErrTimeout
	}
	if err != nil {
		return wire.Header{}, nil, ErrMessageQueueFailed
	}
	defer release()

	if len(frame) < constants.HeaderSize {
		return wire.Header{}, nil, ErrInvalidMessage
	}
	h, err := wire.ParseHeader(frame)
	if err != nil {
		return wire.Header{}, nil, ErrInvalidMessageHeader
	}
	if !wire.ValidForLimit(h, t.maxMessageSize) {
		return wire.Header{}, nil, ErrInvalidMessage
	}

	rest := frame[constants.HeaderSize:]
	if h.IsLargeBody() {
		pool := t.sharedMemoryPool()
		if pool == nil {
			return wire.Header{}, nil, ErrSharedMemoryUnavailable
		}
		if len(rest) < 8 {
			return wire.Header{}, nil, ErrInvalidMessage
		}
		handle := binary.LittleEndian.Uint64(rest[:8])
		block, err := pool.GetBlockByHandle(handle)
		if err != nil {
			return wire.Header{}, nil, ErrInvalidMessage
		}
		out := make([]byte, len(block.Data))
		copy(out, block.Data)
		_ = pool.Deallocate(handle)
		return h, out, nil
	}
	// rest aliases the pooled frame buffer, which release() (deferred
	// above) returns to the pool on function return — copy out first.
	out := make([]byte, len(rest))
	copy(out, rest)
	return h, out, nil
}

// Close releases the FIFO file descriptors (the named files themselves
// persist for the peer until an orderly shutdown removes them).
func (t *Transport) Close() error {
	t.sendMu.Lock()
	var firstErr error
	if t.sendFile != nil {
		if err := t.sendFile.Close(); err != nil {
			firstErr = err
		}
		t.sendFile = nil
	}
	t.sendMu.Unlock()

	t.recvMu.Lock()
	if t.recvFile != nil {
		if err := t.recvFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.recvFile = nil
	}
	t.recvMu.Unlock()

	return firstErr
}

// Remove unlinks both named FIFOs; call on orderly shutdown of the side
// that created them.
func (t *Transport) Remove() {
	_ = os.Remove(t.sendPath)
	_ = os.Remove(t.recvPath)
}

// prefixLength frames a message with its own length so the reader side,
// which has no inherent message boundaries over a FIFO byte stream, knows
// exactly how many bytes make up one frame.
func prefixLength(frame []byte) []byte {
	out := make([]byte, 4+len(frame))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(frame)))
	copy(out[4:], frame)
	return out
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
