package transport

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/kestrelio/ipcbridge/internal/queue"
)

var errTimeout = errors.New("transport: read timeout")

// readFullWithTimeout reads one length-prefixed frame from f, returning
// errTimeout if no frame arrives within timeout. FIFOs opened by this
// package support read deadlines the same way a pipe does.
//
// Frames at or above queue.MinPooled are read into a buffer borrowed from
// queue's size-bucketed pool rather than a fresh make([]byte, n) — the
// large-body escape means every frame this path sees this big is really
// just an 8-byte shared memory handle, so the oversized read only happens
// for small-body messages near the size1m ceiling, and the caller must
// copy out of the returned slice before the pool reclaims it.
func readFullWithTimeout(f *os.File, timeout time.Duration) ([]byte, func(), error) {
	if err := f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}
	defer f.SetReadDeadline(time.Time{})

	var lenBuf [4]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil, errTimeout
		}
		return nil, nil, err
	}
	n := int(lenBuf[0]) | int(lenBuf[1])<<8 | int(lenBuf[2])<<16 | int(lenBuf[3])<<24

	var frame []byte
	release := func() {}
	if n >= queue.MinPooled && n <= queue.MaxPooled {
		pooled := queue.GetBuffer(uint32(n))
		frame = pooled
		release = func() { queue.PutBuffer(pooled) }
	} else {
		frame = make([]byte, n)
	}

	if err := f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		release()
		return nil, nil, err
	}
	if _, err := io.ReadFull(f, frame); err != nil {
		release()
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil, errTimeout
		}
		return nil, nil, err
	}
	return frame, release, nil
}
