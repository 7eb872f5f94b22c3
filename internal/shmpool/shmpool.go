// Package shmpool implements the named shared memory pool: a file-backed
// mmap region with a handle-addressed block allocator, used to carry
// message bodies too large to inline in a transport frame.
package shmpool

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Block describes one allocation returned to a caller.
type Block struct {
	Handle uint64
	Data   []byte
}

type blockRecord struct {
	offset       int
	size         int
	ownerSession uint16
	createdAt    time.Time
}

// freeRange is one reclaimed, currently-unused span of the region.
// freeList is kept sorted by offset and coalesced, so adjacent freed
// blocks merge back into one span instead of fragmenting forever.
type freeRange struct {
	offset int
	size   int
}

// Pool is a named, file-backed shared memory region with a first-fit
// allocator over a free list: Allocate prefers a reclaimed span before
// bumping nextFree, and Deallocate returns the freed span to that list,
// coalescing it with any adjacent free neighbor. Cumulative traffic over
// the pool's lifetime can therefore exceed totalSize without exhausting
// it, so long as outstanding blocks at any instant fit.
type Pool struct {
	mu         sync.Mutex
	name       string
	path       string
	fd         int
	region     []byte
	totalSize  int
	usedSize   int
	nextFree   int
	nextHandle uint64
	blocks     map[uint64]*blockRecord
	freeList   []freeRange
}

// Dir is where named regions are created; overridable for tests so they
// don't touch /dev/shm.
var Dir = "/dev/shm"

// Initialize creates (or re-creates) a named region of at least size
// bytes, removing any stale region of the same name first, per spec
// §4.C's "initialize(name, size)".
func Initialize(poolName string, size int) (*Pool, error) {
	path := filepath.Join(Dir, poolName)
	_ = os.Remove(path) // best-effort: discard any stale region

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("shmpool: open %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmpool: ftruncate %s: %w", path, err)
	}
	region, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmpool: mmap %s: %w", path, err)
	}

	return &Pool{
		name:       poolName,
		path:       path,
		fd:         fd,
		region:     region,
		totalSize:  size,
		nextHandle: 1,
		blocks:     make(map[uint64]*blockRecord),
	}, nil
}

// Shutdown unmaps the region, closes the fd, and removes the named file.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	if p.region != nil {
		if err := unix.Munmap(p.region); err != nil && firstErr == nil {
			firstErr = err
		}
		p.region = nil
	}
	if err := unix.Close(p.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = err
	}
	p.usedSize = 0
	return firstErr
}

// Allocate claims size bytes, returning a handle and a slice aliasing the
// mapped region. It first-fits against freeList — reclaimed spans left by
// prior Deallocate calls — before falling back to bumping nextFree, so
// cumulative allocate/deallocate traffic over the pool's lifetime doesn't
// permanently consume the region. Concurrent allocation is serialized by
// the pool lock.
func (p *Pool) Allocate(size int, ownerSession uint16) (Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset, ok := p.takeFree(size)
	if !ok {
		if p.nextFree+size > p.totalSize {
			return Block{}, ErrOutOfMemory
		}
		offset = p.nextFree
		p.nextFree += size
	}

	handle := p.nextHandle
	p.nextHandle++

	p.usedSize += size
	p.blocks[handle] = &blockRecord{offset: offset, size: size, ownerSession: ownerSession, createdAt: now()}

	return Block{Handle: handle, Data: p.region[offset : offset+size]}, nil
}

// takeFree first-fits size against freeList, shrinking (or removing) the
// matched span and returning its starting offset.
func (p *Pool) takeFree(size int) (int, bool) {
	for i, r := range p.freeList {
		if r.size < size {
			continue
		}
		offset := r.offset
		if r.size == size {
			p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
		} else {
			p.freeList[i] = freeRange{offset: r.offset + size, size: r.size - size}
		}
		return offset, true
	}
	return 0, false
}

// addFree inserts a reclaimed span into freeList in offset order, merging
// it with an adjacent preceding and/or following span so repeated
// allocate/free cycles don't fragment the region.
func (p *Pool) addFree(offset, size int) {
	i := 0
	for i < len(p.freeList) && p.freeList[i].offset < offset {
		i++
	}
	merged := freeRange{offset: offset, size: size}
	if i > 0 && p.freeList[i-1].offset+p.freeList[i-1].size == merged.offset {
		merged.offset = p.freeList[i-1].offset
		merged.size += p.freeList[i-1].size
		i--
		p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
	}
	if i < len(p.freeList) && merged.offset+merged.size == p.freeList[i].offset {
		merged.size += p.freeList[i].size
		p.freeList = append(p.freeList[:i], p.freeList[i+1:]...)
	}
	p.freeList = append(p.freeList, freeRange{})
	copy(p.freeList[i+1:], p.freeList[i:])
	p.freeList[i] = merged
}

// Deallocate releases a previously allocated block by handle, tracking
// the originally requested size so usedSize stays accurate — unlike the
// protocol this was ported from, which re-derived the freed size and left
// it zero on a bookkeeping bug. The freed span is returned to freeList for
// Allocate to reuse. When no blocks remain outstanding, the whole region is
// provably free, so bookkeeping resets to a single bump cursor at 0 rather
// than carrying a (possibly fragmented) free list nothing needs anymore.
func (p *Pool) Deallocate(handle uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.blocks[handle]
	if !ok {
		return ErrNotFound
	}
	delete(p.blocks, handle)
	p.usedSize -= rec.size

	if len(p.blocks) == 0 {
		p.freeList = nil
		p.nextFree = 0
		return nil
	}

	p.addFree(rec.offset, rec.size)
	return nil
}

// GetBlockByHandle resolves a handle to its current data slice without
// deallocating it.
func (p *Pool) GetBlockByHandle(handle uint64) (Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.blocks[handle]
	if !ok {
		return Block{}, ErrNotFound
	}
	return Block{Handle: handle, Data: p.region[rec.offset : rec.offset+rec.size]}, nil
}

// TotalSize returns the region's fixed capacity.
func (p *Pool) TotalSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalSize
}

// UsedSize returns the sum of currently allocated block sizes.
func (p *Pool) UsedSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usedSize
}

// CleanupStaleBlocks reclaims every block older than maxAge, or every
// block owned by ownerSession when ownerSession is non-zero — the real
// sweep the original implementation left as a no-op stub, used by the
// connection manager on session teardown (spec §4.C, §4.I step 4) and by
// a periodic owner-crash sweep.
func (p *Pool) CleanupStaleBlocks(maxAge time.Duration, ownerSession uint16) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := now().Add(-maxAge)
	var reclaimed int
	for handle, rec := range p.blocks {
		if (ownerSession != 0 && rec.ownerSession == ownerSession) ||
			(maxAge > 0 && rec.createdAt.Before(cutoff)) {
			delete(p.blocks, handle)
			p.usedSize -= rec.size
			if len(p.blocks) == 0 {
				p.freeList = nil
				p.nextFree = 0
			} else {
				p.addFree(rec.offset, rec.size)
			}
			reclaimed++
		}
	}
	return reclaimed
}

var now = time.Now
