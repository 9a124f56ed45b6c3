package usbtransport

import (
	"fmt"
	"sync"

	"github.com/usbsas/usbsas-core/internal/interfaces"
)

// memShardSize is the granularity of MemDevice's internal locking: large
// enough to keep shard bookkeeping cheap, small enough that a block_writer
// sector loop touches only a handful of shards per chunk.
const memShardSize = 64 * 1024

// MemDevice is a RAM-backed interfaces.Backend, used in place of OpenMock
// where a test wants a destination without touching the filesystem (e.g.
// Wipe's zero-fill pass driven entirely in memory). Sharded locking lets
// concurrent sector writes from block_writer proceed without one global
// mutex serialising every WriteAt.
type MemDevice struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// NewMemDevice allocates a zero-filled in-memory device of size bytes.
func NewMemDevice(size int64) *MemDevice {
	numShards := (size + memShardSize - 1) / memShardSize
	if numShards < 1 {
		numShards = 1
	}
	return &MemDevice{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

func (m *MemDevice) shardRange(off, length int64) (start, end int) {
	start = int(off / memShardSize)
	end = int((off + length - 1) / memShardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

// ReadAt implements interfaces.Backend.
func (m *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}
	if available := m.size - off; int64(len(p)) > available {
		p = p[:available]
	}

	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	n := copy(p, m.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
	return n, nil
}

// WriteAt implements interfaces.Backend.
func (m *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, fmt.Errorf("usbtransport: write beyond end of mem device")
	}
	if available := m.size - off; int64(len(p)) > available {
		p = p[:available]
	}

	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	n := copy(m.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}
	return n, nil
}

// Size implements interfaces.Backend.
func (m *MemDevice) Size() int64 { return m.size }

// Flush implements interfaces.Backend. A RAM backend has nothing to sync.
func (m *MemDevice) Flush() error { return nil }

// Close implements interfaces.Backend, releasing the backing buffer.
func (m *MemDevice) Close() error {
	m.data = nil
	return nil
}

var _ interfaces.Backend = (*MemDevice)(nil)
