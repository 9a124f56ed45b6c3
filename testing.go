package usbsas

import (
	"sync"

	"github.com/usbsas/usbsas-core/internal/interfaces"
)

// MockBackend is an in-memory interfaces.Backend, useful for testing
// workers (block_writer, fs_builder) without a real or loopback-mounted
// USB device.
type MockBackend struct {
	mu      sync.RWMutex
	data    []byte
	size    int64
	closed  bool
	flushed bool

	readCalls  int
	writeCalls int
	flushCalls int
}

// NewMockBackend creates a new mock backend with the specified size.
func NewMockBackend(size int64) *MockBackend {
	return &MockBackend{
		data: make([]byte, size),
		size: size,
	}
}

func (m *MockBackend) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++

	if m.closed {
		return 0, NewError("read_at", ErrCodeDeviceNotFound, "backend closed")
	}
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	n := copy(p, m.data[off:off+int64(len(p))])
	return n, nil
}

func (m *MockBackend) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++

	if m.closed {
		return 0, NewError("write_at", ErrCodeDeviceNotFound, "backend closed")
	}
	if off >= m.size {
		return 0, NewError("write_at", ErrCodeInsufficientSpace, "offset beyond backend size")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

func (m *MockBackend) Size() int64 { return m.size }

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

func (m *MockBackend) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCalls++
	m.flushed = true
	return nil
}

// Testing utility methods.

func (m *MockBackend) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *MockBackend) IsFlushed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flushed
}

func (m *MockBackend) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
		"flush": m.flushCalls,
	}
}

func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls = 0
	m.writeCalls = 0
	m.flushCalls = 0
	m.flushed = false
}

var _ interfaces.Backend = (*MockBackend)(nil)
