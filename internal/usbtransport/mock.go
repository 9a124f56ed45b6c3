package usbtransport

import (
	"fmt"
	"os"

	"github.com/usbsas/usbsas-core/internal/interfaces"
)

// MockDevice backs a device_reader/block_writer with a plain file instead
// of a real USB device, driven by USBSAS_MOCK_IN_DEV / USBSAS_MOCK_OUT_DEV
// (spec §6) so the whole pipeline can run in CI and on a developer
// machine without hardware attached.
type MockDevice struct {
	f    *os.File
	size int64
}

// OpenMock opens path for reading, writing, or both, matching the
// USBSAS_MOCK_IN_DEV (read-only source) / USBSAS_MOCK_OUT_DEV (read-write
// destination) roles.
func OpenMock(path string, writable bool) (*MockDevice, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("usbtransport: open mock device %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("usbtransport: stat mock device %s: %w", path, err)
	}
	return &MockDevice{f: f, size: info.Size()}, nil
}

func (m *MockDevice) ReadAt(p []byte, off int64) (int, error)  { return m.f.ReadAt(p, off) }
func (m *MockDevice) WriteAt(p []byte, off int64) (int, error) { return m.f.WriteAt(p, off) }
func (m *MockDevice) Size() int64                              { return m.size }
func (m *MockDevice) Flush() error                             { return m.f.Sync() }
func (m *MockDevice) Close() error                              { return m.f.Close() }

var _ interfaces.Backend = (*MockDevice)(nil)
