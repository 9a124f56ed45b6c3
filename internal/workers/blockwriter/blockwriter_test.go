package blockwriter

import (
	"path/filepath"
	"testing"

	"github.com/usbsas/usbsas-core/internal/fsimage"
	"github.com/usbsas/usbsas-core/internal/ipc"
	"github.com/usbsas/usbsas-core/internal/usbtransport"
)

func TestHandleBitmapChunkRejectsAfterLast(t *testing.T) {
	h := New(nil, usbtransport.NewMemDevice(4096))

	if err := h.handleBitmapChunk(ipc.WriteBitmapChunkReq{Offset: 0, Bits: []byte{0xff}, Last: true}, noopServer(t)); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	err := h.handleBitmapChunk(ipc.WriteBitmapChunkReq{Offset: 1, Bits: []byte{0x01}}, noopServer(t))
	if err == nil {
		t.Fatal("expected a protocol_violation error for a chunk received after Last=true, got nil")
	}
}

func TestMaterialiseFromImageRejectsOversizedImage(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "img.bin")
	img, err := fsimage.Create(imgPath, 8192)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h := New(nil, usbtransport.NewMemDevice(4096))
	if err := h.MaterialiseFromImage(img, nil); err == nil {
		t.Fatal("expected copy_not_enough_space for an image larger than the destination, got nil")
	}
}

// noopServer returns a Server whose reply side is never read; the calls in
// these tests only exercise handleBitmapChunk's validation, not the
// request/response framing, so the reply is simply discarded.
func noopServer(t *testing.T) *ipc.Server {
	t.Helper()
	return ipc.NewServer(discardWriter{}, nil)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
