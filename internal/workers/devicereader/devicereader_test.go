package devicereader

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/usbsas/usbsas-core/internal/ipc"
)

func pipePair() (*ipc.Conn, *ipc.Server) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	return ipc.NewConn(reqW, respR), ipc.NewServer(respW, reqR)
}

func serve(t *testing.T, h *Handler, srv *ipc.Server) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		kind, req, err := srv.ReadRequest()
		if err != nil {
			done <- err
			return
		}
		done <- h.HandleRequest(kind, req, srv)
	}()
	return done
}

func TestDevicesReportsMockDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, 4096), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	restore := mockInDev
	mockInDev = func() string { return path }
	defer func() { mockInDev = restore }()

	h := New(nil)
	conn, srv := pipePair()
	done := serve(t, h, srv)

	kind, v, err := conn.Call(ipc.KindReqDevices, struct{}{}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if kind != ipc.KindRespDevices {
		t.Fatalf("kind = %v, want KindRespDevices", kind)
	}
	resp := v.(ipc.DevicesResp)
	if len(resp.Devices) != 1 || resp.Devices[0].SizeBytes != 4096 {
		t.Errorf("unexpected devices: %#v", resp.Devices)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestReadDirAndGetAttr(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h := New(nil)
	h.SetMountRoot(root)

	conn, srv := pipePair()
	done := serve(t, h, srv)
	kind, v, err := conn.Call(ipc.KindReqReadDir, ipc.ReadDirReq{Path: "/"}, nil)
	if err != nil {
		t.Fatalf("Call ReadDir: %v", err)
	}
	if kind != ipc.KindRespReadDir {
		t.Fatalf("kind = %v, want KindRespReadDir", kind)
	}
	entries := v.(ipc.ReadDirResp).Entries
	if len(entries) != 2 {
		t.Fatalf("entries = %#v, want 2", entries)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}

	conn2, srv2 := pipePair()
	done2 := serve(t, h, srv2)
	kind, v, err = conn2.Call(ipc.KindReqGetAttr, ipc.GetAttrReq{Path: "/a.txt"}, nil)
	if err != nil {
		t.Fatalf("Call GetAttr: %v", err)
	}
	if kind != ipc.KindRespGetAttr {
		t.Fatalf("kind = %v, want KindRespGetAttr", kind)
	}
	entry := v.(ipc.GetAttrResp).Entry
	if entry.SizeBytes != 2 || entry.IsDir {
		t.Errorf("unexpected attr: %#v", entry)
	}
	if err := <-done2; err != nil {
		t.Fatalf("serve: %v", err)
	}
}
