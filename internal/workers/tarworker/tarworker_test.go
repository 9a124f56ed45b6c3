package tarworker

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/usbsas/usbsas-core/internal/ipc"
)

func pipePair() (*ipc.Conn, *ipc.Server) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	return ipc.NewConn(reqW, respR), ipc.NewServer(respW, reqR)
}

func serveOne(t *testing.T, w *Writer, srv *ipc.Server) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		kind, req, err := srv.ReadRequest()
		if err != nil {
			done <- err
			return
		}
		done <- w.HandleRequest(kind, req, srv)
	}()
	return done
}

func TestWriterRoundTripThenReadEntries(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.tar")
	w, err := NewWriter(nil, LayoutBare, outPath)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	files := map[string][]byte{
		"/a.txt":   []byte("hello, world!"),
		"/d/b.bin": []byte{0x55, 0x55, 0x55, 0x55},
	}

	for path, data := range files {
		conn, srv := pipePair()
		done := serveOne(t, w, srv)
		kind, _, err := conn.Call(ipc.KindReqNewFile, ipc.NewFileReq{Path: path, SizeBytes: uint64(len(data))}, nil)
		if err != nil || kind != ipc.KindRespEnd {
			t.Fatalf("NewFile(%s): kind=%v err=%v", path, kind, err)
		}
		if err := <-done; err != nil {
			t.Fatalf("serve NewFile: %v", err)
		}

		conn, srv = pipePair()
		done = serveOne(t, w, srv)
		kind, _, err = conn.Call(ipc.KindReqWriteFileChunk, ipc.WriteFileChunkReq{Data: data}, nil)
		if err != nil || kind != ipc.KindRespEnd {
			t.Fatalf("WriteFileChunk(%s): kind=%v err=%v", path, kind, err)
		}
		if err := <-done; err != nil {
			t.Fatalf("serve WriteFileChunk: %v", err)
		}

		conn, srv = pipePair()
		done = serveOne(t, w, srv)
		kind, _, err = conn.Call(ipc.KindReqEndFile, ipc.EndMsg{}, nil)
		if err != nil || kind != ipc.KindRespEnd {
			t.Fatalf("EndFile(%s): kind=%v err=%v", path, kind, err)
		}
		if err := <-done; err != nil {
			t.Fatalf("serve EndFile: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := map[string]string{}
	err = ReadEntries(outPath, LayoutBare, func(e Entry) error {
		data, err := io.ReadAll(e.Reader)
		if err != nil {
			return err
		}
		got[e.Path] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	for path, data := range files {
		if got[path] != string(data) {
			t.Errorf("entry %s = %q, want %q", path, got[path], data)
		}
	}
}

func TestEndFileRejectsSizeMismatch(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.tar")
	w, err := NewWriter(nil, LayoutBare, outPath)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	conn, srv := pipePair()
	done := serveOne(t, w, srv)
	if _, _, err := conn.Call(ipc.KindReqNewFile, ipc.NewFileReq{Path: "/a", SizeBytes: 10}, nil); err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}

	conn, srv = pipePair()
	done = serveOne(t, w, srv)
	_, _, err = conn.Call(ipc.KindReqEndFile, ipc.EndMsg{}, nil)
	if err == nil {
		t.Fatal("EndFile with short write: expected error")
	}
	<-done
}
