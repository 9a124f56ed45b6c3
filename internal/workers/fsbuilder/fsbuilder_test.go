package fsbuilder

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

func call(t *testing.T, h *Handler, kind ipc.Kind, req any) (ipc.Kind, any, error) {
	t.Helper()
	conn, srv := pipePair()
	done := make(chan error, 1)
	go func() {
		k, r, err := srv.ReadRequest()
		if err != nil {
			done <- err
			return
		}
		done <- h.HandleRequest(k, r, srv)
	}()
	respKind, v, err := conn.Call(kind, req, nil)
	if serveErr := <-done; serveErr != nil && err == nil {
		t.Fatalf("serve: %v", serveErr)
	}
	return respKind, v, err
}

func TestBuildImageMarksDirtySectorsAndEmitsBitmap(t *testing.T) {
	h := New(nil)
	imgPath := filepath.Join(t.TempDir(), "img.bin")
	if err := h.Init(imgPath, 4096); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, _, err := call(t, h, ipc.KindReqMkFsHeader, ipc.MkFsHeaderReq{Label: "FAT32", TotalSizeBytes: 4096}); err != nil {
		t.Fatalf("MkFsHeader: %v", err)
	}

	data := []byte("hello, world!")
	if _, _, err := call(t, h, ipc.KindReqNewFile, ipc.NewFileReq{Path: "/a.txt", SizeBytes: uint64(len(data))}); err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	h.SeekTo(1024)
	if _, _, err := call(t, h, ipc.KindReqWriteFileChunk, ipc.WriteFileChunkReq{Data: data}); err != nil {
		t.Fatalf("WriteFileChunk: %v", err)
	}
	if _, _, err := call(t, h, ipc.KindReqEndFile, ipc.EndMsg{}); err != nil {
		t.Fatalf("EndFile: %v", err)
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	conn := ipc.NewConn(reqW, respR)
	srv := ipc.NewServer(respW, reqR)

	chunks := make(chan ipc.WriteBitmapChunkReq, 8)
	done := make(chan error, 1)
	go func() {
		for {
			kind, req, err := srv.ReadRequest()
			if err == io.EOF {
				done <- nil
				return
			}
			if err != nil {
				done <- err
				return
			}
			if kind != ipc.KindReqWriteBitmapChunk {
				done <- io.ErrUnexpectedEOF
				return
			}
			chunks <- req.(ipc.WriteBitmapChunkReq)
			if err := srv.Reply(ipc.KindRespEnd, ipc.EndMsg{}); err != nil {
				done <- err
				return
			}
		}
	}()

	emitDone := make(chan error, 1)
	go func() { emitDone <- h.CloseAndEmitBitmap(conn) }()

	if err := <-emitDone; err != nil {
		t.Fatalf("CloseAndEmitBitmap: %v", err)
	}
	reqW.Close()
	<-done
	close(chunks)

	var bitmap []byte
	var lastCount int
	var gotChunks []ipc.WriteBitmapChunkReq
	for c := range chunks {
		gotChunks = append(gotChunks, c)
		need := int(c.Offset) + len(c.Bits)
		if need > len(bitmap) {
			grown := make([]byte, need)
			copy(grown, bitmap)
			bitmap = grown
		}
		copy(bitmap[c.Offset:], c.Bits)
		if c.Last {
			lastCount++
		}
	}
	if len(bitmap) == 0 {
		t.Fatal("no bitmap chunks received")
	}
	if lastCount != 1 {
		t.Fatalf("chunks with Last=true = %d, want exactly 1", lastCount)
	}
	if !gotChunks[len(gotChunks)-1].Last {
		t.Fatal("the final chunk sent must be the one with Last=true")
	}
}
