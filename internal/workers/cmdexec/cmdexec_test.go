package cmdexec

import (
	"io"
	"testing"
	"time"

	"github.com/usbsas/usbsas-core/internal/ipc"
)

func pipePair() (*ipc.Conn, *ipc.Server) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	return ipc.NewConn(reqW, respR), ipc.NewServer(respW, reqR)
}

func TestExecCmdSuccess(t *testing.T) {
	h := New(nil)
	h.Timeout = 5 * time.Second
	conn, srv := pipePair()
	done := make(chan error, 1)
	go func() {
		kind, req, err := srv.ReadRequest()
		if err != nil {
			done <- err
			return
		}
		done <- h.HandleRequest(kind, req, srv)
	}()

	kind, v, err := conn.Call(ipc.KindReqExecCmd, ipc.ExecCmdReq{Argv: []string{"/bin/echo", "hi"}}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if kind != ipc.KindRespExecCmd {
		t.Fatalf("kind = %v, want KindRespExecCmd", kind)
	}
	resp := v.(ipc.ExecCmdResp)
	if resp.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", resp.ExitCode)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestExecCmdNonZeroExitIsFatal(t *testing.T) {
	h := New(nil)
	h.Timeout = 5 * time.Second
	conn, srv := pipePair()
	done := make(chan error, 1)
	go func() {
		kind, req, err := srv.ReadRequest()
		if err != nil {
			done <- err
			return
		}
		done <- h.HandleRequest(kind, req, srv)
	}()

	_, _, err := conn.Call(ipc.KindReqExecCmd, ipc.ExecCmdReq{Argv: []string{"/bin/false"}}, nil)
	if err == nil {
		t.Fatal("Call: expected error for nonzero exit")
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}
