package worker

import (
	"context"
	"io"
	"testing"

	"github.com/usbsas/usbsas-core/internal/ipc"
)

type echoHandler struct {
	calls int
}

func (h *echoHandler) Name() string { return "echo" }

func (h *echoHandler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	h.calls++
	switch kind {
	case ipc.KindReqOpenDevice:
		r := req.(ipc.OpenDeviceReq)
		return srv.Reply(ipc.KindRespDevices, ipc.DevicesResp{Devices: []ipc.DeviceInfo{{ID: r.DeviceID}}})
	default:
		return srv.ReplyError("unsupported", "echo handler only understands OpenDevice")
	}
}

func TestRuntimeLifecycle(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	rt := NewRuntime(Config{})
	h := &echoHandler{}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rt.Serve(context.Background(), reqR, respW, h)
	}()

	client := ipc.NewConn(reqW, respR)

	// Init handshake.
	kind, _, err := client.Call(ipc.KindReqInit, ipc.InitMsg{TransferID: "t-1", Worker: "echo"}, nil)
	if err != nil {
		t.Fatalf("init call: %v", err)
	}
	if kind != ipc.KindRespEnd {
		t.Fatalf("init response kind = %v, want KindRespEnd", kind)
	}
	if rt.Phase() != PhaseServing {
		t.Fatalf("phase after init = %v, want PhaseServing", rt.Phase())
	}

	kind, v, err := client.Call(ipc.KindReqOpenDevice, ipc.OpenDeviceReq{DeviceID: "sda"}, nil)
	if err != nil {
		t.Fatalf("open device call: %v", err)
	}
	if kind != ipc.KindRespDevices {
		t.Fatalf("kind = %v, want KindRespDevices", kind)
	}
	resp := v.(ipc.DevicesResp)
	if len(resp.Devices) != 1 || resp.Devices[0].ID != "sda" {
		t.Errorf("unexpected response: %#v", resp)
	}

	kind, _, err = client.Call(ipc.KindReqEnd, ipc.EndMsg{}, nil)
	if err != nil {
		t.Fatalf("end call: %v", err)
	}
	if kind != ipc.KindRespEnd {
		t.Fatalf("end response kind = %v, want KindRespEnd", kind)
	}

	if err := <-serveErr; err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if rt.Phase() != PhaseEnded {
		t.Errorf("final phase = %v, want PhaseEnded", rt.Phase())
	}
	if h.calls != 1 {
		t.Errorf("handler calls = %d, want 1", h.calls)
	}
}

func TestRuntimeRejectsNonInitFirstRequest(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	rt := NewRuntime(Config{})
	h := &echoHandler{}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rt.Serve(context.Background(), reqR, respW, h)
	}()

	client := ipc.NewConn(reqW, respR)
	_, _, err := client.Call(ipc.KindReqOpenDevice, ipc.OpenDeviceReq{DeviceID: "sda"}, nil)
	if err == nil {
		t.Fatal("expected error when skipping Init, got nil")
	}

	if err := <-serveErr; err == nil {
		t.Fatal("expected Serve to return an error for a non-Init first request")
	}
	if rt.Phase() != PhaseErrored {
		t.Errorf("phase = %v, want PhaseErrored", rt.Phase())
	}
}

func TestTransitionRunsExactlyOnceImplicitly(t *testing.T) {
	calls := 0
	rt := NewRuntime(Config{Sandbox: func() error {
		calls++
		return nil
	}})

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go rt.Serve(context.Background(), reqR, respW, &echoHandler{})

	client := ipc.NewConn(reqW, respR)
	if _, _, err := client.Call(ipc.KindReqInit, ipc.InitMsg{TransferID: "t-1", Worker: "echo"}, nil); err != nil {
		t.Fatalf("init call: %v", err)
	}
	if _, _, err := client.Call(ipc.KindReqEnd, ipc.EndMsg{}, nil); err != nil {
		t.Fatalf("end call: %v", err)
	}
	if calls != 1 {
		t.Errorf("sandbox transition ran %d times, want 1", calls)
	}
}
