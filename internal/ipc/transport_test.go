package ipc

import (
	"io"
	"testing"
)

// pipePair wires two Conns back to back so a test can drive both the
// caller and the worker side of one request without a real subprocess.
func pipePair() (caller *Conn, server *Server) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	caller = NewConn(reqW, respR)
	server = NewServer(respW, reqR)
	return caller, server
}

func TestCallServerRoundTrip(t *testing.T) {
	caller, server := pipePair()

	done := make(chan error, 1)
	go func() {
		kind, msg, err := server.ReadRequest()
		if err != nil {
			done <- err
			return
		}
		if kind != KindReqOpenDevice {
			done <- io.ErrUnexpectedEOF
			return
		}
		req := msg.(OpenDeviceReq)
		if err := server.SendStatus(StatusMsg{Kind: "opening", Current: 0, Total: 1}); err != nil {
			done <- err
			return
		}
		done <- server.Reply(KindRespDevices, DevicesResp{Devices: []DeviceInfo{{ID: req.DeviceID}}})
	}()

	var gotStatus []StatusMsg
	kind, v, err := caller.Call(KindReqOpenDevice, OpenDeviceReq{DeviceID: "sda"}, func(s StatusMsg) {
		gotStatus = append(gotStatus, s)
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if kind != KindRespDevices {
		t.Fatalf("kind = %v, want KindRespDevices", kind)
	}
	resp := v.(DevicesResp)
	if len(resp.Devices) != 1 || resp.Devices[0].ID != "sda" {
		t.Errorf("unexpected response: %#v", resp)
	}
	if len(gotStatus) != 1 || gotStatus[0].Kind != "opening" {
		t.Errorf("unexpected status updates: %#v", gotStatus)
	}
	if err := <-done; err != nil {
		t.Fatalf("server goroutine: %v", err)
	}
}

func TestCallSurfacesWorkerError(t *testing.T) {
	caller, server := pipePair()

	done := make(chan error, 1)
	go func() {
		if _, _, err := server.ReadRequest(); err != nil {
			done <- err
			return
		}
		done <- server.ReplyError("device_gone", "no such device")
	}()

	_, _, err := caller.Call(KindReqOpenDevice, OpenDeviceReq{DeviceID: "sda"}, nil)
	if err == nil {
		t.Fatal("Call: expected error, got nil")
	}
	if err := <-done; err != nil {
		t.Fatalf("server goroutine: %v", err)
	}
}
