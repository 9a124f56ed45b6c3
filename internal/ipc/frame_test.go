package ipc

import (
	"bytes"
	"testing"

	"github.com/usbsas/usbsas-core/internal/constants"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"small", []byte("hello")},
		{"one byte", []byte{0x42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.payload); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}
			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("got %v, want %v", got, tt.payload)
			}
		})
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, constants.MaxFramePayload+1)
	if err := WriteFrame(&buf, payload); err != ErrFrameTooLarge {
		t.Errorf("WriteFrame: got %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameRejectsOversizeLengthWithoutReadingPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff}) // declares ~4GiB payload, none present
	if _, err := ReadFrame(&buf); err != ErrFrameTooLarge {
		t.Errorf("ReadFrame: got %v, want ErrFrameTooLarge", err)
	}
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("first"), []byte("second"), {}}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for i, want := range payloads {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame #%d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame #%d: got %v, want %v", i, got, want)
		}
	}
}
