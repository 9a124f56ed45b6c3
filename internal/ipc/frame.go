// Package ipc implements the length-delimited, tagged request/response
// protocol the supervisor speaks to every worker process, and that the
// frontend speaks to the supervisor, over a pair of byte pipes (spec §4.1).
//
// Framing is a 4-byte little-endian length prefix followed by that many
// bytes of payload. There is no out-of-band framing and no interleaving:
// WriteFrame writes the length prefix and then the payload as two
// consecutive writes, and a payload may not exceed MaxFramePayload.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/usbsas/usbsas-core/internal/constants"
)

// ErrFrameTooLarge is returned when a peer announces a payload length
// exceeding the declared ceiling (spec §4.1: "bounded by a declared
// ceiling, e.g. 1 MiB for bulk bytes carried inline").
var ErrFrameTooLarge = fmt.Errorf("ipc: frame payload exceeds %d bytes", constants.MaxFramePayload)

// WriteFrame writes one length-delimited message. The caller must have
// already fully serialized payload; WriteFrame does a single length write
// followed by a single payload write, which is sufficient for pipe-sized
// messages to appear atomic to the reader.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > constants.MaxFramePayload {
		return ErrFrameTooLarge
	}
	var hdr [constants.FrameLengthPrefixSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("ipc: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-delimited message, rejecting anything
// announcing a length over the ceiling without attempting to read it (a
// protocol violation from a confused or hostile peer must not make the
// reader allocate unbounded memory).
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [constants.FrameLengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > constants.MaxFramePayload {
		return nil, ErrFrameTooLarge
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("ipc: read frame payload: %w", err)
	}
	return buf, nil
}
