// Package blockwriter implements the block_writer worker: it receives the
// dirty-sector bitmap streamed from fs_builder, then copies only the
// sectors it marks from a built filesystem image onto the destination
// device, and separately performs a zero-fill wipe pass (spec §4.4.1
// Stage C, §4.4.3, §4.5).
package blockwriter

import (
	"fmt"

	"github.com/usbsas/usbsas-core/internal/fsimage"
	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
)

// Handler implements worker.Handler for block_writer.
type Handler struct {
	Logger interfaces.Logger

	Dest interfaces.Backend

	bitmap     []byte
	bitmapFull bool // true once the chunk carrying Last=true has arrived
}

func New(logger interfaces.Logger, dest interfaces.Backend) *Handler {
	return &Handler{Logger: logger, Dest: dest}
}

func (h *Handler) Name() string { return "block_writer" }

func (h *Handler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqWriteBitmapChunk:
		return h.handleBitmapChunk(req.(ipc.WriteBitmapChunkReq), srv)
	case ipc.KindReqWriteSectors:
		return h.handleWriteSectors(req.(ipc.WriteSectorsReq), srv)
	case ipc.KindReqWipe:
		return h.handleWipe(req.(ipc.WipeReq), srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("block_writer: unhandled kind %d", kind))
	}
}

func (h *Handler) handleBitmapChunk(req ipc.WriteBitmapChunkReq, srv *ipc.Server) error {
	if h.bitmapFull {
		return srv.ReplyError("protocol_violation", "WriteBitmapChunk received after the last chunk")
	}
	need := int(req.Offset) + len(req.Bits)
	if need > len(h.bitmap) {
		grown := make([]byte, need)
		copy(grown, h.bitmap)
		h.bitmap = grown
	}
	copy(h.bitmap[req.Offset:], req.Bits)
	h.bitmapFull = req.Last
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

func (h *Handler) handleWriteSectors(req ipc.WriteSectorsReq, srv *ipc.Server) error {
	if h.Dest == nil {
		return srv.ReplyError("no_destination", "")
	}
	if _, err := h.Dest.WriteAt(req.Data, int64(req.Offset)); err != nil {
		return srv.ReplyError("write_sectors_failed", err.Error())
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

// handleWipe overwrites the destination with PassCount passes of
// PatternByte. A PassCount of 0 is a no-op, matching the spec's
// quick=true skip-the-zeroing-pass behaviour (spec §4.4.3).
func (h *Handler) handleWipe(req ipc.WipeReq, srv *ipc.Server) error {
	if h.Dest == nil {
		return srv.ReplyError("no_destination", "")
	}
	if req.PassCount == 0 {
		return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
	}
	const chunkSize = 1 << 20
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = byte(req.PatternByte)
	}
	total := h.Dest.Size()
	for pass := uint32(0); pass < req.PassCount; pass++ {
		var written int64
		for written < total {
			n := int64(chunkSize)
			if total-written < n {
				n = total - written
			}
			if _, err := h.Dest.WriteAt(buf[:n], written); err != nil {
				return srv.ReplyError("wipe_failed", err.Error())
			}
			written += n
			if err := srv.SendStatus(ipc.StatusMsg{Kind: "Wipe", Current: uint64(written), Total: uint64(total)}); err != nil {
				return err
			}
		}
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

// MaterialiseFromImage copies every sector of img whose bitmap bit is set
// onto Dest, in ascending sector order, emitting WriteDst status frames
// (spec §4.4.1 Stage C, §8: "The block writer writes exactly the sectors
// whose bitmap bit is 1, in ascending sector order").
func (h *Handler) MaterialiseFromImage(img *fsimage.Image, srv *ipc.Server) error {
	if h.Dest == nil {
		return fmt.Errorf("blockwriter: MaterialiseFromImage: no destination backend")
	}
	if img.Size() > h.Dest.Size() {
		return fmt.Errorf("copy_not_enough_space")
	}
	bitmap := img.Bitmap()
	buf := make([]byte, fsimage.SectorSize)
	total := img.SectorCount()
	var copied int64
	for sector := int64(0); sector < total; sector++ {
		if !fsimage.BitSet(bitmap, sector) {
			continue
		}
		off := sector * fsimage.SectorSize
		if _, err := img.ReadAt(buf, off); err != nil {
			return fmt.Errorf("blockwriter: read sector %d from image: %w", sector, err)
		}
		if _, err := h.Dest.WriteAt(buf, off); err != nil {
			return fmt.Errorf("blockwriter: write sector %d to destination: %w", sector, err)
		}
		copied++
		if srv != nil {
			if err := srv.SendStatus(ipc.StatusMsg{Kind: "WriteDst", Current: uint64(copied), Total: uint64(total)}); err != nil {
				return err
			}
		}
	}
	return h.Dest.Flush()
}
