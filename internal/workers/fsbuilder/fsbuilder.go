// Package fsbuilder implements the fs_builder worker: it materialises a
// destination filesystem image file, receiving NewFile/WriteFileChunk/
// EndFile requests exactly like tar_writer, then on close emits the
// resulting dirty-sector bitmap to the block writer in streamed chunks
// (spec §4.4.1 Stage C, §4.5).
package fsbuilder

import (
	"fmt"

	"github.com/usbsas/usbsas-core/internal/fsimage"
	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
)

const bitmapChunkBytes = 64 * 1024

// Handler implements worker.Handler for fs_builder.
type Handler struct {
	Logger interfaces.Logger

	img *fsimage.Image
	cur *openFile
}

type openFile struct {
	path    string
	size    int64
	written int64
	offset  int64
}

func New(logger interfaces.Logger) *Handler {
	return &Handler{Logger: logger}
}

func (h *Handler) Name() string { return "fs_builder" }

// Image exposes the built image for the pipeline to hand off to block_writer
// once fs_builder has closed it (spec §5: "handed off by filename only").
func (h *Handler) Image() *fsimage.Image { return h.img }

func (h *Handler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqMkFsHeader:
		return h.handleMkFsHeader(req.(ipc.MkFsHeaderReq), srv)
	case ipc.KindReqNewFile:
		return h.handleNewFile(req.(ipc.NewFileReq), srv)
	case ipc.KindReqWriteFileChunk:
		return h.handleWriteChunk(req.(ipc.WriteFileChunkReq), srv)
	case ipc.KindReqEndFile:
		return h.handleEndFile(srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("fs_builder: unhandled kind %d", kind))
	}
}

// Init creates the backing image file ahead of any MkFsHeader/NewFile
// traffic; the pipeline calls it once it knows the destination size
// (spec §4.4.1 Stage C: "initialise a blank image... sized to the
// device").
func (h *Handler) Init(path string, totalSize int64) error {
	img, err := fsimage.Create(path, totalSize)
	if err != nil {
		return err
	}
	h.img = img
	return nil
}

func (h *Handler) handleMkFsHeader(req ipc.MkFsHeaderReq, srv *ipc.Server) error {
	if h.img == nil {
		return srv.ReplyError("not_initialised", "")
	}
	if err := h.img.WriteHeader(req.Label, req.Label); err != nil {
		return srv.ReplyError("mkfs_failed", err.Error())
	}
	if err := srv.SendStatus(ipc.StatusMsg{Kind: "MkFs", Current: 1, Total: 1}); err != nil {
		return err
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

func (h *Handler) handleNewFile(req ipc.NewFileReq, srv *ipc.Server) error {
	if h.img == nil {
		return srv.ReplyError("not_initialised", "")
	}
	if h.cur != nil {
		return srv.ReplyError("protocol_violation", "NewFile received before previous EndFile")
	}
	h.cur = &openFile{path: req.Path, size: int64(req.SizeBytes)}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

func (h *Handler) handleWriteChunk(req ipc.WriteFileChunkReq, srv *ipc.Server) error {
	if h.cur == nil {
		return srv.ReplyError("protocol_violation", "WriteFileChunk received with no open file")
	}
	n, err := h.img.WriteAt(req.Data, h.cur.offset+h.cur.written)
	h.cur.written += int64(n)
	if err != nil {
		return srv.ReplyError("fs_write_failed", err.Error())
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

func (h *Handler) handleEndFile(srv *ipc.Server) error {
	if h.cur == nil {
		return srv.ReplyError("protocol_violation", "EndFile received with no open file")
	}
	h.cur = nil
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

// SeekTo lets the pipeline place the next file at an explicit byte offset
// within the image instead of immediately after the previous one (used
// when laying out a simple flat directory region).
func (h *Handler) SeekTo(offset int64) {
	if h.cur != nil {
		h.cur.offset = offset
	}
}

// CloseAndEmitBitmap closes the image (flushing it to disk) and streams
// its dirty-sector bitmap to conn as WriteBitmapChunk requests, the last
// one carrying last=true (spec §4.5).
func (h *Handler) CloseAndEmitBitmap(conn *ipc.Conn) error {
	if h.img == nil {
		return fmt.Errorf("fsbuilder: CloseAndEmitBitmap: no image initialised")
	}
	if err := h.img.Flush(); err != nil {
		return fmt.Errorf("fsbuilder: flush image: %w", err)
	}
	bitmap := h.img.Bitmap()
	if err := h.img.Close(); err != nil {
		return fmt.Errorf("fsbuilder: close image: %w", err)
	}

	for off := 0; off < len(bitmap); off += bitmapChunkBytes {
		end := off + bitmapChunkBytes
		if end > len(bitmap) {
			end = len(bitmap)
		}
		chunk := bitmap[off:end]
		_, _, err := conn.Call(ipc.KindReqWriteBitmapChunk, ipc.WriteBitmapChunkReq{
			Offset: uint64(off),
			Bits:   chunk,
			Last:   end == len(bitmap),
		}, nil)
		if err != nil {
			return fmt.Errorf("fsbuilder: send bitmap chunk at %d: %w", off, err)
		}
	}
	return nil
}
