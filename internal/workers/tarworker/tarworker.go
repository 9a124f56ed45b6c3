// Package tarworker implements the tar_writer worker (spec §4.4.1 Stage A:
// "forward each chunk to the tar writer via NewFile -> WriteFile* ->
// EndFile") and the tar_reader side used during Stage C to feed the
// filesystem builder back out of the archive (spec §4.4.1 Stage C, §6
// "Tar format").
package tarworker

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
)

// Layout selects the USTAR layout a Writer produces (spec §6).
type Layout int

const (
	// LayoutBare places files at their relative paths from the selected
	// partition root, used for USB destinations.
	LayoutBare Layout = iota
	// LayoutBundled wraps files under a data/ prefix and adds a
	// config.json manifest at the root, used for Net destinations.
	LayoutBundled
)

// Manifest is serialised as config.json at the root of a bundled tar.
type Manifest struct {
	TransferID string `json:"transfer_id"`
	Hostname   string `json:"hostname"`
	Source     string `json:"source"`
}

// Writer implements the tar_writer worker: it accumulates NewFile/
// WriteFileChunk/EndFile requests into one archive/tar.Writer-backed file.
type Writer struct {
	Logger interfaces.Logger
	Layout Layout

	f          *os.File
	tw         *tar.Writer
	cur        *tarEntry
	outputPath string
}

type tarEntry struct {
	path    string
	size    int64
	written int64
}

func NewWriter(logger interfaces.Logger, layout Layout, outputPath string) (*Writer, error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("tarworker: create %s: %w", outputPath, err)
	}
	return &Writer{Logger: logger, Layout: layout, f: f, tw: tar.NewWriter(f), outputPath: outputPath}, nil
}

func (w *Writer) Name() string { return "tar_writer" }

func (w *Writer) OutputPath() string { return w.outputPath }

func (w *Writer) tarPath(path string) string {
	path = strings.TrimPrefix(path, "/")
	if w.Layout == LayoutBundled {
		return "data/" + path
	}
	return path
}

func (w *Writer) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqNewFile:
		return w.handleNewFile(req.(ipc.NewFileReq), srv)
	case ipc.KindReqWriteFileChunk:
		return w.handleWriteChunk(req.(ipc.WriteFileChunkReq), srv)
	case ipc.KindReqEndFile:
		return w.handleEndFile(srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("tar_writer: unhandled kind %d", kind))
	}
}

func (w *Writer) handleNewFile(req ipc.NewFileReq, srv *ipc.Server) error {
	if w.cur != nil {
		return srv.ReplyError("protocol_violation", "NewFile received before previous EndFile")
	}
	hdr := &tar.Header{
		Name: w.tarPath(req.Path),
		Mode: 0o644,
		Size: int64(req.SizeBytes),
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return srv.ReplyError("tar_write_failed", err.Error())
	}
	w.cur = &tarEntry{path: req.Path, size: int64(req.SizeBytes)}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

func (w *Writer) handleWriteChunk(req ipc.WriteFileChunkReq, srv *ipc.Server) error {
	if w.cur == nil {
		return srv.ReplyError("protocol_violation", "WriteFileChunk received with no open file")
	}
	n, err := w.tw.Write(req.Data)
	w.cur.written += int64(n)
	if err != nil {
		return srv.ReplyError("tar_write_failed", err.Error())
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

func (w *Writer) handleEndFile(srv *ipc.Server) error {
	if w.cur == nil {
		return srv.ReplyError("protocol_violation", "EndFile received with no open file")
	}
	if w.cur.written != w.cur.size {
		err := fmt.Errorf("tar_writer: entry %s: wrote %d bytes, declared %d", w.cur.path, w.cur.written, w.cur.size)
		w.cur = nil
		return srv.ReplyError("tar_entry_size_mismatch", err.Error())
	}
	w.cur = nil
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

// Close finalises the archive and closes the underlying file. It must be
// called exactly once, after the last EndFile, mirroring archive/tar's own
// Close-flushes-trailer contract.
func (w *Writer) Close() error {
	if err := w.tw.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("tarworker: close tar writer: %w", err)
	}
	return w.f.Close()
}

// Entry is one file yielded by ReadEntries, used by the pipeline to
// re-read a tar built by Writer during Stage C materialisation (spec
// §4.4.1 Stage C: "re-reads files from tar via the tar reader").
type Entry struct {
	Path      string
	SizeBytes int64
	Reader    io.Reader
}

// ReadEntries walks path's tar archive in order, invoking fn once per
// regular file entry with its logical path (the data/ prefix stripped
// back off for a bundled layout) and a reader bounded to that entry's
// content.
func ReadEntries(path string, layout Layout, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tarworker: open %s: %w", path, err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tarworker: read %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := hdr.Name
		if layout == LayoutBundled {
			if name == "config.json" {
				continue
			}
			name = strings.TrimPrefix(name, "data/")
		}
		if err := fn(Entry{Path: "/" + name, SizeBytes: hdr.Size, Reader: tr}); err != nil {
			return err
		}
	}
}
