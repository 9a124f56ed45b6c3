// Package pipeline implements the fixed choreographies the supervisor
// runs once a transfer's source, destination, and file selection are
// known (spec §4.4). Each function here issues synchronous requests
// against the worker Conns it is handed; it holds no process-management
// logic of its own (that belongs to supervisor.go) so it can be driven
// identically whether a Conn's peer is a real subprocess or, in tests, an
// in-process Handler wired through io.Pipe.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/usbsas/usbsas-core/internal/filter"
	"github.com/usbsas/usbsas-core/internal/ipc"
	"github.com/usbsas/usbsas-core/internal/report"
	"github.com/usbsas/usbsas-core/internal/workers/blockwriter"
	"github.com/usbsas/usbsas-core/internal/workers/fsbuilder"
	"github.com/usbsas/usbsas-core/internal/workers/tarworker"
)

// readFileChunkSize bounds how much file content a single ReadFile /
// WriteFileChunk round trip moves, well under the frame payload ceiling.
const readFileChunkSize = 256 * 1024

// StatusFunc receives every Status frame emitted while a pipeline runs,
// so the supervisor can forward progress to the attached frontend (spec
// §4.3: "interleaving Status frames back to the frontend").
type StatusFunc func(ipc.StatusMsg)

func notify(cb StatusFunc, s ipc.StatusMsg) {
	if cb != nil {
		cb(s)
	}
}

// Workers collects the Conns a pipeline choreography may need. Not every
// field is populated for every destination kind: e.g. NetIO is nil for a
// USB destination.
//
// A handful of Stage C steps (closing the tar archive, initialising and
// materialising the destination image) have no corresponding IPC Kind in
// the message catalog: the image is handed off by filename, not by frame
// (spec §5). For those steps the supervisor keeps a direct reference to
// the worker alongside its Conn, and the pipeline calls the exported
// method directly instead of sending a request.
type Workers struct {
	DeviceReader *ipc.Conn
	TarWriter    *ipc.Conn
	FsBuilder    *ipc.Conn
	BlockWriter  *ipc.Conn
	Analyzer     *ipc.Conn
	NetIO        *ipc.Conn
	CmdExec      *ipc.Conn

	TarWriterHandle   *tarworker.Writer
	FsBuilderHandle   *fsbuilder.Handler
	BlockWriterHandle *blockwriter.Handler
}

// Options configures a single run of a choreography.
type Options struct {
	Filters        filter.Set
	FsLabel        string
	TotalSizeBytes int64
	AnalyzeEnabled bool
}

// NormalizeSelection absorbs any path that is a proper prefix of another
// selected path and returns the remainder sorted lexicographically (spec
// §4.3 item 1, §8 invariant: "the selection set... never contains a path
// that is a proper prefix of another").
func NormalizeSelection(paths []string) []string {
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		clean = append(clean, path.Clean("/"+p))
	}
	sort.Strings(clean)

	var out []string
	for _, p := range clean {
		dominated := false
		for _, kept := range out {
			if p == kept || strings.HasPrefix(p, kept+"/") {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, p)
		}
	}
	return out
}

// walkEntry is one concrete file or directory discovered while recursively
// listing the selection via DeviceReader.ReadDir.
type walkEntry struct {
	path  string
	isDir bool
	size  uint64
}

func walkSelection(conn *ipc.Conn, roots []string) ([]walkEntry, error) {
	var out []walkEntry
	var visit func(p string) error
	visit = func(p string) error {
		_, v, err := conn.Call(ipc.KindReqGetAttr, ipc.GetAttrReq{Path: p}, nil)
		if err != nil {
			return fmt.Errorf("pipeline: GetAttr %s: %w", p, err)
		}
		attr := v.(ipc.GetAttrResp).Entry
		out = append(out, walkEntry{path: p, isDir: attr.IsDir, size: attr.SizeBytes})
		if !attr.IsDir {
			return nil
		}
		_, v, err = conn.Call(ipc.KindReqReadDir, ipc.ReadDirReq{Path: p}, nil)
		if err != nil {
			return fmt.Errorf("pipeline: ReadDir %s: %w", p, err)
		}
		for _, e := range v.(ipc.ReadDirResp).Entries {
			child := path.Join(p, e.Name)
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// StageABuildTar walks selection on DeviceReader, passes each discovered
// file through filters, and streams every accepted file into TarWriter,
// recording each outcome in rb (spec §4.4.1 Stage A, §4.6: "filtering
// occurs before streaming to the tar writer"). Directories produce only
// metadata, never a tar entry. Any error while streaming one file (from
// DeviceReader or TarWriter) records that file in error_files and does not
// abort the transfer; an error while walking the selection (GetAttr/
// ReadDir) is fatal.
func StageABuildTar(w Workers, selection []string, filters filter.Set, onStatus StatusFunc, rb *report.Builder) error {
	entries, err := walkSelection(w.DeviceReader, selection)
	if err != nil {
		return fmt.Errorf("pipeline: stage A walk: %w", err)
	}

	var total, copied uint64
	for _, e := range entries {
		if !e.isDir {
			total++
		}
	}

	for _, e := range entries {
		if e.isDir {
			continue
		}
		switch filters.Classify(e.path) {
		case filter.OutcomeFiltered:
			if err := rb.AddFiltered(e.path); err != nil {
				return err
			}
			continue
		case filter.OutcomeRejected:
			if err := rb.AddRejected(e.path); err != nil {
				return err
			}
			continue
		}

		if err := streamOneFile(w, e, rb); err != nil {
			if addErr := rb.AddError(e.path); addErr != nil {
				return addErr
			}
			continue
		}
		copied++
		notify(onStatus, ipc.StatusMsg{Kind: "ReadSrc", Current: copied, Total: total})
	}
	return nil
}

func streamOneFile(w Workers, e walkEntry, rb *report.Builder) error {
	if _, _, err := w.TarWriter.Call(ipc.KindReqNewFile, ipc.NewFileReq{Path: e.path, SizeBytes: e.size}, nil); err != nil {
		return fmt.Errorf("NewFile %s: %w", e.path, err)
	}

	var offset uint64
	for offset < e.size {
		length := uint32(readFileChunkSize)
		if remaining := e.size - offset; remaining < uint64(length) {
			length = uint32(remaining)
		}
		_, v, err := w.DeviceReader.Call(ipc.KindReqReadFile, ipc.ReadFileReq{Path: e.path, Offset: offset, Length: length}, nil)
		if err != nil {
			return fmt.Errorf("ReadFile %s at %d: %w", e.path, offset, err)
		}
		chunk := v.(ipc.ReadFileResp)
		if len(chunk.Data) > 0 {
			if _, _, err := w.TarWriter.Call(ipc.KindReqWriteFileChunk, ipc.WriteFileChunkReq{Data: chunk.Data}, nil); err != nil {
				return fmt.Errorf("WriteFileChunk %s: %w", e.path, err)
			}
		}
		offset += uint64(len(chunk.Data))
		if chunk.Final {
			break
		}
	}

	if _, _, err := w.TarWriter.Call(ipc.KindReqEndFile, ipc.EndMsg{}, nil); err != nil {
		return fmt.Errorf("EndFile %s: %w", e.path, err)
	}
	return rb.AddFile(e.path)
}

// StageBAnalyze uploads the tar built by Stage A to the analyser and
// polls until it reports completion, returning every DIRTY-verdict path
// (spec §4.4.1 Stage B). It does not touch rb; callers move the returned
// paths into rejected_files with rb.Reclassify. It is a no-op when
// w.Analyzer is nil (analysis not configured for this destination).
func StageBAnalyze(ctx context.Context, w Workers, tarPath string, rb *report.Builder) ([]string, error) {
	if w.Analyzer == nil {
		return nil, nil
	}

	f, err := os.Open(tarPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage B open %s: %w", tarPath, err)
	}
	defer f.Close()

	buf := make([]byte, readFileChunkSize)
	for {
		n, rerr := f.Read(buf)
		final := rerr != nil
		if n > 0 || final {
			if _, _, err := w.Analyzer.Call(ipc.KindReqUploadChunk, ipc.UploadChunkReq{Data: buf[:n], Final: final}, nil); err != nil {
				return nil, fmt.Errorf("pipeline: stage B upload: %w", err)
			}
		}
		if final {
			break
		}
	}

	_, v, err := w.Analyzer.Call(ipc.KindReqPollAnalyze, ipc.PollAnalyzeReq{}, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage B poll: %w", err)
	}
	resp := v.(ipc.AnalyzeReportResp)

	var rejected []string
	for _, verdict := range resp.Verdicts {
		if !verdict.Clean {
			rejected = append(rejected, verdict.Path)
		}
	}
	return rejected, nil
}

// FilterSelection classifies a flat list of paths against s without
// walking a device, for previewing what a selection would filter before
// a transfer runs (spec §4.6). The live Stage A choreography applies
// filters per discovered file during its own walk instead, since a
// filter can match a path nested under an accepted directory.
func FilterSelection(s filter.Set, selection []string, rb *report.Builder) (accepted []string, err error) {
	accepted, filtered, rejected := s.Partition(selection)
	for _, p := range filtered {
		if err := rb.AddFiltered(p); err != nil {
			return nil, err
		}
	}
	for _, p := range rejected {
		if err := rb.AddRejected(p); err != nil {
			return nil, err
		}
	}
	return accepted, nil
}

// StageCBuildImage re-reads tarPath through the tar reader and streams
// every entry into fs_builder as NewFile/WriteFileChunk/EndFile, laying
// files out back to back starting right after the header sector (spec
// §4.4.1 Stage C: "re-reads files from tar via the tar reader (skipping
// rejected paths)... rebuilds them into fs_builder"). rejected names a
// path a Stage B DIRTY verdict pulled out of the transfer; StageCBuildImage
// skips it entirely rather than materialising it onto the destination.
func StageCBuildImage(w Workers, tarPath string, layout tarworker.Layout, rejected map[string]bool, onStatus StatusFunc) error {
	offset := int64(headerReserveBytes)
	var entriesSeen int
	err := tarworker.ReadEntries(tarPath, layout, func(e tarworker.Entry) error {
		if rejected[e.Path] {
			return nil
		}
		entriesSeen++
		if _, _, err := w.FsBuilder.Call(ipc.KindReqNewFile, ipc.NewFileReq{Path: e.Path, SizeBytes: uint64(e.SizeBytes)}, nil); err != nil {
			return fmt.Errorf("stage C NewFile %s: %w", e.Path, err)
		}
		w.FsBuilderHandle.SeekTo(offset)

		buf := make([]byte, readFileChunkSize)
		var written int64
		for written < e.SizeBytes {
			n, rerr := e.Reader.Read(buf)
			if n > 0 {
				if _, _, err := w.FsBuilder.Call(ipc.KindReqWriteFileChunk, ipc.WriteFileChunkReq{Data: buf[:n]}, nil); err != nil {
					return fmt.Errorf("stage C WriteFileChunk %s: %w", e.Path, err)
				}
				written += int64(n)
			}
			if rerr != nil {
				break
			}
		}
		if _, _, err := w.FsBuilder.Call(ipc.KindReqEndFile, ipc.EndMsg{}, nil); err != nil {
			return fmt.Errorf("stage C EndFile %s: %w", e.Path, err)
		}
		notify(onStatus, ipc.StatusMsg{Kind: "WriteFs", Current: uint64(entriesSeen)})
		offset += e.SizeBytes
		return nil
	})
	if err != nil {
		return fmt.Errorf("pipeline: stage C build image: %w", err)
	}
	return nil
}

// headerReserveBytes is the byte offset Stage C starts laying files out
// at, leaving room for the header sector fs_builder writes via MkFsHeader.
const headerReserveBytes = 512

// selectionBytes sums the content size of every tar entry at tarPath that
// isn't in rejected, without reading any entry's data (ReadEntries skips
// an unread entry's body on to the next header automatically). It backs
// the copy_not_enough_space precondition (spec §4.5, §8): the transfer's
// real footprint on the destination, known once Stage B's rejections are
// final but before Stage C writes a single byte to fs_builder.
func selectionBytes(tarPath string, layout tarworker.Layout, rejected map[string]bool) (uint64, error) {
	var total uint64
	err := tarworker.ReadEntries(tarPath, layout, func(e tarworker.Entry) error {
		if !rejected[e.Path] {
			total += uint64(e.SizeBytes)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pipeline: selection size: %w", err)
	}
	return total, nil
}

// checkDestinationSpace enforces copy_not_enough_space: a zero totalSize
// means no destination capacity is known (e.g. an unsized backend) and the
// check is skipped.
func checkDestinationSpace(tarPath string, layout tarworker.Layout, rejected map[string]bool, totalSize int64) error {
	if totalSize <= 0 {
		return nil
	}
	used, err := selectionBytes(tarPath, layout, rejected)
	if err != nil {
		return err
	}
	if used > uint64(totalSize) {
		return fmt.Errorf("copy_not_enough_space")
	}
	return nil
}

// USBToUSB runs the full USB source -> USB destination choreography (spec
// §4.4.1): select and filter, copy into a tar, optionally analyse it,
// rebuild it into a destination image, stream the dirty bitmap to
// block_writer, and materialise it onto the device.
func USBToUSB(ctx context.Context, w Workers, selection []string, opts Options, onStatus StatusFunc, rb *report.Builder) error {
	roots := NormalizeSelection(selection)
	if err := StageABuildTar(w, roots, opts.Filters, onStatus, rb); err != nil {
		return err
	}
	if err := w.TarWriterHandle.Close(); err != nil {
		return fmt.Errorf("pipeline: close tar: %w", err)
	}
	tarPath := w.TarWriterHandle.OutputPath()

	rejectedSet := make(map[string]bool)
	if opts.AnalyzeEnabled {
		rejected, err := StageBAnalyze(ctx, w, tarPath, rb)
		if err != nil {
			return err
		}
		for _, name := range rejected {
			if err := rb.Reclassify(name); err != nil {
				return err
			}
			rejectedSet[name] = true
		}
	}

	// w.FsBuilderHandle.Init must already have been called by the
	// supervisor once the destination image path and size were known,
	// ahead of this choreography starting.
	if _, _, err := w.FsBuilder.Call(ipc.KindReqMkFsHeader, ipc.MkFsHeaderReq{Label: opts.FsLabel, TotalSizeBytes: uint64(opts.TotalSizeBytes)}, func(s ipc.StatusMsg) {
		notify(onStatus, s)
	}); err != nil {
		return fmt.Errorf("pipeline: MkFsHeader: %w", err)
	}
	if err := checkDestinationSpace(tarPath, tarworker.LayoutBare, rejectedSet, opts.TotalSizeBytes); err != nil {
		return err
	}

	if err := StageCBuildImage(w, tarPath, tarworker.LayoutBare, rejectedSet, onStatus); err != nil {
		return err
	}

	if err := w.FsBuilderHandle.CloseAndEmitBitmap(w.BlockWriter); err != nil {
		return fmt.Errorf("pipeline: emit bitmap: %w", err)
	}

	if err := w.BlockWriterHandle.MaterialiseFromImage(w.FsBuilderHandle.Image(), nil); err != nil {
		return fmt.Errorf("pipeline: materialise image: %w", err)
	}
	return nil
}

// DownloadToUSB runs the Download source -> USB destination choreography
// (spec §4.4.2): net_io fetches a bundled tar from the network instead of
// device_reader walking a device, then Stage C and onward proceed exactly
// as in USBToUSB. The downloaded tar is written to downloadPath as-is;
// unlike Stage A it is already a complete archive, not a stream of
// individual file entries, so it bypasses tar_writer's NewFile/EndFile
// framing entirely.
func DownloadToUSB(ctx context.Context, w Workers, downloadPath string, opts Options, onStatus StatusFunc, rb *report.Builder) error {
	out, err := os.Create(downloadPath)
	if err != nil {
		return fmt.Errorf("pipeline: create download destination: %w", err)
	}

	var written int64
	for {
		_, v, err := w.NetIO.Call(ipc.KindReqDownloadChunk, ipc.DownloadChunkReq{}, nil)
		if err != nil {
			return fmt.Errorf("pipeline: DownloadChunk: %w", err)
		}
		chunk := v.(ipc.DownloadChunkResp)
		if len(chunk.Data) > 0 {
			if _, err := out.Write(chunk.Data); err != nil {
				return fmt.Errorf("pipeline: write downloaded tar: %w", err)
			}
			written += int64(len(chunk.Data))
			notify(onStatus, ipc.StatusMsg{Kind: "Download", Current: uint64(written)})
		}
		if chunk.Final {
			break
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("pipeline: close downloaded tar: %w", err)
	}
	tarPath := downloadPath

	rejectedSet := make(map[string]bool)
	if opts.AnalyzeEnabled {
		rejected, err := StageBAnalyze(ctx, w, tarPath, rb)
		if err != nil {
			return err
		}
		for _, name := range rejected {
			if err := rb.Reclassify(name); err != nil {
				return err
			}
			rejectedSet[name] = true
		}
	}

	if _, _, err := w.FsBuilder.Call(ipc.KindReqMkFsHeader, ipc.MkFsHeaderReq{Label: opts.FsLabel, TotalSizeBytes: uint64(opts.TotalSizeBytes)}, func(s ipc.StatusMsg) {
		notify(onStatus, s)
	}); err != nil {
		return fmt.Errorf("pipeline: MkFsHeader: %w", err)
	}
	if err := checkDestinationSpace(tarPath, tarworker.LayoutBundled, rejectedSet, opts.TotalSizeBytes); err != nil {
		return err
	}
	if err := StageCBuildImage(w, tarPath, tarworker.LayoutBundled, rejectedSet, onStatus); err != nil {
		return err
	}
	if err := w.FsBuilderHandle.CloseAndEmitBitmap(w.BlockWriter); err != nil {
		return fmt.Errorf("pipeline: emit bitmap: %w", err)
	}
	return w.BlockWriterHandle.MaterialiseFromImage(w.FsBuilderHandle.Image(), nil)
}

// Wipe runs the standalone device-wipe choreography (spec §4.4.3):
// block_writer overwrites the whole destination with patternByte,
// passCount times. passCount 0 matches the spec's quick-wipe shortcut.
// Wipe forwards Status{Wipe,...} from the overwrite pass (none when
// passCount is 0) and then Status{MkFs,...} from fs_builder writing a
// fresh blank filesystem of fsLabel onto the image, which block_writer
// then materialises onto the destination exactly as Stage C does; that
// last step reports no Status.
func Wipe(w Workers, patternByte uint32, passCount uint32, fsLabel string, totalSizeBytes int64, onStatus StatusFunc) error {
	if _, _, err := w.BlockWriter.Call(ipc.KindReqWipe, ipc.WipeReq{PatternByte: patternByte, PassCount: passCount}, func(s ipc.StatusMsg) {
		notify(onStatus, s)
	}); err != nil {
		return fmt.Errorf("pipeline: wipe: %w", err)
	}

	if _, _, err := w.FsBuilder.Call(ipc.KindReqMkFsHeader, ipc.MkFsHeaderReq{Label: fsLabel, TotalSizeBytes: uint64(totalSizeBytes)}, func(s ipc.StatusMsg) {
		notify(onStatus, s)
	}); err != nil {
		return fmt.Errorf("pipeline: wipe mkfs: %w", err)
	}

	if err := w.FsBuilderHandle.CloseAndEmitBitmap(w.BlockWriter); err != nil {
		return fmt.Errorf("pipeline: wipe emit bitmap: %w", err)
	}

	if err := w.BlockWriterHandle.MaterialiseFromImage(w.FsBuilderHandle.Image(), nil); err != nil {
		return fmt.Errorf("pipeline: wipe materialise: %w", err)
	}
	return nil
}

// ImgDisk runs the whole-device imaging choreography (spec §4.4.4):
// device_reader streams every sector of the open device into a local
// image file, reporting progress via Status frames.
func ImgDisk(w Workers, deviceID string, onStatus StatusFunc) error {
	_, _, err := w.DeviceReader.Call(ipc.KindReqImgDisk, ipc.ImgDiskReq{DeviceID: deviceID}, func(s ipc.StatusMsg) {
		notify(onStatus, s)
	})
	if err != nil {
		return fmt.Errorf("pipeline: img disk: %w", err)
	}
	return nil
}

// uploadTar streams tarPath to w.NetIO via the same chunked UploadChunk
// request the analyser's Stage B upload uses (spec §4.4.1 Stage C "Net
// destination").
func uploadTar(w Workers, tarPath string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("pipeline: open tar for upload: %w", err)
	}
	defer f.Close()

	buf := make([]byte, readFileChunkSize)
	for {
		n, rerr := f.Read(buf)
		final := rerr != nil
		if n > 0 || final {
			if _, _, err := w.NetIO.Call(ipc.KindReqUploadChunk, ipc.UploadChunkReq{Data: buf[:n], Final: final}, nil); err != nil {
				return fmt.Errorf("pipeline: upload tar: %w", err)
			}
		}
		if final {
			break
		}
	}
	return nil
}

// USBToNet runs the USB source -> Net destination choreography (spec
// §4.4.1 Stage C "Net destination"): Stage A and optional Stage B proceed
// exactly as in USBToUSB, but the resulting tar (filtered to non-rejected
// files) is uploaded instead of materialised onto a device.
func USBToNet(ctx context.Context, w Workers, selection []string, opts Options, onStatus StatusFunc, rb *report.Builder) error {
	roots := NormalizeSelection(selection)
	if err := StageABuildTar(w, roots, opts.Filters, onStatus, rb); err != nil {
		return err
	}
	if err := w.TarWriterHandle.Close(); err != nil {
		return fmt.Errorf("pipeline: close tar: %w", err)
	}
	tarPath := w.TarWriterHandle.OutputPath()

	if opts.AnalyzeEnabled {
		rejected, err := StageBAnalyze(ctx, w, tarPath, rb)
		if err != nil {
			return err
		}
		for _, name := range rejected {
			if err := rb.Reclassify(name); err != nil {
				return err
			}
		}
	}

	return uploadTar(w, tarPath)
}

// USBToCmd runs the USB source -> Command destination choreography (spec
// §4.4.1 Stage C "Command destination"): Stage A and optional Stage B
// proceed as usual, then cmd_exec runs the configured binary against the
// resulting tar, substituting %SOURCE_FILE% with its path. A non-zero
// exit status is a fatal transfer error.
func USBToCmd(ctx context.Context, w Workers, selection []string, argv []string, opts Options, onStatus StatusFunc, rb *report.Builder) error {
	roots := NormalizeSelection(selection)
	if err := StageABuildTar(w, roots, opts.Filters, onStatus, rb); err != nil {
		return err
	}
	if err := w.TarWriterHandle.Close(); err != nil {
		return fmt.Errorf("pipeline: close tar: %w", err)
	}
	tarPath := w.TarWriterHandle.OutputPath()

	if opts.AnalyzeEnabled {
		rejected, err := StageBAnalyze(ctx, w, tarPath, rb)
		if err != nil {
			return err
		}
		for _, name := range rejected {
			if err := rb.Reclassify(name); err != nil {
				return err
			}
		}
	}

	resolved := make([]string, len(argv))
	for i, a := range argv {
		resolved[i] = strings.ReplaceAll(a, "%SOURCE_FILE%", tarPath)
	}

	_, v, err := w.CmdExec.Call(ipc.KindReqExecCmd, ipc.ExecCmdReq{Argv: resolved}, nil)
	if err != nil {
		return fmt.Errorf("pipeline: exec command destination: %w", err)
	}
	if resp := v.(ipc.ExecCmdResp); resp.ExitCode != 0 {
		return fmt.Errorf("pipeline: command destination exited %d: %s", resp.ExitCode, string(resp.Stderr))
	}
	return nil
}

// PostCopyCommand runs the optional post-copy command against either the
// output tar or the output filesystem image, substituting %SOURCE_FILE%
// with sourcePath (spec §4.4.1 Stage D). A nil argv is a no-op.
func PostCopyCommand(w Workers, argv []string, sourcePath string) error {
	if len(argv) == 0 {
		return nil
	}
	resolved := make([]string, len(argv))
	for i, a := range argv {
		resolved[i] = strings.ReplaceAll(a, "%SOURCE_FILE%", sourcePath)
	}
	_, v, err := w.CmdExec.Call(ipc.KindReqExecCmd, ipc.ExecCmdReq{Argv: resolved}, nil)
	if err != nil {
		return fmt.Errorf("pipeline: post-copy command: %w", err)
	}
	if resp := v.(ipc.ExecCmdResp); resp.ExitCode != 0 {
		return fmt.Errorf("pipeline: post-copy command exited %d: %s", resp.ExitCode, string(resp.Stderr))
	}
	return nil
}
