// Package devicereader implements the Stage A worker (spec §4.4.1): it
// enumerates attached mass-storage devices, reports the opened device as a
// single partition (no partition table is parsed), walks the partition's
// directory tree, and serves raw sector reads to img_disk and the
// filesystem builder.
package devicereader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/usbsas/usbsas-core/internal/descriptor"
	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
	"github.com/usbsas/usbsas-core/internal/usbtransport"
)

const sectorSize = 512

// Handler implements worker.Handler for device_reader.
type Handler struct {
	Logger interfaces.Logger

	devices map[string]descriptor.Descriptor
	backend interfaces.Backend

	mountRoot string // directory a selected partition's files are walked under
}

func New(logger interfaces.Logger) *Handler {
	return &Handler{Logger: logger, devices: map[string]descriptor.Descriptor{}}
}

func (h *Handler) Name() string { return "device_reader" }

func (h *Handler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqDevices:
		return h.handleDevices(srv)
	case ipc.KindReqOpenDevice:
		return h.handleOpenDevice(req.(ipc.OpenDeviceReq), srv)
	case ipc.KindReqPartitions:
		return h.handlePartitions(srv)
	case ipc.KindReqOpenPartition:
		return h.handleOpenPartition(req.(ipc.OpenPartitionReq), srv)
	case ipc.KindReqReadDir:
		return h.handleReadDir(req.(ipc.ReadDirReq), srv)
	case ipc.KindReqGetAttr:
		return h.handleGetAttr(req.(ipc.GetAttrReq), srv)
	case ipc.KindReqReadFile:
		return h.handleReadFile(req.(ipc.ReadFileReq), srv)
	case ipc.KindReqReadSectors:
		return h.handleReadSectors(req.(ipc.ReadSectorsReq), srv)
	case ipc.KindReqImgDisk:
		return h.handleImgDisk(req.(ipc.ImgDiskReq), srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("device_reader: unhandled kind %d", kind))
	}
}

// mockInDev is overridable by tests; production code reads
// USBSAS_MOCK_IN_DEV (spec §6).
var mockInDev = func() string { return os.Getenv("USBSAS_MOCK_IN_DEV") }

func (h *Handler) handleDevices(srv *ipc.Server) error {
	var devs []ipc.DeviceInfo

	if path := mockInDev(); path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return srv.ReplyError("device_enum_failed", err.Error())
		}
		d := descriptor.Descriptor{Kind: descriptor.KindUSBDevice, DeviceID: "mock", Vendor: "usbsas", Model: "mock-device", Serial: path}
		h.devices[fmt.Sprintf("%x", d.ID())] = d
		devs = append(devs, ipc.DeviceInfo{
			ID: fmt.Sprintf("%x", d.ID()), Vendor: d.Vendor, Model: d.Model, Serial: d.Serial,
			SizeBytes: uint64(info.Size()), Removable: true,
		})
	}

	return srv.Reply(ipc.KindRespDevices, ipc.DevicesResp{Devices: devs})
}

func (h *Handler) handleOpenDevice(req ipc.OpenDeviceReq, srv *ipc.Server) error {
	d, ok := h.devices[req.DeviceID]
	if !ok {
		return srv.ReplyError("unknown_device", req.DeviceID)
	}
	path := mockInDev()
	if path == "" {
		return srv.ReplyError("device_unavailable", "no mock or real backend configured for this build")
	}
	dev, err := usbtransport.OpenMock(path, false)
	if err != nil {
		return srv.ReplyError("open_device_failed", err.Error())
	}
	h.backend = dev
	_ = d
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

func (h *Handler) handlePartitions(srv *ipc.Server) error {
	if h.backend == nil {
		return srv.ReplyError("no_device_open", "")
	}
	// usbsas-core does not parse a real partition table (spec's Non-goals
	// exclude a filesystem/partition driver); it reports the whole device
	// as partition 0, leaving multi-partition layouts to a future worker.
	parts := []ipc.PartitionInfo{{Index: 0, FsType: "unknown", SizeBytes: uint64(h.backend.Size())}}
	return srv.Reply(ipc.KindRespPartitions, ipc.PartitionsResp{Partitions: parts})
}

func (h *Handler) handleOpenPartition(req ipc.OpenPartitionReq, srv *ipc.Server) error {
	if req.Index != 0 {
		return srv.ReplyError("unknown_partition", fmt.Sprintf("index %d", req.Index))
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

// SetMountRoot is used by tests and by a future real filesystem mounter to
// point ReadDir/GetAttr at a concrete directory tree standing in for the
// opened partition's contents.
func (h *Handler) SetMountRoot(root string) { h.mountRoot = root }

func (h *Handler) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if h.mountRoot == "" {
		return "", fmt.Errorf("no partition mounted")
	}
	return filepath.Join(h.mountRoot, clean), nil
}

func (h *Handler) handleReadDir(req ipc.ReadDirReq, srv *ipc.Server) error {
	full, err := h.resolve(req.Path)
	if err != nil {
		return srv.ReplyError("no_partition", err.Error())
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return srv.ReplyError("read_dir_failed", err.Error())
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []ipc.FileEntry
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, fileEntryOf(e.Name(), info))
	}
	return srv.Reply(ipc.KindRespReadDir, ipc.ReadDirResp{Entries: out})
}

func (h *Handler) handleGetAttr(req ipc.GetAttrReq, srv *ipc.Server) error {
	full, err := h.resolve(req.Path)
	if err != nil {
		return srv.ReplyError("no_partition", err.Error())
	}
	info, err := os.Stat(full)
	if err != nil {
		return srv.ReplyError("stat_failed", err.Error())
	}
	name := filepath.Base(strings.TrimSuffix(req.Path, "/"))
	if req.Path == "/" || req.Path == "" {
		name = "/"
	}
	return srv.Reply(ipc.KindRespGetAttr, ipc.GetAttrResp{Entry: fileEntryOf(name, info)})
}

func fileEntryOf(name string, info fs.FileInfo) ipc.FileEntry {
	return ipc.FileEntry{
		Name:        name,
		IsDir:       info.IsDir(),
		SizeBytes:   uint64(info.Size()),
		ModTimeUnix: info.ModTime().Unix(),
	}
}

// handleReadFile serves one fixed-size chunk of a regular file's content,
// the read side of Stage A's "ask the filesystem reader to read it in
// fixed-size chunks" (spec §4.4.1).
func (h *Handler) handleReadFile(req ipc.ReadFileReq, srv *ipc.Server) error {
	full, err := h.resolve(req.Path)
	if err != nil {
		return srv.ReplyError("no_partition", err.Error())
	}
	f, err := os.Open(full)
	if err != nil {
		return srv.ReplyError("read_file_failed", err.Error())
	}
	defer f.Close()

	buf := make([]byte, req.Length)
	n, err := f.ReadAt(buf, int64(req.Offset))
	final := errors.Is(err, io.EOF)
	if err != nil && !final {
		return srv.ReplyError("read_file_failed", err.Error())
	}
	return srv.Reply(ipc.KindRespReadFile, ipc.ReadFileResp{Data: buf[:n], Final: final})
}

func (h *Handler) handleReadSectors(req ipc.ReadSectorsReq, srv *ipc.Server) error {
	if h.backend == nil {
		return srv.ReplyError("no_device_open", "")
	}
	buf := make([]byte, int64(req.Count)*sectorSize)
	if _, err := h.backend.ReadAt(buf, int64(req.Offset)*sectorSize); err != nil {
		return srv.ReplyError("read_sectors_failed", err.Error())
	}
	return srv.Reply(ipc.KindRespReadSectors, ipc.ReadSectorsResp{Data: buf})
}

// handleImgDisk streams every sector of the currently open device to a
// local file in fixed-size chunks, reporting progress via Status frames
// (spec §4.4.4).
func (h *Handler) handleImgDisk(req ipc.ImgDiskReq, srv *ipc.Server) error {
	if h.backend == nil {
		return srv.ReplyError("no_device_open", "")
	}
	out, err := os.Create(req.DeviceID + ".img")
	if err != nil {
		return srv.ReplyError("img_disk_failed", err.Error())
	}
	defer out.Close()

	const chunkSectors = 2048 // 1 MiB at 512-byte sectors
	total := h.backend.Size()
	chunkBytes := int64(chunkSectors) * sectorSize
	buf := make([]byte, chunkBytes)

	var written int64
	for written < total {
		n := chunkBytes
		if total-written < n {
			n = total - written
		}
		if _, err := h.backend.ReadAt(buf[:n], written); err != nil {
			return srv.ReplyError("img_disk_read_failed", err.Error())
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return srv.ReplyError("img_disk_write_failed", err.Error())
		}
		written += n
		if err := srv.SendStatus(ipc.StatusMsg{Kind: "DiskImg", Current: uint64(written), Total: uint64(total)}); err != nil {
			return err
		}
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}
