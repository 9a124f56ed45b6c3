package usbsas

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/usbsas/usbsas-core/internal/config"
	"github.com/usbsas/usbsas-core/internal/descriptor"
	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
	"github.com/usbsas/usbsas-core/internal/netclient"
	"github.com/usbsas/usbsas-core/internal/pipeline"
	"github.com/usbsas/usbsas-core/internal/report"
	"github.com/usbsas/usbsas-core/internal/usbtransport"
	"github.com/usbsas/usbsas-core/internal/worker"
	"github.com/usbsas/usbsas-core/internal/workers/blockwriter"
	"github.com/usbsas/usbsas-core/internal/workers/fsbuilder"
	"github.com/usbsas/usbsas-core/internal/workers/netio"
	"github.com/usbsas/usbsas-core/internal/workers/tarworker"
)

// Options configures a new Supervisor.
type Options struct {
	Context  context.Context
	Config   *config.Config
	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// spawnedWorker is a running worker process or in-process goroutine, kept
// around so End/Shutdown can tear it down regardless of which spawn
// strategy produced it.
type spawnedWorker struct {
	conn *ipc.Conn
	cmd  *exec.Cmd       // set for a real subprocess
	done <-chan error    // set for an in-process worker.Runtime
}

// Supervisor is the top-level orchestrator a usbsasd process wraps around
// a Unix socket listener (spec §3, §6): it owns the transfer state
// machine, spawns and tears down worker processes per transfer, and
// drives the pipeline choreography matching the transfer's destination.
type Supervisor struct {
	cfg      *config.Config
	logger   interfaces.Logger
	observer interfaces.Observer
	store    *report.Store
	client   *netclient.Client

	ctx    context.Context
	cancel context.CancelFunc

	userID string

	mu       sync.Mutex
	state    State
	current  *Transfer
	destKind destinationKind
	srcKind  destinationKind // reused classifier: source is also a descriptor.Kind

	workers     pipeline.Workers
	netIOHandle *netio.Handler // kept when net_io runs in-process, for PrepareDownload
	spawned     []*spawnedWorker
	destFile    interfaces.Backend // destination backend for a USB destination
}

// NewSupervisor opens the local report history store and returns an idle
// Supervisor (spec §3: "created at transfer start and destroyed at
// transfer completion" describes Transfer, not Supervisor, which lives
// for the whole process).
func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Config == nil {
		return nil, NewError("new_supervisor", ErrCodeInvalidParameters, "config is required")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	storePath := filepath.Join(opts.Config.OutDirectory, "usbsas-reports.db")
	store, err := report.OpenStore(storePath)
	if err != nil {
		cancel()
		return nil, WrapError("new_supervisor", err)
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		cancel()
		store.Close()
		return nil, WrapError("new_supervisor", err)
	}

	return &Supervisor{
		cfg:      opts.Config,
		logger:   opts.Logger,
		observer: opts.Observer,
		store:    store,
		client:   netclient.New(opts.Config.Analyzer.Timeout),
		ctx:      ctx,
		cancel:   cancel,
		userID:   strings.ReplaceAll(id, "-", ""),
		state:    StateIdle,
	}, nil
}

// UserID returns the identifier this supervisor instance uses to scope
// its network upload/download/analyser requests (spec §6: "HTTP POST
// url/{user_id}").
func (s *Supervisor) UserID() string { return s.userID }

// OutDirectory returns the configured scratch/output directory, the base
// path ImgDisk writes its destination image under (spec §4.4.2).
func (s *Supervisor) OutDirectory() string { return s.cfg.OutDirectory }

// State returns the supervisor's current transfer-machine state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) move(next State) error {
	if !s.state.canMoveTo(next) {
		return NewError("transition", ErrCodeInvalidStateForOp,
			fmt.Sprintf("cannot move from %s to %s", s.state, next))
	}
	s.state = next
	return nil
}

// Devices enumerates USB devices attached to the kiosk (via the usb_dev
// worker) and merges them with the destinations named in configuration:
// every `[[networks]]` entry, the `[source_network]` entry, and the
// `[command]` destination (spec §4.3 "Enumeration": "merged by the
// supervisor with configured networks and command destinations").
func (s *Supervisor) Devices() ([]descriptor.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.move(StateEnumerating); err != nil {
		return nil, err
	}

	var out []descriptor.Descriptor

	conn, sw, err := s.spawnSubprocess("usb_dev", "")
	if err != nil {
		s.state = StateError
		return nil, WrapError("devices", err)
	}
	defer s.teardown(sw)

	_, v, err := conn.Call(ipc.KindReqDevices, nil, nil)
	if err != nil {
		s.state = StateError
		return nil, WrapError("devices", err)
	}
	for _, d := range v.(ipc.DevicesResp).Devices {
		out = append(out, descriptor.Descriptor{
			Kind: descriptor.KindUSBDevice, DeviceID: d.ID, Vendor: d.Vendor, Model: d.Model, Serial: d.Serial,
		})
	}

	for _, n := range s.cfg.Networks {
		out = append(out, descriptor.Descriptor{Kind: descriptor.KindNetworkUpload, URL: n.URL})
	}
	if s.cfg.SourceNetwork.URL != "" {
		out = append(out, descriptor.Descriptor{Kind: descriptor.KindNetworkUpload, URL: s.cfg.SourceNetwork.URL})
	}
	if s.cfg.Command.CommandBin != "" {
		out = append(out, descriptor.Descriptor{
			Kind:        descriptor.KindCommand,
			CommandBin:  s.cfg.Command.CommandBin,
			CommandArgs: s.cfg.Command.CommandArgs,
			Title:       s.cfg.Command.Description,
			Description: s.cfg.Command.LongDescription,
		})
	}

	return out, nil
}

// InitTransfer records the chosen source/destination pair and derives the
// transfer's id, moving Enumerating -> Selecting (spec §4.3).
func (s *Supervisor) InitTransfer(src, dst descriptor.Descriptor, fstype string) (*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.move(StateSelecting); err != nil {
		return nil, err
	}

	destKind, err := classifyDestination(dst)
	if err != nil {
		s.state = StateError
		return nil, WrapError("init_transfer", err)
	}
	srcKind, err := classifyDestination(src)
	if err != nil {
		s.state = StateError
		return nil, WrapError("init_transfer", err)
	}

	filters, err := s.cfg.FilterSet()
	if err != nil {
		s.state = StateError
		return nil, WrapError("init_transfer", err)
	}

	id := descriptor.NewTransferID(src, dst)
	s.current = newTransfer(id, src, dst, fstype, filters)
	s.destKind = destKind
	s.srcKind = srcKind
	return s.current, nil
}

// OpenDevice opens the transfer's source device and moves Selecting ->
// Browsing (spec §4.3).
func (s *Supervisor) OpenDevice(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return NewError("open_device", ErrCodeInvalidStateForOp, "no transfer initialised")
	}
	if err := s.move(StateBrowsing); err != nil {
		return err
	}

	if err := s.ensureSourceReader(); err != nil {
		s.state = StateError
		return err
	}

	if _, _, err := s.workers.DeviceReader.Call(ipc.KindReqOpenDevice, ipc.OpenDeviceReq{DeviceID: deviceID}, nil); err != nil {
		s.state = StateError
		return WrapError("open_device", err)
	}
	return nil
}

// ensureSourceReader spawns device_reader for a USB source, lazily, the
// first time the transfer needs to walk a directory tree or stream files.
func (s *Supervisor) ensureSourceReader() error {
	if s.workers.DeviceReader != nil {
		return nil
	}
	conn, sw, err := s.spawnSubprocess("device_reader", s.current.ID)
	if err != nil {
		return err
	}
	s.spawned = append(s.spawned, sw)
	s.workers.DeviceReader = conn
	return nil
}

// Partitions lists the partitions of the currently opened source device
// (spec §4.3, stays in Browsing).
func (s *Supervisor) Partitions() ([]ipc.PartitionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBrowsing || s.workers.DeviceReader == nil {
		return nil, NewError("partitions", ErrCodeInvalidStateForOp, "no device open")
	}
	_, v, err := s.workers.DeviceReader.Call(ipc.KindReqPartitions, nil, nil)
	if err != nil {
		return nil, WrapError("partitions", err)
	}
	return v.(ipc.PartitionsResp).Partitions, nil
}

// OpenPartition selects a partition to browse (Browsing -> Browsing).
func (s *Supervisor) OpenPartition(index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBrowsing || s.workers.DeviceReader == nil {
		return NewError("open_partition", ErrCodeInvalidStateForOp, "no device open")
	}
	if _, _, err := s.workers.DeviceReader.Call(ipc.KindReqOpenPartition, ipc.OpenPartitionReq{Index: index}, nil); err != nil {
		return WrapError("open_partition", err)
	}
	return nil
}

// ReadDir lists one directory of the currently browsed partition.
func (s *Supervisor) ReadDir(path string) ([]ipc.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBrowsing || s.workers.DeviceReader == nil {
		return nil, NewError("read_dir", ErrCodeInvalidStateForOp, "no device open")
	}
	_, v, err := s.workers.DeviceReader.Call(ipc.KindReqReadDir, ipc.ReadDirReq{Path: path}, nil)
	if err != nil {
		return nil, WrapError("read_dir", err)
	}
	return v.(ipc.ReadDirResp).Entries, nil
}

// GetAttr stats a single entry of the currently browsed partition.
func (s *Supervisor) GetAttr(path string) (ipc.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBrowsing || s.workers.DeviceReader == nil {
		return ipc.FileEntry{}, NewError("get_attr", ErrCodeInvalidStateForOp, "no device open")
	}
	_, v, err := s.workers.DeviceReader.Call(ipc.KindReqGetAttr, ipc.GetAttrReq{Path: path}, nil)
	if err != nil {
		return ipc.FileEntry{}, WrapError("get_attr", err)
	}
	return v.(ipc.GetAttrResp).Entry, nil
}

// SelectFiles runs the pipeline choreography matching the transfer's
// destination (USBToUSB / USBToNet / USBToCmd, or DownloadToUSB when the
// source is a network), moving Browsing -> Transferring, then on to
// Reporting or Error (spec §4.3, §4.4).
func (s *Supervisor) SelectFiles(selected []string, onStatus pipeline.StatusFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return NewError("select_files", ErrCodeInvalidStateForOp, "no transfer initialised")
	}
	if err := s.move(StateTransferring); err != nil {
		return err
	}
	s.current.Selection = pipeline.NormalizeSelection(selected)

	if err := s.spawnTransferWorkers(); err != nil {
		s.state = StateError
		return err
	}

	opts := pipeline.Options{
		Filters:        s.current.Filters,
		FsLabel:        s.current.FsType,
		TotalSizeBytes: s.destinationSize(),
		AnalyzeEnabled: s.analyzeEnabledFor(s.destKind),
	}

	var err error
	switch {
	case s.srcKind == destNet:
		downloadPath := filepath.Join(s.cfg.OutDirectory, s.current.ID+"-download.tar")
		if err = s.netIOHandle.PrepareDownload(s.ctx); err != nil {
			break
		}
		err = pipeline.DownloadToUSB(s.ctx, s.workers, downloadPath, opts, onStatus, s.current.rb)
	case s.destKind == destUSB:
		err = pipeline.USBToUSB(s.ctx, s.workers, s.current.Selection, opts, onStatus, s.current.rb)
	case s.destKind == destNet:
		err = pipeline.USBToNet(s.ctx, s.workers, s.current.Selection, opts, onStatus, s.current.rb)
	case s.destKind == destCmd:
		err = pipeline.USBToCmd(s.ctx, s.workers, s.current.Selection, s.current.Destination.CommandArgs, opts, onStatus, s.current.rb)
	default:
		err = NewError("select_files", ErrCodeInvalidParameters, "unroutable destination")
	}

	if err == nil {
		err = s.runPostCopy()
	}

	if err != nil {
		s.state = StateError
		return WrapError("select_files", err)
	}
	s.state = StateReporting
	return nil
}

func (s *Supervisor) runPostCopy() error {
	if len(s.cfg.PostCopy.CommandArgs) == 0 && s.cfg.PostCopy.CommandBin == "" {
		return nil
	}
	if s.workers.CmdExec == nil {
		conn, sw, err := s.spawnSubprocess("cmd_exec", s.current.ID)
		if err != nil {
			return err
		}
		s.spawned = append(s.spawned, sw)
		s.workers.CmdExec = conn
	}
	argv := append([]string{s.cfg.PostCopy.CommandBin}, s.cfg.PostCopy.CommandArgs...)
	var sourcePath string
	if s.workers.TarWriterHandle != nil {
		sourcePath = s.workers.TarWriterHandle.OutputPath()
	} else if s.workers.FsBuilderHandle != nil && s.workers.FsBuilderHandle.Image() != nil {
		sourcePath = s.workers.FsBuilderHandle.Image().Path()
	}
	return pipeline.PostCopyCommand(s.workers, argv, sourcePath)
}

func (s *Supervisor) analyzeEnabledFor(kind destinationKind) bool {
	switch kind {
	case destUSB:
		return s.cfg.Analyzer.AnalyzeUSB
	case destNet:
		return s.cfg.Analyzer.AnalyzeNet
	case destCmd:
		return s.cfg.Analyzer.AnalyzeCmd
	default:
		return false
	}
}

func (s *Supervisor) destinationSize() int64 {
	if s.destFile != nil {
		return s.destFile.Size()
	}
	return 0
}

// Report finalises the current transfer's report, persists it, and moves
// Reporting -> Done (spec §4.3, §4.8).
func (s *Supervisor) Report() (report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return report.Report{}, NewError("report", ErrCodeInvalidStateForOp, "no transfer initialised")
	}
	if err := s.move(StateDone); err != nil {
		return report.Report{}, err
	}

	r := s.current.rb.Finish("ok", "")
	if err := s.store.Save(r); err != nil {
		return report.Report{}, WrapError("report", err)
	}

	s.teardownTransfer()
	return r, nil
}

// ImgDisk runs the standalone whole-device imaging choreography, Idle ->
// Imaging -> Done (spec §4.4.4).
func (s *Supervisor) ImgDisk(deviceID, outputPath string, onStatus pipeline.StatusFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.move(StateImaging); err != nil {
		return err
	}

	conn, sw, err := s.spawnSubprocess("device_reader", "")
	if err != nil {
		s.state = StateError
		return WrapError("img_disk", err)
	}
	defer s.teardown(sw)

	if _, _, err := conn.Call(ipc.KindReqOpenDevice, ipc.OpenDeviceReq{DeviceID: deviceID}, nil); err != nil {
		s.state = StateError
		return WrapError("img_disk", err)
	}

	w := pipeline.Workers{DeviceReader: conn}
	if err := pipeline.ImgDisk(w, deviceID, onStatus); err != nil {
		s.state = StateError
		return WrapError("img_disk", err)
	}
	s.state = StateDone
	return nil
}

// Wipe runs the standalone device-wipe choreography, Idle -> Wiping ->
// Done (spec §4.4.3). quick skips the zero-fill pass.
func (s *Supervisor) Wipe(destPath, fstype string, quick bool, totalSizeBytes int64, onStatus pipeline.StatusFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.move(StateWiping); err != nil {
		return err
	}

	dest, err := usbtransport.OpenMock(destPath, true)
	if err != nil {
		s.state = StateError
		return WrapError("wipe", err)
	}
	defer dest.Close()

	fsb := fsbuilder.New(s.logger)
	imgPath := filepath.Join(s.cfg.OutDirectory, "wipe.img")
	if err := fsb.Init(imgPath, totalSizeBytes); err != nil {
		s.state = StateError
		return WrapError("wipe", err)
	}
	defer os.Remove(imgPath)

	fsbConn, fsbDone, err := s.spawnInProcess(fsb, "")
	if err != nil {
		s.state = StateError
		return WrapError("wipe", err)
	}
	defer s.teardown(&spawnedWorker{conn: fsbConn, done: fsbDone})

	bw := blockwriter.New(s.logger, dest)
	bwConn, bwDone, err := s.spawnInProcess(bw, "")
	if err != nil {
		s.state = StateError
		return WrapError("wipe", err)
	}
	defer s.teardown(&spawnedWorker{conn: bwConn, done: bwDone})

	w := pipeline.Workers{
		FsBuilder:         fsbConn,
		FsBuilderHandle:   fsb,
		BlockWriter:       bwConn,
		BlockWriterHandle: bw,
	}

	passCount := uint32(1)
	if quick {
		passCount = 0
	}
	if err := pipeline.Wipe(w, 0, passCount, fstype, totalSizeBytes, onStatus); err != nil {
		s.state = StateError
		return WrapError("wipe", err)
	}
	s.state = StateDone
	return nil
}

// End aborts the in-flight transfer, if any, sending End to every worker
// in pipeline order and returning to Idle (spec §5: "Cancellation").
func (s *Supervisor) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownTransfer()
	s.state = StateIdle
	return nil
}

// Shutdown cancels the supervisor's context, tearing down any worker
// still attached, and closes the report history store.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownTransfer()
	s.cancel()
	return s.store.Close()
}

func (s *Supervisor) teardownTransfer() {
	for _, sw := range s.spawned {
		s.teardown(sw)
	}
	s.spawned = nil
	s.workers = pipeline.Workers{}
	s.current = nil
	s.destFile = nil
}

func (s *Supervisor) teardown(sw *spawnedWorker) {
	if sw == nil || sw.conn == nil {
		return
	}
	_, _, _ = sw.conn.Call(ipc.KindReqEnd, ipc.EndMsg{}, nil)
	if closer, ok := sw.conn.Out.(io.Closer); ok {
		closer.Close()
	}
	if sw.cmd != nil {
		_ = sw.cmd.Wait()
	}
}

// spawnTransferWorkers assembles pipeline.Workers for the current
// transfer based on its source/destination classification, spawning a
// real subprocess for every worker with no direct-handle dependency and
// an in-process worker.Runtime for tar_writer/fs_builder/block_writer,
// which the pipeline drives through their exported methods directly
// (spec §5: "handed off by filename, not by frame").
func (s *Supervisor) spawnTransferWorkers() error {
	tr := s.current

	if s.srcKind == destUSB {
		if err := s.ensureSourceReader(); err != nil {
			return err
		}
	}

	tarPath := filepath.Join(s.cfg.OutDirectory, tr.ID+".tar")
	layout := tarworker.LayoutBare
	if s.destKind == destNet {
		layout = tarworker.LayoutBundled
	}
	tw, err := tarworker.NewWriter(s.logger, layout, tarPath)
	if err != nil {
		return WrapError("spawn_workers", err)
	}
	twConn, twDone, err := s.spawnInProcess(tw, tr.ID)
	if err != nil {
		return err
	}
	s.spawned = append(s.spawned, &spawnedWorker{conn: twConn, done: twDone})
	s.workers.TarWriter = twConn
	s.workers.TarWriterHandle = tw

	if s.destKind == destUSB {
		dest, err := usbtransport.OpenMock(tr.Destination.Path, true)
		if err != nil {
			return WrapError("spawn_workers", err)
		}
		s.destFile = dest

		fsb := fsbuilder.New(s.logger)
		imgPath := filepath.Join(s.cfg.OutDirectory, tr.ID+".img")
		if err := fsb.Init(imgPath, dest.Size()); err != nil {
			return WrapError("spawn_workers", err)
		}
		fsbConn, fsbDone, err := s.spawnInProcess(fsb, tr.ID)
		if err != nil {
			return err
		}
		s.spawned = append(s.spawned, &spawnedWorker{conn: fsbConn, done: fsbDone})
		s.workers.FsBuilder = fsbConn
		s.workers.FsBuilderHandle = fsb

		bw := blockwriter.New(s.logger, dest)
		bwConn, bwDone, err := s.spawnInProcess(bw, tr.ID)
		if err != nil {
			return err
		}
		s.spawned = append(s.spawned, &spawnedWorker{conn: bwConn, done: bwDone})
		s.workers.BlockWriter = bwConn
		s.workers.BlockWriterHandle = bw
	}

	// A Net source needs direct access to PrepareDownload ahead of the
	// DownloadChunk requests pipeline.DownloadToUSB issues, so it runs
	// in-process rather than as a subprocess (spec §5: workers with no
	// corresponding IPC request are driven through a kept handle).
	if s.srcKind == destNet {
		client, err := s.netClientFor(s.cfg.SourceNetwork.KerberosService)
		if err != nil {
			return WrapError("spawn_workers", err)
		}
		nio := netio.New(s.logger, client, s.cfg.SourceNetwork.URL, s.userID)
		conn, done, err := s.spawnInProcess(nio, tr.ID)
		if err != nil {
			return err
		}
		s.spawned = append(s.spawned, &spawnedWorker{conn: conn, done: done})
		s.workers.NetIO = conn
		s.netIOHandle = nio
	} else if s.destKind == destNet {
		conn, sw, err := s.spawnSubprocess("net_io", tr.ID)
		if err != nil {
			return err
		}
		s.spawned = append(s.spawned, sw)
		s.workers.NetIO = conn
	}

	if s.destKind == destCmd {
		conn, sw, err := s.spawnSubprocess("cmd_exec", tr.ID)
		if err != nil {
			return err
		}
		s.spawned = append(s.spawned, sw)
		s.workers.CmdExec = conn
	}

	if s.analyzeEnabledFor(s.destKind) {
		conn, sw, err := s.spawnSubprocess("analyzer", tr.ID)
		if err != nil {
			return err
		}
		s.spawned = append(s.spawned, sw)
		s.workers.Analyzer = conn
	}

	return nil
}

// networkKrbService looks up the Kerberos service name configured for the
// network destination matching url, if any.
func (s *Supervisor) networkKrbService(url string) string {
	if s.cfg.SourceNetwork.URL == url {
		return s.cfg.SourceNetwork.KerberosService
	}
	for _, n := range s.cfg.Networks {
		if n.URL == url {
			return n.KerberosService
		}
	}
	return ""
}

// netClientFor returns s.client unchanged for a plain network, or a fresh
// Kerberos-wrapped client when krbService names a service principal,
// reusing the keytab configured for the analyser since networks and the
// analyser authenticate against the same internal realm (spec §6, §4.7).
func (s *Supervisor) netClientFor(krbService string) (*netclient.Client, error) {
	if krbService == "" {
		return s.client, nil
	}
	return netclient.NewWithKerberos(s.cfg.Analyzer.Timeout, netclient.KerberosConfig{
		Realm:      krbService,
		KeytabPath: s.cfg.Analyzer.KeytabPath,
		Username:   s.userID,
	})
}

// subprocessEnv builds the extra environment variables a worker binary
// needs beyond InitMsg's TransferID/Worker fields (spec §6: network URLs,
// Kerberos service names, and the USB whitelist are process configuration,
// not per-request IPC payload, so they cross the exec boundary as env vars
// the same way USBSAS_MOCK_IN_DEV/USBSAS_MOCK_OUT_DEV already do).
func (s *Supervisor) subprocessEnv(name string) []string {
	env := os.Environ()
	add := func(k, v string) {
		if v != "" {
			env = append(env, k+"="+v)
		}
	}
	switch name {
	case "net_io":
		add("USBSAS_NET_USER_ID", s.userID)
		add("USBSAS_NET_KEYTAB", s.cfg.Analyzer.KeytabPath)
		if s.destKind == destNet {
			add("USBSAS_NET_URL", s.current.Destination.URL)
			add("USBSAS_NET_KRB_SERVICE", s.networkKrbService(s.current.Destination.URL))
		}
	case "analyzer":
		add("USBSAS_ANALYZER_URL", s.cfg.Analyzer.URL)
		add("USBSAS_ANALYZER_USER_ID", s.userID)
		add("USBSAS_ANALYZER_KRB_SERVICE", s.cfg.Analyzer.KerberosService)
		add("USBSAS_ANALYZER_KEYTAB", s.cfg.Analyzer.KeytabPath)
	case "cmd_exec":
		add("USBSAS_CMD_TIMEOUT", s.cfg.Analyzer.Timeout.String())
	case "usb_dev":
		paths := make([]string, len(s.cfg.USBPorts.PortsSrc))
		for i, p := range s.cfg.USBPorts.PortsSrc {
			parts := make([]string, len(p))
			for j, n := range p {
				parts[j] = fmt.Sprint(n)
			}
			paths[i] = strings.Join(parts, ",")
		}
		add("USBSAS_USB_WHITELIST", strings.Join(paths, ";"))
	}
	return env
}

// spawnSubprocess starts the configured binary for name, wires an ipc.Conn
// to its stdin/stdout, and completes the Init handshake (spec §3, §4.2).
func (s *Supervisor) spawnSubprocess(name, transferID string) (*ipc.Conn, *spawnedWorker, error) {
	binPath, ok := s.cfg.Workers[name]
	if !ok {
		return nil, nil, NewError("spawn", ErrCodeInvalidParameters, fmt.Sprintf("no binary configured for worker %q", name))
	}

	cmd := exec.CommandContext(s.ctx, binPath)
	cmd.Stderr = os.Stderr
	cmd.Env = s.subprocessEnv(name)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, WrapError("spawn", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, WrapError("spawn", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, WrapError("spawn", err)
	}

	conn := ipc.NewConn(stdin, stdout)
	if _, _, err := conn.Call(ipc.KindReqInit, ipc.InitMsg{TransferID: transferID, Worker: name}, nil); err != nil {
		_ = cmd.Process.Kill()
		return nil, nil, NewWorkerError("spawn", name, transferID, ErrCodeWorkerCrashed, err.Error())
	}
	return conn, &spawnedWorker{conn: conn, cmd: cmd}, nil
}

// spawnInProcess drives h through a full worker.Runtime lifecycle over an
// io.Pipe pair in a goroutine, the strategy used for workers the pipeline
// needs direct handle access to (tar_writer, fs_builder, block_writer;
// spec §5).
func (s *Supervisor) spawnInProcess(h worker.Handler, transferID string) (*ipc.Conn, <-chan error, error) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	rt := worker.NewRuntime(worker.Config{Logger: s.logger, Observer: s.observer})
	done := make(chan error, 1)
	go func() { done <- rt.Serve(s.ctx, reqR, respW, h) }()

	conn := ipc.NewConn(reqW, respR)
	if _, _, err := conn.Call(ipc.KindReqInit, ipc.InitMsg{TransferID: transferID, Worker: h.Name()}, nil); err != nil {
		return nil, nil, NewWorkerError("spawn_in_process", h.Name(), transferID, ErrCodeWorkerCrashed, err.Error())
	}
	return conn, done, nil
}
