// Command usbsasd is the supervisor entrypoint: it loads the TOML
// configuration, opens the frontend's Unix-domain socket, and dispatches
// exactly one connected frontend's requests to a Supervisor until it
// disconnects or sends End (spec §3, §6: "at most one concurrent
// frontend").
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	usbsas "github.com/usbsas/usbsas-core"
	"github.com/usbsas/usbsas-core/internal/config"
	"github.com/usbsas/usbsas-core/internal/constants"
	"github.com/usbsas/usbsas-core/internal/descriptor"
	"github.com/usbsas/usbsas-core/internal/ipc"
	"github.com/usbsas/usbsas-core/internal/logging"
	"github.com/usbsas/usbsas-core/internal/pipeline"
)

func main() {
	configPath := flag.String("config", os.Getenv(constants.EnvConfigPath), "path to usbsas TOML configuration")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("usbsasd: -config or " + constants.EnvConfigPath + " is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("usbsasd: %v", err)
	}

	logConfig := logging.DefaultConfig()
	logConfig.Format = cfg.LogFormat
	if *verbose || cfg.LogLevel == "debug" {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)

	observer := usbsas.NewMetricsObserver(usbsas.NewMetrics())

	sup, err := usbsas.NewSupervisor(usbsas.Options{
		Config:   cfg,
		Logger:   logger,
		Observer: observer,
	})
	if err != nil {
		log.Fatalf("usbsasd: %v", err)
	}

	_ = os.Remove(cfg.SocketPath)
	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		log.Fatalf("usbsasd: listen %s: %v", cfg.SocketPath, err)
	}
	logger.Info("listening", "socket", cfg.SocketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		ln.Close()
		if err := sup.Shutdown(); err != nil {
			logger.Error("shutdown", "error", err.Error())
		}
		os.Exit(0)
	}()

	// Exactly one concurrent frontend (spec §6): accept, fully drain that
	// connection's session, then accept the next.
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("accept", "error", err.Error())
			continue
		}
		logger.Info("frontend connected")
		serveFrontend(sup, logger, conn)
		logger.Info("frontend disconnected")
	}
}

func serveFrontend(sup *usbsas.Supervisor, logger *logging.Logger, conn net.Conn) {
	defer conn.Close()
	srv := ipc.NewServer(conn, conn)

	for {
		kind, req, err := srv.ReadRequest()
		if err != nil {
			if err != io.EOF {
				logger.Error("frontend read", "error", err.Error())
			}
			return
		}

		if kind == ipc.KindReqEnd {
			_ = sup.End()
			_ = srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
			return
		}

		if err := dispatch(sup, srv, kind, req); err != nil {
			logger.Error("dispatch", "kind", kind, "error", err.Error())
			_ = srv.ReplyError("dispatch_failed", err.Error())
		}
	}
}

func dispatch(sup *usbsas.Supervisor, srv *ipc.Server, kind ipc.Kind, req any) error {
	switch kind {
	case ipc.KindReqDevices:
		devices, err := sup.Devices()
		if err != nil {
			return srv.ReplyError("devices_failed", err.Error())
		}
		resp := ipc.DevicesResp{}
		for _, d := range devices {
			if d.Kind != descriptor.KindUSBDevice {
				continue
			}
			resp.Devices = append(resp.Devices, ipc.DeviceInfo{
				ID: d.DeviceID, Vendor: d.Vendor, Model: d.Model, Serial: d.Serial,
			})
		}
		return srv.Reply(ipc.KindRespDevices, resp)

	case ipc.KindReqInitTransfer:
		r := req.(ipc.InitTransferReq)
		tr, err := sup.InitTransfer(toDescriptor(r.Src), toDescriptor(r.Dst), r.FsType)
		if err != nil {
			return srv.ReplyError("init_transfer_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespInitTransfer, ipc.InitTransferResp{TransferID: tr.ID})

	case ipc.KindReqOpenDevice:
		r := req.(ipc.OpenDeviceReq)
		if err := sup.OpenDevice(r.DeviceID); err != nil {
			return srv.ReplyError("open_device_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})

	case ipc.KindReqPartitions:
		parts, err := sup.Partitions()
		if err != nil {
			return srv.ReplyError("partitions_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespPartitions, ipc.PartitionsResp{Partitions: parts})

	case ipc.KindReqOpenPartition:
		r := req.(ipc.OpenPartitionReq)
		if err := sup.OpenPartition(r.Index); err != nil {
			return srv.ReplyError("open_partition_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})

	case ipc.KindReqReadDir:
		r := req.(ipc.ReadDirReq)
		entries, err := sup.ReadDir(r.Path)
		if err != nil {
			return srv.ReplyError("read_dir_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespReadDir, ipc.ReadDirResp{Entries: entries})

	case ipc.KindReqGetAttr:
		r := req.(ipc.GetAttrReq)
		entry, err := sup.GetAttr(r.Path)
		if err != nil {
			return srv.ReplyError("get_attr_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespGetAttr, ipc.GetAttrResp{Entry: entry})

	case ipc.KindReqSelectFiles:
		r := req.(ipc.SelectFilesReq)
		onStatus := func(s ipc.StatusMsg) { _ = srv.SendStatus(s) }
		if err := sup.SelectFiles(r.Paths, pipeline.StatusFunc(onStatus)); err != nil {
			return srv.ReplyError("select_files_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespSelectFiles, ipc.SelectFilesResp{Accepted: r.Paths})

	case ipc.KindReqReport:
		rep, err := sup.Report()
		if err != nil {
			return srv.ReplyError("report_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespReport, ipc.ReportResp{
			TransferID:    rep.TransferID,
			StartedAtUnix: rep.StartedAt.Unix(),
			EndedAtUnix:   rep.EndedAt.Unix(),
			Status:        rep.Status,
			FileNames:     rep.FileNames,
			ErrorFiles:    rep.ErrorFiles,
			FilteredFiles: rep.FilteredFiles,
			RejectedFiles: rep.RejectedFiles,
			BytesWritten:  rep.BytesWritten,
			ErrorMessage:  rep.ErrorMessage,
		})

	case ipc.KindReqImgDisk:
		r := req.(ipc.ImgDiskReq)
		onStatus := func(s ipc.StatusMsg) { _ = srv.SendStatus(s) }
		outputPath := filepath.Join(sup.OutDirectory(), r.DeviceID+".img")
		if err := sup.ImgDisk(r.DeviceID, outputPath, pipeline.StatusFunc(onStatus)); err != nil {
			return srv.ReplyError("img_disk_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})

	case ipc.KindReqWipeDisk:
		r := req.(ipc.WipeDiskReq)
		onStatus := func(s ipc.StatusMsg) { _ = srv.SendStatus(s) }
		if err := sup.Wipe(r.DestPath, r.FsType, r.Quick, r.TotalSizeBytes, pipeline.StatusFunc(onStatus)); err != nil {
			return srv.ReplyError("wipe_failed", err.Error())
		}
		return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})

	default:
		return srv.ReplyError("unexpected_request", "usbsasd: unhandled kind")
	}
}

func toDescriptor(m ipc.DescriptorMsg) descriptor.Descriptor {
	return descriptor.Descriptor{
		Kind:        descriptor.Kind(m.Kind),
		DeviceID:    m.DeviceID,
		Vendor:      m.Vendor,
		Model:       m.Model,
		Serial:      m.Serial,
		URL:         m.URL,
		Path:        m.Path,
		CommandBin:  m.CommandBin,
		CommandArgs: m.CommandArgs,
		Title:       m.Title,
		Description: m.Description,
	}
}
