// Command usbsas-blockwriter is the standalone block_writer worker
// binary: it receives the dirty-sector bitmap from fs_builder and copies
// only the marked sectors onto the destination device, or performs a
// wipe pass (spec §4.4.1 Stage C, §4.4.3, §4.5). The supervisor normally
// drives block_writer in-process; this binary exists for out-of-process
// use against a real or mock destination device.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/usbsas/usbsas-core/internal/logging"
	"github.com/usbsas/usbsas-core/internal/usbtransport"
	"github.com/usbsas/usbsas-core/internal/worker"
	"github.com/usbsas/usbsas-core/internal/workers/blockwriter"
)

func main() {
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; cancel() }()

	destPath := os.Getenv("USBSAS_MOCK_OUT_DEV")
	if destPath == "" {
		log.Fatal("block_writer: USBSAS_MOCK_OUT_DEV is required")
	}
	dest, err := usbtransport.OpenMock(destPath, true)
	if err != nil {
		log.Fatalf("block_writer: open destination: %v", err)
	}
	defer dest.Close()

	h := blockwriter.New(logger, dest)
	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.FileSyscalls()) },
	})

	if err := rt.Serve(ctx, os.Stdin, os.Stdout, h); err != nil {
		log.Fatalf("block_writer: %v", err)
	}
}
