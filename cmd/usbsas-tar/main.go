// Command usbsas-tar is the standalone tar_writer worker binary: it
// accumulates NewFile/WriteFileChunk/EndFile requests into one archive
// file (spec §4.4.1 Stage A). The supervisor normally drives tar_writer
// in-process for direct OutputPath() access; this binary exists for
// out-of-process use and matches the rest of the worker roster.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/usbsas/usbsas-core/internal/logging"
	"github.com/usbsas/usbsas-core/internal/worker"
	"github.com/usbsas/usbsas-core/internal/workers/tarworker"
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

	outputPath := os.Getenv("USBSAS_TAR_OUTPUT_PATH")
	if outputPath == "" {
		log.Fatal("tar_writer: USBSAS_TAR_OUTPUT_PATH is required")
	}
	layout := tarworker.LayoutBare
	if os.Getenv("USBSAS_TAR_LAYOUT") == "bundled" {
		layout = tarworker.LayoutBundled
	}

	h, err := tarworker.NewWriter(logger, layout, outputPath)
	if err != nil {
		log.Fatalf("tar_writer: %v", err)
	}
	defer h.Close()

	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.FileSyscalls()) },
	})

	if err := rt.Serve(ctx, os.Stdin, os.Stdout, h); err != nil {
		log.Fatalf("tar_writer: %v", err)
	}
}
