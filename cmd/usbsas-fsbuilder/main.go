// Command usbsas-fsbuilder is the standalone fs_builder worker binary: it
// materialises a destination filesystem image file and, once closed,
// streams its dirty-sector bitmap onward (spec §4.4.1 Stage C, §4.5). The
// supervisor normally drives fs_builder in-process for direct Image()
// access; this binary exists for out-of-process use.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/usbsas/usbsas-core/internal/logging"
	"github.com/usbsas/usbsas-core/internal/worker"
	"github.com/usbsas/usbsas-core/internal/workers/fsbuilder"
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

	imgPath := os.Getenv("USBSAS_FS_IMAGE_PATH")
	if imgPath == "" {
		log.Fatal("fs_builder: USBSAS_FS_IMAGE_PATH is required")
	}
	totalSize, err := strconv.ParseInt(os.Getenv("USBSAS_FS_TOTAL_SIZE"), 10, 64)
	if err != nil {
		log.Fatalf("fs_builder: invalid USBSAS_FS_TOTAL_SIZE: %v", err)
	}

	h := fsbuilder.New(logger)
	if err := h.Init(imgPath, totalSize); err != nil {
		log.Fatalf("fs_builder: %v", err)
	}

	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.FileSyscalls()) },
	})

	if err := rt.Serve(ctx, os.Stdin, os.Stdout, h); err != nil {
		log.Fatalf("fs_builder: %v", err)
	}
}
