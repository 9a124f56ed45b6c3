// Command usbsas-devicereader is the device_reader worker binary: it owns
// the source USB device or partition image for a transfer and serves
// directory listing, stat and file-read requests (spec §4.4).
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
	"github.com/usbsas/usbsas-core/internal/workers/devicereader"
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

	h := devicereader.New(logger)
	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.FileSyscalls()) },
	})

	if err := rt.Serve(ctx, os.Stdin, os.Stdout, h); err != nil {
		log.Fatalf("device_reader: %v", err)
	}
}
