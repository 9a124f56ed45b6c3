// Command usbsas-usbdetect is the usb_dev worker binary: it enumerates
// USB mass-storage devices attached to the kiosk for the supervisor's
// Devices response (spec §4.3).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/usbsas/usbsas-core/internal/logging"
	"github.com/usbsas/usbsas-core/internal/worker"
	"github.com/usbsas/usbsas-core/internal/workers/usbdetect"
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

	var whitelist []string
	if raw := os.Getenv("USBSAS_USB_WHITELIST"); raw != "" {
		whitelist = strings.Split(raw, ";")
	}

	h := usbdetect.New(logger, whitelist)
	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.USBSyscalls()) },
	})

	if err := rt.Serve(ctx, os.Stdin, os.Stdout, h); err != nil {
		log.Fatalf("usb_dev: %v", err)
	}
}
