// Command usbsas-cmdexec is the cmd_exec worker binary: it runs the
// configured command destination or post-copy command against the
// finished tar or filesystem image (spec §4.4.1 Stage C "Command
// destination", Stage D "Post-copy command").
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/usbsas/usbsas-core/internal/logging"
	"github.com/usbsas/usbsas-core/internal/worker"
	"github.com/usbsas/usbsas-core/internal/workers/cmdexec"
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

	h := cmdexec.New(logger)
	if raw := os.Getenv("USBSAS_CMD_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			h.Timeout = d
		}
	}

	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.ExecSyscalls()) },
	})

	if err := rt.Serve(ctx, os.Stdin, os.Stdout, h); err != nil {
		log.Fatalf("cmd_exec: %v", err)
	}
}
