// Command usbsas-analyzer is the analyzer worker binary: it uploads the
// Stage A tar to the configured antivirus endpoint, polls for a verdict,
// and serves the resulting report back to the supervisor (spec §4.4.1
// Stage B, §6).
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
	"github.com/usbsas/usbsas-core/internal/netclient"
	"github.com/usbsas/usbsas-core/internal/worker"
	"github.com/usbsas/usbsas-core/internal/workers/analyzer"
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

	url := os.Getenv("USBSAS_ANALYZER_URL")
	userID := os.Getenv("USBSAS_ANALYZER_USER_ID")
	krbService := os.Getenv("USBSAS_ANALYZER_KRB_SERVICE")

	client, err := newClient(krbService, userID)
	if err != nil {
		log.Fatalf("analyzer: %v", err)
	}

	h := analyzer.New(logger, client, url, userID)
	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.NetSyscalls()) },
	})

	if err := rt.Serve(ctx, os.Stdin, os.Stdout, h); err != nil {
		log.Fatalf("analyzer: %v", err)
	}
}

func newClient(krbService, userID string) (*netclient.Client, error) {
	const timeout = 5 * time.Minute
	if krbService == "" {
		return netclient.New(timeout), nil
	}
	return netclient.NewWithKerberos(timeout, netclient.KerberosConfig{
		Realm:      krbService,
		KeytabPath: os.Getenv("USBSAS_ANALYZER_KEYTAB"),
		Username:   userID,
	})
}
