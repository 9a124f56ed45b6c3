// Command usbsas-netio is the net_io worker binary: it uploads a finished
// tar to a destination network or downloads one from a source network
// (spec §4.4.1 Stage C "Net destination", §4.4.2, §6).
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
	"github.com/usbsas/usbsas-core/internal/workers/netio"
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

	url := os.Getenv("USBSAS_NET_URL")
	userID := os.Getenv("USBSAS_NET_USER_ID")
	krbService := os.Getenv("USBSAS_NET_KRB_SERVICE")

	client, err := newClient(krbService)
	if err != nil {
		log.Fatalf("net_io: %v", err)
	}

	h := netio.New(logger, client, url, userID)
	rt := worker.NewRuntime(worker.Config{
		Logger:  logger,
		Sandbox: func() error { return worker.Transition(worker.NetSyscalls()) },
	})

	err = rt.Serve(ctx, os.Stdin, os.Stdout, h)
	h.Cleanup()
	if err != nil {
		log.Fatalf("net_io: %v", err)
	}
}

// newClient builds a plain HTTP client, or a Kerberos-wrapped one when a
// service principal name was passed through the environment (spec §6:
// "optional Kerberos authentication against an internal antivirus/upload
// server").
func newClient(krbService string) (*netclient.Client, error) {
	const timeout = 10 * time.Minute
	if krbService == "" {
		return netclient.New(timeout), nil
	}
	return netclient.NewWithKerberos(timeout, netclient.KerberosConfig{
		Realm:      krbService,
		KeytabPath: os.Getenv("USBSAS_NET_KEYTAB"),
		Username:   os.Getenv("USBSAS_NET_USER_ID"),
	})
}
