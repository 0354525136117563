package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"clearpay/go-backend/internal/bootstrap/payconfig"
	"clearpay/go-backend/internal/composition/paydaemon"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address")
	configPath := flag.String("config", "", "Path to clearpay.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for channel records (optional)")
	endpoint := flag.String("clearing-endpoint", "", "Clearing service websocket URL override")
	flag.Parse()
	if *showVersion {
		fmt.Printf("paydaemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *dataDir != "" {
		_ = os.Setenv("CLEARPAY_DATA_DIR", *dataDir)
	}
	if *endpoint != "" {
		_ = os.Setenv("CLEARPAY_CLEARING_ENDPOINT", *endpoint)
	}

	settings := payconfig.LoadFromPath(*configPath)
	if *rpcAddr != "" {
		settings.RPC.Addr = *rpcAddr
	}

	// The on-chain custody client is host-provided; the standalone daemon
	// starts without one and ensure_channel reports the missing dependency.
	daemon, err := paydaemon.NewDaemon(settings, paydaemon.Options{})
	if err != nil {
		log.Fatalf("paydaemon failed to initialize: %v", err)
	}

	log.Println("paydaemon starting")
	if err := daemon.Run(ctx); err != nil {
		log.Fatalf("paydaemon failed: %v", err)
	}
	log.Println("paydaemon stopped")
}
