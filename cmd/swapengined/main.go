// Command swapengined is the daemon entrypoint: load Config from the
// environment, build an sdk.Orchestrator, run until signalled to stop. It
// is a thin process wrapper and carries no flag parsing or command
// surface — everything is configured through the environment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log"

	"github.com/breez/breez-sdk-liquid-core/sdk"
)

var log = logging.Logger("swapengined")

func main() {
	cfg, err := sdk.LoadConfig()
	if err != nil {
		log.Errorf("loading config: %s", err)
		os.Exit(1)
	}

	o, err := sdk.New(cfg)
	if err != nil {
		log.Errorf("starting orchestrator: %s", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o.Run(ctx)
	log.Infof("swapengined running")

	<-ctx.Done()
	log.Infof("shutting down")

	if err := o.Close(); err != nil {
		log.Errorf("shutting down orchestrator: %s", err)
		os.Exit(1)
	}
}
