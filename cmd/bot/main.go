package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"ambush/internal/app"
	"ambush/internal/config"
	"ambush/internal/transport"
	"ambush/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "optional path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	log := logx.New(logx.Config{
		Level:   cfg.LogLevel,
		Console: true,
		File:    logx.FileConfig{Enabled: cfg.LogFile != "", Path: cfg.LogFile},
	})

	// The Discord gateway adapter is wired in deployments that carry it;
	// without one the core still runs: the web API and importer work and
	// outbound messages land in the log.
	log.Warn("no gateway adapter configured; voice and messaging run locally")
	collab := app.Collaborators{
		Messenger: transport.LogMessenger{Log: log.With(logx.String("comp", "messenger"))},
		Browser:   transport.EmptyBrowser{},
		Connector: transport.NoConnector{},
	}

	a, err := app.New(cfg, collab, log)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		log.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case err := <-a.WebErr():
		if err != nil {
			log.Error("web listener failed", logx.Err(err))
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		log.Warn("shutdown error", logx.Err(err))
	}
}
