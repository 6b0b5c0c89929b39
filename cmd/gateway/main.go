// Command gateway runs the WireGuard gateway agent: one session against the
// control plane, a mirrored peer table and periodic stat reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dwongdev/defguard/internal/agent"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads the YAML config and keeps the agent running until a signal.
func main() {
	cfgPath := flag.String("config", "/etc/defguard/gateway.yaml", "config file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gateway %s (%s)\n", version, buildDate)
		return
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := agent.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := agent.Validate(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("controller", cfg.Controller),
		zap.String("hostname", cfg.Hostname),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := agent.New(cfg, agent.NewTable(), logger)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
