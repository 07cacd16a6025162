package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/app/collector"
	"github.com/thunderhead-labs/poktinfo/pkg/config"
	"github.com/thunderhead-labs/poktinfo/pkg/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Unable to load configuration", zap.Error(err))
	}

	app, err := collector.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Error("Unable to initialize collector", zap.Error(err))
		os.Exit(1)
	}

	// the pool starts empty; fill it before the first scheduled collection
	app.RunJob(ctx, collector.JobEndpoints, collector.EndpointsTimeout, app.RefreshEndpoints)

	app.StartCron()
	app.Start(ctx)
}
