package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/app"
	"github.com/markdave123-py/doctext/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Bootstrap logger so config parsing warnings are not lost.
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))

	cfg, err := config.LoadConfig()
	if err != nil {
		zap.L().Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.ZapLevel())
	logger := zap.Must(zcfg.Build())
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	logger.Info("doctext is running", zap.String("port", cfg.Port), zap.String("storage", cfg.StorageProvider))
	if err := application.Run(ctx); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		application.Close()
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}
