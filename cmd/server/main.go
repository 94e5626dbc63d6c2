package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/api"
	"github.com/Harshitk-cp/smartsearch/internal/buildconfig"
	"github.com/Harshitk-cp/smartsearch/internal/config"
	"github.com/Harshitk-cp/smartsearch/internal/engine"
	"github.com/Harshitk-cp/smartsearch/internal/tracing"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      config.TracingEnabled(),
		ServiceName:  config.TracingServiceName(),
		OTLPEndpoint: config.TracingEndpoint(),
	}, logger)
	if err != nil {
		logger.Warn("tracing initialization failed", zap.Error(err))
	}

	eng, err := engine.Bootstrap(logger)
	if err != nil {
		logger.Fatal("failed to build research engine", zap.Error(err))
	}

	app := api.NewApp(eng, logger)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	// In-flight research requests may hold up to the largest allowed deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ResearchMaxDeadline())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(level); perr == nil {
			cfg.Level = lvl
		}
		logger, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
