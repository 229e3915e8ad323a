package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"smartmail/internal/app"
	"smartmail/internal/config"
	"smartmail/internal/httpserver"
	"smartmail/pkg/logger"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logger.NewLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("Starting smartmail server...",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Wire store, LLM, Gmail and services
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Initialization failed", zap.Error(err))
	}
	defer a.Close()

	// 3. Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down smartmail server gracefully...")
		cancel()
	}()

	// 4. Run server
	if err := httpserver.Serve(ctx, cfg.Server.Port, a.Router().Engine, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("smartmail server shutdown complete")
}
