package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/laserpanama/legal-practice-stack/internal/api"
	"github.com/laserpanama/legal-practice-stack/internal/audit"
	"github.com/laserpanama/legal-practice-stack/internal/auth"
	"github.com/laserpanama/legal-practice-stack/internal/compliance"
	"github.com/laserpanama/legal-practice-stack/internal/config"
	"github.com/laserpanama/legal-practice-stack/internal/db"
	"github.com/laserpanama/legal-practice-stack/internal/lifecycle"
	"github.com/laserpanama/legal-practice-stack/internal/notify"
	"github.com/laserpanama/legal-practice-stack/internal/reports"
	"github.com/laserpanama/legal-practice-stack/internal/services"
	"github.com/laserpanama/legal-practice-stack/internal/signing"
	"github.com/laserpanama/legal-practice-stack/pkg/logger"
	"github.com/laserpanama/legal-practice-stack/pkg/metrics"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Logging.Environment, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(cfg, zapLogger)

	database, err := db.Initialize(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditStore := audit.NewStore(database, zapLogger)
	machine := lifecycle.NewMachine(database, auditStore, zapLogger)
	verifier := compliance.NewVerifier(database, zapLogger)
	aggregator := reports.NewAggregator(database, auditStore, zapLogger)
	hub := notify.NewHub(cfg.Notifier, zapLogger)
	signer := signing.NewClient(cfg.Signing, zapLogger)
	tokenVerifier := auth.NewVerifier(cfg.Auth)

	signatureService := services.NewSignatureService(
		database, machine, auditStore, verifier, hub, signer, zapLogger)

	sweeper := lifecycle.NewSweeper(database, signatureService, cfg.Sweep.ExpiryInterval, zapLogger)

	go hub.Run(ctx)
	go sweeper.Run(ctx)

	router := api.NewRouter(zapLogger, signatureService, aggregator, hub, tokenVerifier)
	router.SetupRoutes()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}
	go func() {
		if err := router.Run(":" + port); err != nil {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	cancel()
	hub.Close()

	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}
