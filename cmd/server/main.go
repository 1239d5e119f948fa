// Package main provides the API server entry point for the node map tracker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/h4x0r/concordium-node-map-sub002/internal/api"
	"github.com/h4x0r/concordium-node-map-sub002/internal/config"
	"github.com/h4x0r/concordium-node-map-sub002/internal/fetch"
	"github.com/h4x0r/concordium-node-map-sub002/internal/job"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/storage"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
)

func main() {
	fmt.Println("Node Map Tracker API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize upstream clients
	dashboard := fetch.NewDashboardClient(cfg.Upstream.DashboardURL, cfg.Upstream.DashboardTimeout)
	chain := fetch.NewChainClient(cfg.Upstream.ChainRPCURL, cfg.Upstream.ChainRPCTimeout, cfg.Upstream.ChainRPCRateRPS)

	// Initialize repositories
	nodeRepo := storage.NewNodeRepository(postgres)
	peerRepo := storage.NewPeerRepository(postgres)
	validatorRepo := storage.NewValidatorRepository(postgres)
	blockRepo := storage.NewBlockRepository(postgres)
	cursorRepo := storage.NewCursorRepository(postgres)
	eventRepo := storage.NewEventRepository(clickhouse)
	historyRepo := storage.NewHealthHistoryRepository(clickhouse)
	snapshotRepo := storage.NewSnapshotRepository(clickhouse)
	resultCache := storage.NewPollResultCache(redis, cfg.Poll.ResultCacheTTL)

	// Initialize trackers
	logger.Info("Initializing trackers...")
	blockTracker := tracker.NewBlockTracker(blockRepo, validatorRepo, logger)
	nodeTracker := tracker.NewNodeTracker(nodeRepo, cursorRepo, eventRepo, historyRepo, snapshotRepo, logger)
	validatorTracker := tracker.NewValidatorTracker(validatorRepo, logger)

	// Initialize poll jobs
	blockJob := job.NewBlockPollJob(chain, blockTracker, cursorRepo, resultCache,
		cfg.Poll.BlockLookback, cfg.Poll.MaxBlocksPerPoll, cfg.Poll.JobBudget, logger)
	nodeJob := job.NewNodePollJob(dashboard, nodeTracker, validatorTracker, peerRepo, resultCache,
		cfg.Poll.JobBudget, logger)
	validatorJob := job.NewValidatorPollJob(chain, dashboard, validatorTracker, resultCache,
		cfg.Poll.JobBudget, logger)

	logger.Info("Trackers initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
		PollBearerSecret: cfg.Poll.BearerSecret,
	}

	server := api.NewServer(serverConfig, blockJob, nodeJob, validatorJob,
		peerRepo, validatorRepo, eventRepo, nodeTracker, snapshotRepo, resultCache, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
