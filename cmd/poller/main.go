// Package main provides the standalone poller entry point. It runs the
// three poll jobs on their configured cadences without exposing the HTTP
// trigger surface.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/h4x0r/concordium-node-map-sub002/internal/config"
	"github.com/h4x0r/concordium-node-map-sub002/internal/fetch"
	"github.com/h4x0r/concordium-node-map-sub002/internal/job"
	"github.com/h4x0r/concordium-node-map-sub002/internal/logging"
	"github.com/h4x0r/concordium-node-map-sub002/internal/storage"
	"github.com/h4x0r/concordium-node-map-sub002/internal/tracker"
)

func main() {
	fmt.Println("Node Map Tracker Poller")
	log.Println("Poller starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

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

	// Initialize trackers and jobs
	blockTracker := tracker.NewBlockTracker(blockRepo, validatorRepo, logger)
	nodeTracker := tracker.NewNodeTracker(nodeRepo, cursorRepo, eventRepo, historyRepo, snapshotRepo, logger)
	validatorTracker := tracker.NewValidatorTracker(validatorRepo, logger)

	blockJob := job.NewBlockPollJob(chain, blockTracker, cursorRepo, resultCache,
		cfg.Poll.BlockLookback, cfg.Poll.MaxBlocksPerPoll, cfg.Poll.JobBudget, logger)
	nodeJob := job.NewNodePollJob(dashboard, nodeTracker, validatorTracker, peerRepo, resultCache,
		cfg.Poll.JobBudget, logger)
	validatorJob := job.NewValidatorPollJob(chain, dashboard, validatorTracker, resultCache,
		cfg.Poll.JobBudget, logger)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	runOnTicker(ctx, &wg, "node_poll", cfg.Poll.NodeInterval, logger, func(ctx context.Context) error {
		_, err := nodeJob.Run(ctx)
		return err
	})
	runOnTicker(ctx, &wg, "block_poll", cfg.Poll.BlockInterval, logger, func(ctx context.Context) error {
		_, err := blockJob.Run(ctx)
		return err
	})
	runOnTicker(ctx, &wg, "validator_poll", cfg.Poll.ValidatorInterval, logger, func(ctx context.Context) error {
		_, err := validatorJob.Run(ctx)
		return err
	})

	logger.WithFields(map[string]interface{}{
		"blockInterval":     cfg.Poll.BlockInterval.String(),
		"nodeInterval":      cfg.Poll.NodeInterval.String(),
		"validatorInterval": cfg.Poll.ValidatorInterval.String(),
	}).Info("Poll loops started")

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutdown signal received, stopping poll loops...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All poll loops stopped")
	case <-time.After(cfg.Poll.JobBudget + 5*time.Second):
		logger.Warn("Timed out waiting for poll loops to stop")
	}
}

// runOnTicker runs fn immediately and then on every tick until ctx is
// cancelled. Job failures are logged and the loop keeps going.
func runOnTicker(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, logger *logging.Logger, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		jobLogger := logger.WithField("loop", name)

		run := func() {
			if err := fn(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				jobLogger.WithError(err).Error("Poll cycle failed")
			}
		}

		run()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
