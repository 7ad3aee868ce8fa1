package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-tracker/internal/adapter"
	"github.com/wallet-tracker/internal/api"
	"github.com/wallet-tracker/internal/config"
	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/pricing"
	"github.com/wallet-tracker/internal/service"
	"github.com/wallet-tracker/internal/storage"
	"github.com/wallet-tracker/internal/types"
	"github.com/wallet-tracker/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.Info("Starting wallet tracker server")

	pg, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Postgres")
		os.Exit(1)
	}
	defer pg.Close()

	ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to ClickHouse")
		os.Exit(1)
	}
	defer ch.Close()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ch.EnsureLedgerSchema(schemaCtx); err != nil {
		cancelSchema()
		logger.WithError(err).Error("Failed to ensure ledger schema")
		os.Exit(1)
	}
	cancelSchema()

	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisCache.Close()

	// Repositories
	syncRepo := storage.NewSyncRepository(pg.Pool())
	priceRepo := storage.NewPriceRepository(pg.Pool())
	snapshotRepo := storage.NewSnapshotRepository(pg.Pool())
	txRepo := storage.NewTransactionRepository(ch.Conn())
	snapshotCache := storage.NewSnapshotCache(redisCache, cfg.Cache.SnapshotTTL)

	// External data providers
	helius := adapter.NewHeliusClient(&cfg.Ledger)
	coingecko := adapter.NewCoinGeckoClient(&cfg.Pricing)
	binance := adapter.NewBinanceClient(&cfg.Pricing)
	jupiter := adapter.NewJupiterClient(&cfg.Pricing)

	resolver := pricing.NewResolver(&cfg.Pricing, types.ChainSolana, priceRepo, coingecko, binance, jupiter)

	// Services
	ingestSvc := service.NewIngestService(cfg, helius, resolver, priceRepo, txRepo, syncRepo, types.ChainSolana)
	snapshotSvc := service.NewSnapshotService(txRepo, snapshotRepo, resolver)

	pool := worker.NewSyncPool(cfg.Sync.Workers, cfg.Sync.QueueSize, logger)
	pool.Start()

	syncSvc := service.NewSyncService(
		syncRepo, snapshotRepo, snapshotCache,
		ingestSvc, snapshotSvc, pool,
		cfg.Sync.StartDate, cfg.Sync.StalenessWindow, logger,
	)

	handler := api.NewHandler(syncSvc, logger)
	server := api.NewServer(&cfg.Server, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
		}
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP shutdown failed")
	}

	pool.Stop()
	logger.Info("Server stopped")
}
