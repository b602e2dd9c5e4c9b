package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/api/server"
	"github.com/feral-file/ff-entity-indexer/internal/challenges"
	"github.com/feral-file/ff-entity-indexer/internal/config"
	"github.com/feral-file/ff-entity-indexer/internal/entitymanager"
	"github.com/feral-file/ff-entity-indexer/internal/indexer"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/metadata"
	"github.com/feral-file/ff-entity-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-entity-indexer/internal/providers/jetstream"
	"github.com/feral-file/ff-entity-indexer/internal/queue"
	"github.com/feral-file/ff-entity-indexer/internal/registry"
	"github.com/feral-file/ff-entity-indexer/internal/scheduler"
	"github.com/feral-file/ff-entity-indexer/internal/store"
)

const cursorName = "entity_manager"

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Entity Indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}
	dataStore := store.NewStore(db)

	// Load the CID blacklist
	blacklist, err := registry.LoadBlacklist(cfg.BlacklistPath)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to load blacklist", zap.Error(err), zap.String("path", cfg.BlacklistPath))
	}

	// Initialize the challenge event queue
	redisClient := adapter.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = redisClient.Close() }()
	eventQueue, closeQueue, err := queue.Open(cfg.Challenges.QueueBackend, cfg.Challenges.BoltPath, redisClient)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to open challenge queue", zap.Error(err))
	}
	defer func() { _ = closeQueue() }()
	bus := challenges.NewBus(eventQueue, cfg.Challenges.QueueKey)

	// Connect to the chain
	ethClient, err := adapter.NewEthClientDialer().Dial(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to Ethereum RPC", zap.Error(err))
	}
	defer ethClient.Close()
	logSource, err := ethereum.NewLogSource(ethereum.Config{
		ContractAddress: cfg.Ethereum.EntityManagerAddress,
		MaxRetries:      cfg.Ethereum.MaxRetries,
		RetryInterval:   cfg.Ethereum.RetryInterval,
	}, ethClient)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create log source", zap.Error(err))
	}

	// Metadata fetcher
	httpClient := adapter.NewHTTPClient(cfg.Metadata.Timeout, 3*cfg.Metadata.Timeout)
	fetcher := metadata.NewFetcher(httpClient, cfg.Metadata.IPFSGateways, cfg.Metadata.Concurrency)

	// Block notifications are optional
	var publisher jetstream.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(ctx, jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			Subject:        cfg.NATS.Subject,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
		defer publisher.Close()
	}

	manager := entitymanager.NewManager(dataStore, cfg.EntityManager, blacklist, cursorName)
	ix := indexer.New(indexer.Config{
		CursorName:   cursorName,
		StartBlock:   cfg.Ethereum.StartBlock,
		BatchSize:    cfg.Ethereum.BlockBatchSize,
		PollInterval: cfg.Ethereum.PollInterval,
		HeadTTL:      cfg.Ethereum.HeadTTL,
	}, logSource, dataStore, manager, fetcher, bus, publisher, blacklist, adapter.NewClock())

	// Health and metrics server
	sqlDB, err := db.DB()
	if err != nil {
		logger.FatalCtx(ctx, "Failed to get database handle", zap.Error(err))
	}
	checks := map[string]server.Check{
		"database": sqlDB.PingContext,
	}
	if cfg.Challenges.QueueBackend != queue.BackendBolt {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	healthServer := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}, checks)

	// Newly banned CIDs take effect without a restart
	sched := scheduler.New(nil, cfg.Lock.TTL)
	if err := sched.Add(scheduler.BlacklistSyncJob(blacklist, cfg.Challenges.BlacklistSyncInterval)); err != nil {
		logger.FatalCtx(ctx, "Failed to schedule blacklist sync", zap.Error(err))
	}

	errChan := make(chan error, 3)
	go func() {
		if err := healthServer.Start(); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := sched.Start(ctx); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := ix.Run(ctx); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	logger.InfoCtx(shutdownCtx, "Entity Indexer stopped")
}
