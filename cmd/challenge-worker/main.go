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
	"github.com/feral-file/ff-entity-indexer/internal/lock"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/plays"
	"github.com/feral-file/ff-entity-indexer/internal/providers/jetstream"
	"github.com/feral-file/ff-entity-indexer/internal/queue"
	"github.com/feral-file/ff-entity-indexer/internal/scheduler"
	"github.com/feral-file/ff-entity-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadChallengeWorkerConfig(*configFile, *envPath)
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
			"service": "challenge-worker",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Challenge Worker")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	dataStore := store.NewStore(db)

	// Challenge definitions are owned by the definitions file
	if err := challenges.SyncDefinitions(ctx, dataStore, cfg.Challenges.DefinitionsPath); err != nil {
		logger.FatalCtx(ctx, "Failed to sync challenge definitions", zap.Error(err), zap.String("path", cfg.Challenges.DefinitionsPath))
	}

	// Redis backs the job locks and, by default, the event queue
	redisClient := adapter.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = redisClient.Close() }()
	eventQueue, closeQueue, err := queue.Open(cfg.Challenges.QueueBackend, cfg.Challenges.BoltPath, redisClient)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to open challenge queue", zap.Error(err))
	}
	defer func() { _ = closeQueue() }()

	bus := challenges.NewBus(eventQueue, cfg.Challenges.QueueKey)
	managers := challenges.RegisterDefaults(bus, dataStore)
	logger.InfoCtx(ctx, "Registered challenge managers", zap.Int("count", len(managers)))

	sched := scheduler.New(lock.NewRedisLocker(redisClient, adapter.NewClock(), cfg.Lock.TTL), cfg.Lock.TTL)
	if err := sched.Add(scheduler.ChallengeEventsJob(bus, cfg.Challenges.MaxEventsPerTick, cfg.Challenges.ProcessInterval)); err != nil {
		logger.FatalCtx(ctx, "Failed to schedule challenge events", zap.Error(err))
	}

	// Plays arrive from the plays stream when NATS is configured
	var subscriber jetstream.Subscriber
	if cfg.NATS.URL != "" {
		subscriber, err = jetstream.NewSubscriber(ctx, jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.Plays.StreamName,
			Subject:        cfg.Plays.Subject,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
			ConsumerName:   cfg.Plays.ConsumerName,
			AckWait:        cfg.Plays.AckWait,
			MaxDeliver:     cfg.Plays.MaxDeliver,
		}, adapter.NewNatsJetStream())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
		defer subscriber.Close()
	}

	// Health and metrics server
	sqlDB, err := db.DB()
	if err != nil {
		logger.FatalCtx(ctx, "Failed to get database handle", zap.Error(err))
	}
	healthServer := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}, map[string]server.Check{
		"database": sqlDB.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

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
	if subscriber != nil {
		recorder := plays.NewRecorder(dataStore, bus)
		go func() {
			if err := subscriber.Run(ctx, recorder.Handle); err != nil {
				errChan <- err
			}
		}()
	}

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// In-flight event batches finish before the queue and database close
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	logger.InfoCtx(shutdownCtx, "Challenge Worker stopped")
}
