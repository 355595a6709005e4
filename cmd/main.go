package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tareeqk/towing/internal/auth"
	"github.com/tareeqk/towing/internal/cache"
	"github.com/tareeqk/towing/internal/config"
	"github.com/tareeqk/towing/internal/db"
	"github.com/tareeqk/towing/internal/kafka"
	"github.com/tareeqk/towing/internal/logger"
	"github.com/tareeqk/towing/internal/notifier"
	"github.com/tareeqk/towing/internal/repository/postgresql"
	"github.com/tareeqk/towing/internal/server"
	"github.com/tareeqk/towing/internal/storage"
	"github.com/tareeqk/towing/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zapLogger := logger.New()
	defer func() { _ = zapLogger.Sync() }()

	config.LoadEnv()
	cfg := config.Load()

	database, err := db.NewDb(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Database init error: %v", err)
	}
	defer database.Close()

	if err := db.Bootstrap(ctx, database); err != nil {
		log.Fatalf("Schema bootstrap error: %v", err)
	}
	if cfg.Database.SeedDemo {
		db.SeedDemo(ctx, database)
	}

	requestRepo := postgresql.NewRequestRepo(database)
	userRepo := postgresql.NewUserRepo(database)
	outboxRepo := postgresql.NewOutboxTaskRepo()

	towingStorage := storage.NewTowingStorage(database, requestRepo, userRepo, outboxRepo, cfg.Kafka.Topic)

	requestCache := cache.NewRequestCache(towingStorage)
	if err := requestCache.LoadInitialData(ctx); err != nil {
		log.Printf("WARN: Cache warmup failed: %v", err)
	}

	hub := ws.NewHub()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		hub.Run(groupCtx)
		return nil
	})

	var eventNotifier server.Notifier = notifier.NewHubNotifier(hub)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()

		eventNotifier = notifier.NewRedisNotifier(redisClient, cfg.Redis.Channel)
		group.Go(func() error {
			return notifier.RunBridge(groupCtx, redisClient, cfg.Redis.Channel, hub)
		})
		log.Printf("Notifications relayed through Redis channel %q", cfg.Redis.Channel)
	}

	producer := kafka.NewWriterProducer(cfg.Kafka.Brokers)
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	})
	group.Go(func() error {
		publisher.Run(groupCtx)
		return nil
	})

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	srv := server.New(towingStorage, userRepo, tokens, requestCache, eventNotifier, hub.Handler())
	group.Go(func() error {
		return srv.Run(groupCtx, cfg.Server.Port)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Shutdown with error: %v", err)
	}
	log.Println("Server gracefully stopped")
}
