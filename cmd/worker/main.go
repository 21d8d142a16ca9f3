package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"attendx/internal/audit"
	"attendx/internal/config"
	"attendx/internal/logging"
	"attendx/internal/queue"
	"attendx/internal/store"
)

// Worker consumes domain events from Redis and appends them to the activity log.
func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.Production())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		slog.Error("worker needs QUEUE_BACKEND=redis; the API drains in-memory queues itself")
		os.Exit(1)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		slog.Warn("redis not reachable yet, consumer will keep retrying", "addr", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	messages, err := q.Consume(ctx)
	if err != nil {
		slog.Error("queue consume init failed", "err", err)
		os.Exit(1)
	}

	slog.Info("worker started, waiting for events", "queue", cfg.QueueKey)
	stored := audit.Consume(ctx, messages, audit.NewRepository(db.Client))
	slog.Info("worker stopped", "stored", stored)
}
