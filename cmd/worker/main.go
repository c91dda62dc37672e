package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"facegallery/internal/blob"
	"facegallery/internal/config"
	"facegallery/internal/janitor"
	"facegallery/internal/logging"
	"facegallery/internal/queue"
	"facegallery/internal/store"
)

// Worker drains the cleanup queue and removes image files whose records are
// already gone.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; with the memory queue the API runs cleanup itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.Open(ctx, cfg.Blob.Storage())
	if err != nil {
		log.Fatalf("blob storage: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if err := redisClient.Healthy(ctx); err != nil {
		log.WithError(err).Warn("redis not reachable yet, consumer will retry")
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	if err := janitor.New(q, blobs, log).Run(ctx); err != nil {
		log.Fatalf("janitor: %v", err)
	}
}
