// Command worker runs the event lifecycle scheduler and the notification
// outbox relay.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"ms-fest/internal/attendance"
	"ms-fest/internal/config"
	"ms-fest/internal/database"
	events "ms-fest/internal/events/service"
	"ms-fest/internal/kafka"
	"ms-fest/internal/logger"
	"ms-fest/internal/notify"
	"ms-fest/internal/scheduler"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("[CONFIG] .env file not found, using environment variables")
	}
	cfg := config.Load()

	logger := logger.NewLoggerWithDir(cfg.LogDir)
	defer logger.Close()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("CONFIG", err.Error())
	}
	logger.Info("APP", "Starting Fest Worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	var stats attendance.StatsRefresher = attendance.NoCache{}
	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Attendance stats will not be invalidated by the worker: %v", err))
	} else {
		defer redisClient.Close()
		stats = attendance.NewRedisStatsCache(redisClient, cfg.Redis.StatsTTL, logger)
	}

	// The worker cascades cancellations itself, so it also writes outbox rows.
	notifier := notify.NewEmitter(bunDB, logger, cfg.Outbox.MaxRetries)
	eventService := events.NewEventService(bunDB, notifier, logger)
	eventService.Stats = stats
	lifecycle := scheduler.NewLifecycle(bunDB, eventService, scheduler.Config{
		Interval:        cfg.Scheduler.Interval,
		PerEventTimeout: cfg.Scheduler.PerEventTimeout,
	}, logger)
	lifecycle.Stats = stats

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return lifecycle.Run(ctx)
	})

	if cfg.Kafka.Enabled {
		topics := cfg.Kafka.Topics.All()
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		defer producer.Close()

		relay := notify.NewRelay(bunDB, producer, notify.TopicsFor(cfg.Kafka.Topics), notify.RelayConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		}, logger)

		g.Go(func() error {
			if err := relay.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			relay.Stop()
			return nil
		})
	} else {
		logger.Warn("KAFKA", "KAFKA_ENABLED=false: outbox rows will accumulate until a relay runs")
	}

	logger.Info("APP", "Worker started successfully, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		logger.Fatal("APP", fmt.Sprintf("Worker stopped with error: %v", err))
	}
	logger.Info("APP", "Fest Worker shutdown complete")
}
