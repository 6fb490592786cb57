// Command notifier consumes notification topics and delivers them by email
// or webhook.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"ms-fest/internal/config"
	"ms-fest/internal/kafka"
	"ms-fest/internal/logger"
	"ms-fest/internal/notify"

	"github.com/joho/godotenv"
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
	logger.Info("APP", "Starting Fest Notifier")

	if cfg.Email.SMTPUsername == "" {
		logger.Warn("CONFIG", "SMTP_USERNAME not set, email delivery will likely fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := notify.NewDispatcher(notify.NewSMTPMailer(cfg.Email), logger)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), cfg.Kafka.GroupID, logger)
	defer consumer.Close()

	logger.Info("KAFKA", fmt.Sprintf("Consuming %d topics as group %s", len(cfg.Kafka.Topics.All()), cfg.Kafka.GroupID))
	err := consumer.Run(ctx, func(ctx context.Context, msg kafka.Message) error {
		return dispatcher.Handle(ctx, msg.Value)
	})
	if err != nil {
		logger.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
		return
	}
	logger.Info("APP", "Fest Notifier shutdown complete")
}
