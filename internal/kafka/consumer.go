package kafka

import (
	"context"
	"errors"
	"fmt"

	"ms-fest/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Message is what handlers receive; it hides the client library type.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

type Handler func(ctx context.Context, msg Message) error

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer joins groupID and subscribes to every topic in topics.
func NewConsumer(brokers []string, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Run reads until ctx is cancelled. Handler errors are logged and the
// message is still committed: delivery is fire-and-forget.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.logger.Info("KAFKA", "Kafka consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}

		if err := handle(ctx, Message{Topic: msg.Topic, Key: string(msg.Key), Value: msg.Value, Headers: headers}); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for %s/%s: %v", msg.Topic, string(msg.Key), err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
