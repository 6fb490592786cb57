package kafka

import (
	"context"
	"fmt"
	"time"

	"ms-fest/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

// NewProducer builds a topic-less writer; the topic is chosen per message.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish writes one message keyed by key, so all notifications about the
// same aggregate land on the same partition in order.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d", key, len(value)))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
