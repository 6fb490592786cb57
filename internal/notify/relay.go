package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ms-fest/internal/config"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

// Publisher is the transport the relay hands messages to.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Retention is how long published messages are kept before cleanup.
	Retention time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    100,
		Retention:    7 * 24 * time.Hour,
	}
}

// TopicsFor maps every notification kind to its configured topic.
func TopicsFor(t config.TopicConfig) map[models.NotificationKind]string {
	return map[models.NotificationKind]string{
		models.NotifyTicketIssued:          t.TicketIssued,
		models.NotifyPaymentApproved:       t.PaymentApproved,
		models.NotifyPaymentRejected:       t.PaymentRejected,
		models.NotifyRegistrationCancelled: t.RegistrationCancelled,
		models.NotifyEventPublished:        t.EventPublished,
	}
}

// Relay moves outbox rows to the message bus.
type Relay struct {
	store     *Store
	publisher Publisher
	topics    map[models.NotificationKind]string
	config    RelayConfig
	logger    *logger.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewRelay(db bun.IDB, publisher Publisher, topics map[models.NotificationKind]string, cfg RelayConfig, log *logger.Logger) *Relay {
	def := DefaultRelayConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Relay{
		store:     &Store{Bun: db},
		publisher: publisher,
		topics:    topics,
		config:    cfg,
		logger:    log,
		stopCh:    make(chan struct{}),
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay already running")
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info("OUTBOX", fmt.Sprintf("Starting outbox relay (every %s, batch %d)", r.config.PollInterval, r.config.BatchSize))

	r.wg.Add(1)
	go r.poll(ctx)
	return nil
}

func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("OUTBOX", "Outbox relay stopped")
}

func (r *Relay) poll(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	lastCleanup := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
			if time.Since(lastCleanup) > time.Hour {
				r.cleanup(ctx)
				lastCleanup = time.Now()
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many messages went out.
func (r *Relay) ProcessBatch(ctx context.Context) int {
	msgs, err := r.store.FetchDispatchable(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("OUTBOX", fmt.Sprintf("Failed to fetch outbox messages: %v", err))
		return 0
	}

	published := 0
	for i := range msgs {
		msg := &msgs[i]
		if err := r.publish(ctx, msg); err != nil {
			r.logger.Error("OUTBOX", fmt.Sprintf("Failed to publish %s %s (attempt %d/%d): %v",
				msg.Kind, msg.ID, msg.RetryCount+1, msg.MaxRetries, err))
			if markErr := r.store.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				r.logger.Error("OUTBOX", fmt.Sprintf("Failed to mark %s as failed: %v", msg.ID, markErr))
				continue
			}
			msg.Status = models.OutboxFailed
			msg.RetryCount++
			if !msg.CanRetry() {
				r.logger.Warn("OUTBOX", fmt.Sprintf("Giving up on %s %s after %d attempts", msg.Kind, msg.ID, msg.RetryCount))
			}
			continue
		}
		if markErr := r.store.MarkPublished(ctx, msg.ID, time.Now().UTC()); markErr != nil {
			r.logger.Error("OUTBOX", fmt.Sprintf("Failed to mark %s as published: %v", msg.ID, markErr))
			continue
		}
		published++
	}
	return published
}

func (r *Relay) publish(ctx context.Context, msg *models.OutboxMessage) error {
	topic, ok := r.topics[msg.Kind]
	if !ok || topic == "" {
		return fmt.Errorf("no topic configured for %s", msg.Kind)
	}

	value, err := json.Marshal(models.Envelope{
		ID:          msg.ID,
		Kind:        msg.Kind,
		AggregateID: msg.AggregateID,
		Payload:     msg.Payload,
		CreatedAt:   msg.CreatedAt,
	})
	if err != nil {
		return err
	}

	return r.publisher.Publish(ctx, topic, msg.AggregateID, value, map[string]string{
		"kind":         string(msg.Kind),
		"aggregate_id": msg.AggregateID,
		"content_type": "application/json",
		"source":       "outbox-relay",
	})
}

func (r *Relay) cleanup(ctx context.Context) {
	deleted, err := r.store.DeletePublished(ctx, time.Now().UTC().Add(-r.config.Retention))
	if err != nil {
		r.logger.Error("OUTBOX", fmt.Sprintf("Failed to clean up published messages: %v", err))
		return
	}
	if deleted > 0 {
		r.logger.Info("OUTBOX", fmt.Sprintf("Cleaned up %d published messages", deleted))
	}
}
