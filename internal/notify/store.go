package notify

import (
	"context"
	"fmt"
	"time"

	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

// Store is the notification_outbox table.
type Store struct {
	Bun bun.IDB
}

func (s *Store) Insert(ctx context.Context, msg *models.OutboxMessage) error {
	if _, err := s.Bun.NewInsert().Model(msg).Exec(ctx); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// FetchDispatchable returns pending messages and failed ones that still have
// retries left, oldest first.
func (s *Store) FetchDispatchable(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var msgs []models.OutboxMessage
	err := s.Bun.NewSelect().
		Model(&msgs).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("status = ?", models.OutboxPending).
				WhereOr("status = ? AND retry_count < max_retries", models.OutboxFailed)
		}).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := s.Bun.NewUpdate().
		Model((*models.OutboxMessage)(nil)).
		Set("status = ?", models.OutboxPublished).
		Set("published_at = ?", at).
		Set("last_error = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, cause string) error {
	_, err := s.Bun.NewUpdate().
		Model((*models.OutboxMessage)(nil)).
		Set("status = ?", models.OutboxFailed).
		Set("retry_count = retry_count + 1").
		Set("last_error = ?", cause).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}
	return nil
}

// DeletePublished removes published messages older than the cutoff.
func (s *Store) DeletePublished(ctx context.Context, before time.Time) (int, error) {
	res, err := s.Bun.NewDelete().
		Model((*models.OutboxMessage)(nil)).
		Where("status = ?", models.OutboxPublished).
		Where("published_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete published outbox messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
