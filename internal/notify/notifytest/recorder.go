// Package notifytest records notifications in memory for assertions.
package notifytest

import (
	"context"
	"sync"

	"ms-fest/internal/models"
)

type Sent struct {
	Kind        models.NotificationKind
	AggregateID string
	Payload     interface{}
}

type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) Notify(_ context.Context, kind models.NotificationKind, aggregateID string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{Kind: kind, AggregateID: aggregateID, Payload: payload})
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Kinds lists the kinds sent so far, in order.
func (r *Recorder) Kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]models.NotificationKind, len(r.sent))
	for i, s := range r.sent {
		kinds[i] = s.Kind
	}
	return kinds
}
