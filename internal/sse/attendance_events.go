package sse

import (
	"context"
	"sync"

	"ms-fest/internal/models"
)

// AttendanceEmitter fans live attendance stats out to the organizers watching
// an event's gate.
type AttendanceEmitter struct {
	// key: eventID, value: subscribed client channels
	clients map[string][]chan models.AttendanceStats
	mu      sync.RWMutex
}

func NewAttendanceEmitter() *AttendanceEmitter {
	return &AttendanceEmitter{
		clients: make(map[string][]chan models.AttendanceStats),
	}
}

// Subscribe registers a client for eventID. The channel is closed once ctx
// is done.
func (e *AttendanceEmitter) Subscribe(ctx context.Context, eventID string) chan models.AttendanceStats {
	clientChan := make(chan models.AttendanceStats, 10)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts stats to every subscriber of the event.
func (e *AttendanceEmitter) Emit(stats models.AttendanceStats) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[stats.EventID] {
		// Slow clients miss an update rather than stall the scanner.
		select {
		case clientChan <- stats:
		default:
		}
	}
}

func (e *AttendanceEmitter) remove(eventID string, clientChan chan models.AttendanceStats) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

func (e *AttendanceEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
