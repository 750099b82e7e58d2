package queue

import (
	"context"

	"relink/internal/domain"
)

// MemoryEventQueue держит события в буферизованном канале. Подходит для тестов и однопроцессного запуска.
type MemoryEventQueue struct {
	ch chan domain.Event
}

var _ domain.EventQueue = (*MemoryEventQueue)(nil)

// NewMemoryEventQueue создаёт очередь с заданным размером буфера.
func NewMemoryEventQueue(size int) *MemoryEventQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryEventQueue{ch: make(chan domain.Event, size)}
}

// Publish кладёт событие в буфер или ждёт освобождения места.
func (q *MemoryEventQueue) Publish(ctx context.Context, event domain.Event) error {
	select {
	case q.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive ждёт следующее событие.
func (q *MemoryEventQueue) Receive(ctx context.Context) (domain.Event, domain.AckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.Event{}, nil, ctx.Err()
	case event := <-q.ch:
		ack := func(success bool) error {
			if success {
				return nil
			}
			retry := event
			retry.Attempt++
			return q.Publish(context.Background(), retry)
		}
		return event, ack, nil
	}
}

// Len возвращает число событий в буфере.
func (q *MemoryEventQueue) Len() int { return len(q.ch) }

// Close ничего не делает.
func (q *MemoryEventQueue) Close() error { return nil }
