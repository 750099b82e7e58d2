package domain

import (
	"context"
	"time"
)

// EventType описывает тип доменного события.
type EventType string

const (
	EventPostCreated        EventType = "post.created"
	EventPostDeleted        EventType = "post.deleted"
	EventPostUpdated        EventType = "post.updated"
	EventLinkSaved          EventType = "link.saved"
	EventConnectionAccepted EventType = "connection.accepted"
)

// Event: событие, которое обрабатывает воркер.
type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	PeerID     string    `json:"peer_id,omitempty"`
	PostID     string    `json:"post_id,omitempty"`
	LinkID     string    `json:"link_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Attempt    int       `json:"attempt,omitempty"`
}

// EventPublisher публикует события. Реализации должны быть безопасны для конкурентного использования.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventQueue описывает очередь событий с подтверждением.
type EventQueue interface {
	EventPublisher
	Receive(ctx context.Context) (Event, AckFunc, error)
	Close() error
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки события.
type AckFunc func(success bool) error
