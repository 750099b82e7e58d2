package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

// RabbitEventQueue реализует очередь событий поверх AMQP.
type RabbitEventQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	publishMu  sync.Mutex
	consumeMu  sync.Mutex
	deliveries <-chan amqp.Delivery
}

var _ domain.EventQueue = (*RabbitEventQueue)(nil)

// NewRabbitEventQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitEventQueue(amqpURL, queue string) (*RabbitEventQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitEventQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Publish публикует событие в очередь.
func (q *RabbitEventQueue) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	q.publishMu.Lock()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Body:         payload,
	})
	q.publishMu.Unlock()
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
func (q *RabbitEventQueue) Receive(ctx context.Context) (domain.Event, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.Event{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.Event{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return domain.Event{}, nil, errors.New("rabbitmq: delivery channel closed")
		}
		var event domain.Event
		if err := json.Unmarshal(d.Body, &event); err != nil {
			_ = d.Nack(false, false)
			return domain.Event{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			// повтор публикуется заново, чтобы номер попытки доехал до следующего получателя
			retry := event
			retry.Attempt++
			if err := q.Publish(context.Background(), retry); err != nil {
				return d.Nack(false, true)
			}
			return d.Ack(false)
		}
		return event, ack, nil
	}
}

func (q *RabbitEventQueue) consume() (<-chan amqp.Delivery, error) {
	q.consumeMu.Lock()
	defer q.consumeMu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitEventQueue) Close() error {
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
