package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

// RedisEventQueue реализует очередь событий на базе Redis lists.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

var _ domain.EventQueue = (*RedisEventQueue)(nil)

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key}
}

// Publish публикует событие в очередь.
func (q *RedisEventQueue) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
func (q *RedisEventQueue) Receive(ctx context.Context) (domain.Event, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Event{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.Event{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.Event{}, nil, err
		}
		if len(res) != 2 {
			return domain.Event{}, nil, errors.New("redis queue: unexpected response")
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			return domain.Event{}, nil, fmt.Errorf("decode event: %w", err)
		}
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

// Close ничего не делает: клиентом Redis владеет вызывающий код.
func (q *RedisEventQueue) Close() error { return nil }
