package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const natsFetchWait = 5 * time.Second

// NATSEventQueue реализует очередь событий на JetStream с durable pull-подпиской.
type NATSEventQueue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	durable string

	mu  sync.Mutex
	sub *nats.Subscription
}

var _ domain.EventQueue = (*NATSEventQueue)(nil)

// NewNATSEventQueue подключается к NATS и создаёт поток для событий, если его ещё нет.
func NewNATSEventQueue(url, subject string, logger zerolog.Logger) (*NATSEventQueue, error) {
	if url == "" {
		return nil, errors.New("nats url is empty")
	}
	if subject == "" {
		return nil, errors.New("subject is empty")
	}
	nc, err := nats.Connect(url,
		nats.Name("relink"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats: соединение потеряно")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats: соединение восстановлено")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	stream := streamName(subject)
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Storage:   nats.FileStorage,
		MaxAge:    7 * 24 * time.Hour,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("add stream %s: %w", stream, err)
	}
	return &NATSEventQueue{conn: nc, js: js, subject: subject, durable: stream + "_workers"}, nil
}

// Publish публикует событие; ID события используется для дедупликации на стороне JetStream.
func (q *NATSEventQueue) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	opts := []nats.PubOpt{nats.Context(ctx)}
	if event.ID != "" && event.Attempt == 0 {
		opts = append(opts, nats.MsgId(event.ID))
	}
	start := time.Now()
	_, err = q.js.Publish(q.subject, payload, opts...)
	metrics.ObserveNetworkRequest("nats", "publish", q.subject, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие. Номер попытки берётся из метаданных доставки.
func (q *NATSEventQueue) Receive(ctx context.Context) (domain.Event, domain.AckFunc, error) {
	sub, err := q.subscription()
	if err != nil {
		return domain.Event{}, nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return domain.Event{}, nil, err
		}
		fetchCtx, cancel := context.WithTimeout(ctx, natsFetchWait)
		msgs, err := sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return domain.Event{}, nil, ctx.Err()
			}
			return domain.Event{}, nil, fmt.Errorf("fetch: %w", err)
		}
		if len(msgs) == 0 {
			continue
		}
		msg := msgs[0]
		var event domain.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			_ = msg.Term()
			return domain.Event{}, nil, fmt.Errorf("decode event: %w", err)
		}
		if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 0 {
			event.Attempt = int(meta.NumDelivered) - 1
		}
		ack := func(success bool) error {
			if success {
				return msg.Ack()
			}
			return msg.Nak()
		}
		return event, ack, nil
	}
}

func (q *NATSEventQueue) subscription() (*nats.Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sub != nil {
		return q.sub, nil
	}
	sub, err := q.js.PullSubscribe(q.subject, q.durable, nats.ManualAck(), nats.AckWait(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("pull subscribe %s: %w", q.subject, err)
	}
	q.sub = sub
	return sub, nil
}

// Close закрывает соединение с NATS.
func (q *NATSEventQueue) Close() error {
	q.conn.Close()
	return nil
}

func streamName(subject string) string {
	out := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		switch c {
		case '.', '*', '>', ' ':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return "RELINK_" + string(out)
}
