package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/domain"
)

// MaxDeliveryAttempts: после стольких неудач событие подтверждается и отбрасывается.
const MaxDeliveryAttempts = 5

// Worker читает события из очереди и передаёт их обработчику.
type Worker struct {
	queue     domain.EventQueue
	processor *Processor
	log       zerolog.Logger
	backoff   time.Duration
}

// NewWorker создаёт воркер.
func NewWorker(queue domain.EventQueue, processor *Processor, logger zerolog.Logger) *Worker {
	return &Worker{queue: queue, processor: processor, log: logger, backoff: time.Second}
}

// Run обрабатывает события, пока не отменён ctx.
func (w *Worker) Run(ctx context.Context) {
	for {
		event, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.process(ctx, event, ack)
	}
}

func (w *Worker) process(ctx context.Context, event domain.Event, ack domain.AckFunc) {
	attempt := event.Attempt + 1
	eventLog := w.log.With().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("user", event.UserID).
		Int("attempt", attempt).
		Logger()

	err := w.processor.Handle(ctx, event)
	if err == nil {
		if ackErr := ack(true); ackErr != nil {
			eventLog.Error().Err(ackErr).Msg("worker: не удалось подтвердить событие")
		}
		return
	}

	if errors.Is(err, ErrUnknownEvent) {
		eventLog.Error().Err(err).Msg("worker: неизвестное событие, подтверждаем и пропускаем")
		if ackErr := ack(true); ackErr != nil {
			eventLog.Error().Err(ackErr).Msg("worker: не удалось подтвердить событие")
		}
		return
	}

	if attempt < MaxDeliveryAttempts {
		eventLog.Warn().Err(err).Msg("worker: событие завершилось ошибкой, повторим позже")
		if ackErr := ack(false); ackErr != nil {
			eventLog.Error().Err(ackErr).Msg("worker: не удалось вернуть событие в очередь")
		}
		w.sleep(ctx)
		return
	}

	eventLog.Error().Err(err).Msg("worker: достигнут предел попыток, отбрасываем событие")
	if ackErr := ack(true); ackErr != nil {
		eventLog.Error().Err(ackErr).Msg("worker: не удалось подтвердить событие")
	}
}

func (w *Worker) sleep(ctx context.Context) {
	if w.backoff <= 0 {
		return
	}
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
