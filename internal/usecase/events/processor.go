// Package events обрабатывает доменные события: превью ссылок, журнал действий и общий кэш ленты.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

// ErrUnknownEvent возвращается для событий неизвестного типа.
var ErrUnknownEvent = errors.New("unknown event type")

// LinkEnricher дополняет превью сохранённой ссылки.
type LinkEnricher interface {
	EnrichLink(ctx context.Context, linkID string) (bool, error)
}

// ActivityLogger пишет журнал действий пользователя.
type ActivityLogger interface {
	LogActivity(ctx context.Context, userID, action string, details map[string]any)
}

// Processor выполняет побочные эффекты события.
type Processor struct {
	links       LinkEnricher
	activity    ActivityLogger
	invalidator domain.FeedInvalidator
	log         zerolog.Logger
}

// NewProcessor создаёт обработчик событий.
func NewProcessor(links LinkEnricher, activity ActivityLogger, invalidator domain.FeedInvalidator, logger zerolog.Logger) *Processor {
	return &Processor{links: links, activity: activity, invalidator: invalidator, log: logger}
}

// Handle обрабатывает одно событие. Ошибка означает, что событие стоит повторить.
func (p *Processor) Handle(ctx context.Context, event domain.Event) error {
	err := p.handle(ctx, event)
	metrics.ObserveEvent(string(event.Type), err)
	return err
}

func (p *Processor) handle(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.EventLinkSaved:
		if _, err := p.links.EnrichLink(ctx, event.LinkID); err != nil {
			if errors.Is(err, domain.ErrLinkNotFound) {
				return nil
			}
			return fmt.Errorf("превью ссылки: %w", err)
		}
		p.activity.LogActivity(ctx, event.UserID, domain.ActivityLinkSaved, map[string]any{"linkId": event.LinkID})
	case domain.EventPostCreated:
		p.invalidator.InvalidateAuthor(ctx, event.UserID)
		p.activity.LogActivity(ctx, event.UserID, domain.ActivityPostCreated, map[string]any{"postId": event.PostID})
	case domain.EventPostDeleted:
		p.invalidator.InvalidateAuthor(ctx, event.UserID)
		p.activity.LogActivity(ctx, event.UserID, domain.ActivityPostDeleted, map[string]any{"postId": event.PostID})
	case domain.EventPostUpdated:
		p.invalidator.InvalidateAuthor(ctx, event.UserID)
		if event.PeerID != "" && event.PeerID != event.UserID {
			p.activity.LogActivity(ctx, event.UserID, domain.ActivityPostUpdated, map[string]any{"postId": event.PostID, "by": event.PeerID})
		}
	case domain.EventConnectionAccepted:
		p.activity.LogActivity(ctx, event.UserID, domain.ActivityConnectionAccepted, map[string]any{"peer": event.PeerID})
		p.activity.LogActivity(ctx, event.PeerID, domain.ActivityConnectionAccepted, map[string]any{"peer": event.UserID})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event.Type)
	}
	return nil
}

// Inline обрабатывает события сразу при публикации. Используется без брокера (QUEUE_DRIVER=none).
type Inline struct {
	processor *Processor
	log       zerolog.Logger
}

var _ domain.EventPublisher = (*Inline)(nil)

// NewInline создаёт синхронный издатель.
func NewInline(processor *Processor, logger zerolog.Logger) *Inline {
	return &Inline{processor: processor, log: logger}
}

// Publish реализует domain.EventPublisher. Ошибки обработки только логируются.
func (i *Inline) Publish(ctx context.Context, event domain.Event) error {
	if err := i.processor.Handle(ctx, event); err != nil {
		i.log.Warn().Err(err).Str("type", string(event.Type)).Str("event_id", event.ID).Msg("events: событие не обработано")
	}
	return nil
}
