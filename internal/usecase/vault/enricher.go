package vault

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"relink/internal/domain"
)

// Enricher дополняет превью ссылок, сохранённых без него.
type Enricher struct {
	links   domain.LinkRepo
	fetcher domain.MetadataFetcher
	log     zerolog.Logger
}

// NewEnricher создаёт обогатитель. nil fetcher отключает его.
func NewEnricher(links domain.LinkRepo, fetcher domain.MetadataFetcher, logger zerolog.Logger) *Enricher {
	return &Enricher{links: links, fetcher: fetcher, log: logger}
}

// EnrichLink записывает превью, если у ссылки его ещё нет.
// Возвращает false, если превью уже было или источник не настроен.
func (e *Enricher) EnrichLink(ctx context.Context, linkID string) (bool, error) {
	link, err := e.links.GetLink(ctx, linkID)
	if err != nil {
		return false, err
	}
	if link.Title != "" && link.Title != link.URL {
		return false, nil
	}
	if e.fetcher == nil {
		return false, nil
	}
	meta, err := e.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		e.log.Warn().Err(err).Str("link", linkID).Msg("vault: превью недоступно")
		meta = domain.LinkMetadata{Title: domain.Hostname(link.URL)}
	}
	if meta.Title == "" {
		meta.Title = domain.Hostname(link.URL)
	}
	link.Title = meta.Title
	link.Description = meta.Description
	link.Image = meta.Image
	if err := e.links.UpdateLink(ctx, link); err != nil {
		return false, fmt.Errorf("обновление превью: %w", err)
	}
	return true, nil
}
