// Package metadata получает превью ссылок для хранилища и постов.
package metadata

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"relink/internal/domain"
)

// Chain опрашивает источники по порядку и возвращает первый успешный ответ.
type Chain struct {
	fetchers []domain.MetadataFetcher
}

var _ domain.MetadataFetcher = (*Chain)(nil)

// NewChain собирает цепочку. nil-источники пропускаются.
func NewChain(fetchers ...domain.MetadataFetcher) *Chain {
	c := &Chain{}
	for _, f := range fetchers {
		if f != nil {
			c.fetchers = append(c.fetchers, f)
		}
	}
	return c
}

// Fetch реализует domain.MetadataFetcher.
func (c *Chain) Fetch(ctx context.Context, rawURL string) (domain.LinkMetadata, error) {
	if len(c.fetchers) == 0 {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: errors.New("no metadata sources configured")}
	}
	var errs []error
	for _, f := range c.fetchers {
		meta, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return meta, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: errors.Join(errs...)}
}

// FetchOrFallback возвращает превью или, при ошибке, hostname ссылки в качестве заголовка.
// nil fetcher сразу даёт hostname.
func FetchOrFallback(ctx context.Context, fetcher domain.MetadataFetcher, rawURL string, logger zerolog.Logger) domain.LinkMetadata {
	if fetcher == nil {
		return Fallback(rawURL)
	}
	meta, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		logger.Warn().Err(err).Str("url", rawURL).Msg("metadata: превью недоступно, используем hostname")
		return Fallback(rawURL)
	}
	if meta.URL == "" {
		meta.URL = rawURL
	}
	return meta
}

// Fallback строит минимальное превью из hostname.
func Fallback(rawURL string) domain.LinkMetadata {
	return domain.LinkMetadata{Title: domain.Hostname(rawURL), URL: rawURL}
}
