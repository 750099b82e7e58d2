package feed

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"relink/internal/domain"
)

const keyPrefix = "feed:"

// CacheKey строит ключ страницы ленты по видимому набору авторов, номеру страницы и курсору.
// Идентификаторы экранируются, чтобы в ключе не было разделителей и glob-символов.
// Курсор закодирован в base64url и glob-символов не содержит.
func CacheKey(visible []string, page int, cursor string) string {
	ids := make([]string, 0, len(visible))
	for _, id := range visible {
		ids = append(ids, url.PathEscape(id))
	}
	sort.Strings(ids)
	key := keyPrefix + "|" + strings.Join(ids, "|") + "|:" + strconv.Itoa(page)
	if cursor != "" {
		key += ":" + cursor
	}
	return key
}

// AuthorPattern: glob-шаблон всех страниц, где виден автор.
func AuthorPattern(authorID string) string {
	return keyPrefix + "*|" + url.PathEscape(authorID) + "|*"
}

// Invalidator сбрасывает закэшированные страницы ленты.
type Invalidator struct {
	cache domain.Cache
	log   zerolog.Logger
}

var _ domain.FeedInvalidator = (*Invalidator)(nil)

// NewInvalidator создаёт инвалидатор; nil cache превращает его в no-op.
func NewInvalidator(cache domain.Cache, logger zerolog.Logger) *Invalidator {
	return &Invalidator{cache: cache, log: logger}
}

// InvalidateAuthor удаляет все страницы, в видимый набор которых входит автор.
// Ошибки кэша только логируются: устаревшая страница доживёт до TTL.
func (i *Invalidator) InvalidateAuthor(ctx context.Context, authorID string) {
	if i.cache == nil {
		return
	}
	n, err := i.cache.Invalidate(ctx, AuthorPattern(authorID))
	if err != nil {
		i.log.Error().Err(err).Str("author", authorID).Msg("feed: не удалось сбросить кэш автора")
		return
	}
	i.log.Debug().Str("author", authorID).Int("keys", n).Msg("feed: кэш автора сброшен")
}

// InvalidateAll удаляет все страницы ленты.
func (i *Invalidator) InvalidateAll(ctx context.Context) (int, error) {
	if i.cache == nil {
		return 0, nil
	}
	return i.cache.Invalidate(ctx, keyPrefix+"*")
}
