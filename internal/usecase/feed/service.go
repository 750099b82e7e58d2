// Package feed строит ленту ReLink: видимость постов друзей, пагинацию и кэш страниц.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

// DefaultPageSize: размер страницы ленты.
const DefaultPageSize = 10

// Service отдаёт ленту зрителю.
type Service struct {
	users    domain.UserRepo
	posts    domain.PostRepo
	gate     domain.PostingGate
	cache    domain.Cache
	ttl      time.Duration
	pageSize int
	log      zerolog.Logger
}

// NewService создаёт сервис ленты. nil cache отключает кэширование.
func NewService(users domain.UserRepo, posts domain.PostRepo, gate domain.PostingGate, cache domain.Cache, ttl time.Duration, pageSize int, logger zerolog.Logger) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{users: users, posts: posts, gate: gate, cache: cache, ttl: ttl, pageSize: pageSize, log: logger}
}

type cachedPage struct {
	Posts      []domain.Post `json:"posts"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// GetFeedPosts возвращает страницу ленты.
// Пока зритель не опубликовал ReLink в текущем периоде, он видит только свои посты.
// ids от вызывающего пересекаются с живым списком друзей; пустой ids означает всех друзей.
func (s *Service) GetFeedPosts(ctx context.Context, viewerID string, page int, cursor string, ids []string) (domain.FeedPage, error) {
	if page < 1 {
		page = 1
	}
	// первая страница всегда начинается с начала ленты, дальше нужен курсор
	if (page == 1) != (cursor == "") {
		return domain.FeedPage{}, domain.ErrInvalidCursor
	}
	var after *domain.FeedCursor
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return domain.FeedPage{}, err
		}
		after = c
	}

	visible, locked, err := s.VisibleAuthors(ctx, viewerID, ids)
	if err != nil {
		return domain.FeedPage{}, err
	}

	key := CacheKey(visible, page, cursor)
	if cached, ok := s.lookup(ctx, key); ok {
		return domain.FeedPage{Posts: cached.Posts, NextCursor: cached.NextCursor, Locked: locked, Page: page}, nil
	}

	posts, err := s.posts.ListFeed(ctx, domain.FeedQuery{UserIDs: visible, After: after, Limit: s.pageSize + 1})
	if err != nil {
		return domain.FeedPage{}, fmt.Errorf("выборка ленты: %w", err)
	}
	result := cachedPage{Posts: posts}
	if len(posts) > s.pageSize {
		result.Posts = posts[:s.pageSize]
		result.NextCursor = EncodeCursor(result.Posts[s.pageSize-1])
	}
	if result.Posts == nil {
		result.Posts = []domain.Post{}
	}
	s.store(ctx, key, result)
	return domain.FeedPage{Posts: result.Posts, NextCursor: result.NextCursor, Locked: locked, Page: page}, nil
}

// VisibleAuthors вычисляет набор авторов, чьи посты видит зритель, и признак блокировки.
func (s *Service) VisibleAuthors(ctx context.Context, viewerID string, ids []string) ([]string, bool, error) {
	posted, err := s.gate.HasPostedThisPeriod(ctx, viewerID)
	if err != nil {
		return nil, false, fmt.Errorf("проверка периода: %w", err)
	}
	if !posted {
		return []string{viewerID}, true, nil
	}

	viewer, err := s.users.GetUser(ctx, viewerID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return []string{viewerID}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("получение профиля: %w", err)
	}

	visible := []string{viewerID}
	seen := map[string]struct{}{viewerID: {}}
	candidates := ids
	if len(candidates) == 0 {
		candidates = viewer.Connections
	}
	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			continue
		}
		if !viewer.HasConnection(id) {
			continue
		}
		seen[id] = struct{}{}
		visible = append(visible, id)
	}
	return visible, false, nil
}

func (s *Service) lookup(ctx context.Context, key string) (cachedPage, bool) {
	if s.cache == nil || s.ttl <= 0 {
		metrics.ObserveFeedCache("bypass")
		return cachedPage{}, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("feed: кэш недоступен")
		metrics.ObserveFeedCache("bypass")
		return cachedPage{}, false
	}
	if !ok {
		metrics.ObserveFeedCache("miss")
		return cachedPage{}, false
	}
	var page cachedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("feed: повреждённая запись кэша")
		metrics.ObserveFeedCache("miss")
		return cachedPage{}, false
	}
	metrics.ObserveFeedCache("hit")
	return page, true
}

func (s *Service) store(ctx context.Context, key string, page cachedPage) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		s.log.Warn().Err(err).Msg("feed: не удалось сериализовать страницу")
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("feed: не удалось записать страницу в кэш")
	}
}
