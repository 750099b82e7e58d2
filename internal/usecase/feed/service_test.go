package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/adapters/memstore"
	"relink/internal/domain"
	"relink/internal/infra/cache"
	"relink/internal/usecase/posting"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *memstore.Store
	clock   *manualClock
	cache   *cache.MemoryCache
	feed    *Service
	posting *posting.Service
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	clock := &manualClock{t: time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)}
	store := memstore.New(clock.now)
	for _, id := range users {
		if _, _, err := store.EnsureUser(context.Background(), domain.User{ID: id}); err != nil {
			t.Fatalf("создание пользователя: %v", err)
		}
	}
	calendar := domain.NewPeriodCalendar(domain.PeriodMonth, time.UTC)
	gate := posting.NewGate(store, store, calendar, clock.now, zerolog.Nop())
	memCache := cache.NewMemory(128, clock.now)
	feedSvc := NewService(store, store, gate, memCache, 5*time.Minute, 2, zerolog.Nop())
	postSvc := posting.NewService(store, store, gate, NewInvalidator(memCache, zerolog.Nop()), nil, zerolog.Nop())
	return &fixture{store: store, clock: clock, cache: memCache, feed: feedSvc, posting: postSvc}
}

func (f *fixture) connect(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.CreateRequest(ctx, a, b); err != nil {
		t.Fatalf("заявка: %v", err)
	}
	if _, err := f.store.AcceptRequest(ctx, b, a); err != nil {
		t.Fatalf("принятие: %v", err)
	}
}

func (f *fixture) post(t *testing.T, userID string) domain.Post {
	t.Helper()
	links := make([]domain.LinkEntry, domain.MonthlyLinkCount)
	for i := range links {
		links[i] = domain.LinkEntry{URL: "https://example.com/" + userID}
	}
	p, err := f.posting.CreatePost(context.Background(), userID, posting.NewPost{Type: domain.PostTypeMonthly, MonthlyLinks: links})
	if err != nil {
		t.Fatalf("создание поста %s: %v", userID, err)
	}
	return p
}

func authors(posts []domain.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.UserID)
	}
	return out
}

func TestLockedViewerSeesOnlyOwnPosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.connect(t, "a", "b")
	f.post(t, "b")

	page, err := f.feed.GetFeedPosts(ctx, "a", 1, "", []string{"a", "b"})
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	if !page.Locked {
		t.Fatalf("лента должна быть заблокирована")
	}
	if len(page.Posts) != 0 {
		t.Fatalf("заблокированный зритель не видит чужих постов, получили %v", authors(page.Posts))
	}

	// после публикации лента включает обоих, новые сверху
	f.post(t, "a")
	page, err = f.feed.GetFeedPosts(ctx, "a", 1, "", []string{"a", "b"})
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	got := authors(page.Posts)
	if page.Locked || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("ожидали [a b], получили %v locked=%v", got, page.Locked)
	}
}

func TestFeedReverifiesConnections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "stranger")
	f.connect(t, "a", "b")
	f.post(t, "stranger")
	f.post(t, "b")
	f.post(t, "a")

	page, err := f.feed.GetFeedPosts(ctx, "a", 1, "", []string{"a", "b", "stranger"})
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	for _, author := range authors(page.Posts) {
		if author == "stranger" {
			t.Fatalf("посты не-друга не должны попадать в ленту")
		}
	}

	visible, _, err := f.feed.VisibleAuthors(ctx, "a", nil)
	if err != nil || len(visible) != 2 {
		t.Fatalf("пустой список означает всех друзей: %v %v", visible, err)
	}
}

func TestFeedCacheServesStalePageUntilTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.connect(t, "a", "b")
	f.post(t, "a")

	first, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	// запись в обход сервиса публикации не сбрасывает кэш
	period := domain.NewPeriodCalendar(domain.PeriodMonth, time.UTC).At(f.clock.now())
	if _, err := f.store.CreatePost(ctx, domain.Post{UserID: "b", Type: domain.PostTypeMonthly, PeriodStart: period.Start}); err != nil {
		t.Fatalf("прямая запись: %v", err)
	}

	second, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	if len(second.Posts) != len(first.Posts) || second.Posts[0].ID != first.Posts[0].ID {
		t.Fatalf("в пределах TTL ответ должен совпадать")
	}

	f.clock.advance(5*time.Minute + time.Second)
	third, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	if len(third.Posts) != 2 {
		t.Fatalf("после TTL лента должна обновиться, получили %v", authors(third.Posts))
	}
}

func TestFeedCacheInvalidatedByNewPost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.connect(t, "a", "b")
	f.post(t, "a")

	before, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil || len(before.Posts) != 1 {
		t.Fatalf("лента: %v %v", before.Posts, err)
	}
	f.post(t, "b")
	after, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	if got := authors(after.Posts); len(got) != 2 || got[0] != "b" {
		t.Fatalf("новый пост видимого автора должен появиться сразу, получили %v", got)
	}
}

func TestFeedLockRecomputedOnCachedPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "solo")
	p := f.post(t, "solo")

	page, _ := f.feed.GetFeedPosts(ctx, "solo", 1, "", nil)
	if page.Locked {
		t.Fatalf("после публикации лента открыта")
	}
	if _, err := f.posting.DeletePost(ctx, p.ID, "solo"); err != nil {
		t.Fatalf("удаление: %v", err)
	}
	page, _ = f.feed.GetFeedPosts(ctx, "solo", 1, "", nil)
	if !page.Locked || len(page.Posts) != 0 {
		t.Fatalf("после удаления лента снова заблокирована и пуста: %+v", page)
	}
}

func TestFeedPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.connect(t, "a", "b")
	f.connect(t, "a", "c")
	f.post(t, "b")
	f.post(t, "c")
	f.post(t, "a")

	first, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	if len(first.Posts) != 2 || first.NextCursor == "" {
		t.Fatalf("ожидали полную первую страницу с курсором: %+v", first)
	}
	second, err := f.feed.GetFeedPosts(ctx, "a", 2, first.NextCursor, nil)
	if err != nil {
		t.Fatalf("вторая страница: %v", err)
	}
	if got := authors(second.Posts); len(got) != 1 || got[0] != "b" || second.NextCursor != "" {
		t.Fatalf("ожидали [b] без курсора, получили %v %q", got, second.NextCursor)
	}

	if _, err := f.feed.GetFeedPosts(ctx, "a", 2, "", nil); !errors.Is(err, domain.ErrInvalidCursor) {
		t.Fatalf("страница 2 без курсора: %v", err)
	}
	if _, err := f.feed.GetFeedPosts(ctx, "a", 2, "!!", nil); !errors.Is(err, domain.ErrInvalidCursor) {
		t.Fatalf("битый курсор: %v", err)
	}
}

func TestFirstPageRejectsCursorAndKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.connect(t, "a", "b")
	f.connect(t, "a", "c")
	f.post(t, "a")
	f.post(t, "b")
	f.post(t, "c")

	first, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil {
		t.Fatalf("лента: %v", err)
	}
	want := authors(first.Posts)
	if len(want) != 2 || want[0] != "c" || want[1] != "b" {
		t.Fatalf("ожидали [c b], получили %v", want)
	}

	if _, err := f.feed.GetFeedPosts(ctx, "a", 1, first.NextCursor, nil); !errors.Is(err, domain.ErrInvalidCursor) {
		t.Fatalf("курсор на первой странице должен отклоняться: %v", err)
	}
	// несогласованные номер страницы и курсор кэшируются под своим ключом
	third, err := f.feed.GetFeedPosts(ctx, "a", 3, first.NextCursor, nil)
	if err != nil {
		t.Fatalf("страница 3: %v", err)
	}
	if got := authors(third.Posts); len(got) != 1 || got[0] != "a" {
		t.Fatalf("ожидали [a], получили %v", got)
	}

	again, err := f.feed.GetFeedPosts(ctx, "a", 1, "", nil)
	if err != nil {
		t.Fatalf("повтор: %v", err)
	}
	if got := authors(again.Posts); len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Fatalf("первая страница в кэше испорчена: ожидали [c b], получили %v", got)
	}
	if CacheKey([]string{"a"}, 2, "abc") == CacheKey([]string{"a"}, 2, "") {
		t.Fatalf("курсор должен входить в ключ")
	}
}

func TestCacheKeyAndAuthorPattern(t *testing.T) {
	k1 := CacheKey([]string{"b", "a"}, 1, "")
	k2 := CacheKey([]string{"a", "b"}, 1, "")
	if k1 != k2 || k1 != "feed:|a|b|:1" {
		t.Fatalf("ключ не зависит от порядка: %q %q", k1, k2)
	}
	if CacheKey([]string{"a*b"}, 1, "") != "feed:|a%2Ab|:1" {
		t.Fatalf("glob-символы должны экранироваться: %q", CacheKey([]string{"a*b"}, 1, ""))
	}

	ctx := context.Background()
	c := cache.NewMemory(16, time.Now)
	_ = c.Set(ctx, CacheKey([]string{"a", "b"}, 1, ""), []byte("x"), time.Minute)
	_ = c.Set(ctx, CacheKey([]string{"a", "bb"}, 1, ""), []byte("x"), time.Minute)
	_ = c.Set(ctx, CacheKey([]string{"b"}, 2, ""), []byte("x"), time.Minute)
	n, err := c.Invalidate(ctx, AuthorPattern("b"))
	if err != nil || n != 2 {
		t.Fatalf("ожидали сброс двух страниц с автором b, получили %d %v", n, err)
	}
}
