package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/adapters/memstore"
	"relink/internal/domain"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixedPeriod struct {
	period domain.Period
}

func (p fixedPeriod) CurrentPeriod() domain.Period { return p.period }

type stubFetcher struct {
	meta domain.LinkMetadata
	err  error
	hits int
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (domain.LinkMetadata, error) {
	s.hits++
	if s.err != nil {
		return domain.LinkMetadata{}, &domain.MetadataFetchError{URL: rawURL, Err: s.err}
	}
	return s.meta, nil
}

type recordingPublisher struct {
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.events = append(p.events, event)
	return nil
}

func newService(t *testing.T, fetcher domain.MetadataFetcher) (*Service, *memstore.Store, *manualClock, *recordingPublisher) {
	t.Helper()
	clock := &manualClock{t: time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)}
	store := memstore.New(clock.now)
	if _, _, err := store.EnsureUser(context.Background(), domain.User{ID: "a"}); err != nil {
		t.Fatalf("создание пользователя: %v", err)
	}
	if _, _, err := store.EnsureUser(context.Background(), domain.User{ID: "b"}); err != nil {
		t.Fatalf("создание пользователя: %v", err)
	}
	period := domain.NewPeriodCalendar(domain.PeriodMonth, time.UTC).At(clock.t)
	pub := &recordingPublisher{}
	return NewService(store, fetcher, fixedPeriod{period: period}, pub, clock.now, zerolog.Nop()), store, clock, pub
}

func TestSaveLinkUsesMetadata(t *testing.T) {
	fetcher := &stubFetcher{meta: domain.LinkMetadata{Title: "Go Blog", Description: "news", Image: "https://go.dev/i.png"}}
	svc, _, _, pub := newService(t, fetcher)

	link, err := svc.SaveLink(context.Background(), "a", NewLink{URL: "https://go.dev/blog", Comment: " must read "})
	if err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	if link.Title != "Go Blog" || link.Description != "news" || link.Comment != "must read" {
		t.Fatalf("неверная ссылка: %+v", link)
	}
	if len(pub.events) != 1 || pub.events[0].LinkID != link.ID {
		t.Fatalf("ожидали событие link.saved")
	}
}

func TestSaveLinkFallsBackToHostname(t *testing.T) {
	svc, _, _, _ := newService(t, &stubFetcher{err: errors.New("timeout")})
	link, err := svc.SaveLink(context.Background(), "a", NewLink{URL: "https://example.org/page"})
	if err != nil {
		t.Fatalf("ошибка превью не должна мешать сохранению: %v", err)
	}
	if link.Title != "example.org" {
		t.Fatalf("ожидали hostname в заголовке, получили %q", link.Title)
	}
	if _, err := svc.SaveLink(context.Background(), "a", NewLink{URL: "not a url"}); !errors.Is(err, domain.ErrInvalidURL) {
		t.Fatalf("ожидали ErrInvalidURL, получили %v", err)
	}
}

func TestQuickSaveThenEnrich(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{meta: domain.LinkMetadata{Title: "Article"}}
	svc, store, _, _ := newService(t, fetcher)

	link, err := svc.QuickSave(ctx, "a", "https://example.com/article")
	if err != nil {
		t.Fatalf("быстрое сохранение: %v", err)
	}
	if link.Title != link.URL || link.IsRead || fetcher.hits != 0 {
		t.Fatalf("быстрое сохранение не ходит за превью: %+v", link)
	}
	updated, err := svc.EnrichLink(ctx, link.ID)
	if err != nil || !updated {
		t.Fatalf("обогащение: %v %v", updated, err)
	}
	stored, _ := store.GetLink(ctx, link.ID)
	if stored.Title != "Article" {
		t.Fatalf("превью не записано: %+v", stored)
	}
	updated, _ = svc.EnrichLink(ctx, link.ID)
	if updated {
		t.Fatalf("повторное обогащение не нужно")
	}
}

func TestImportTextDeduplicates(t *testing.T) {
	svc, _, _, _ := newService(t, nil)
	text := "читать https://a.example/x и https://b.example/y, ещё раз https://a.example/x и mailto:me@example.com"
	links, err := svc.ImportText(context.Background(), "a", text)
	if err != nil {
		t.Fatalf("импорт: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("ожидали две уникальные ссылки, получили %d", len(links))
	}
}

func TestUpdateAndDeleteOwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t, nil)
	link, err := svc.QuickSave(ctx, "a", "https://example.com")
	if err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	read := true
	if _, err := svc.UpdateLink(ctx, link.ID, "b", LinkUpdate{IsRead: &read}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("чужую ссылку менять нельзя: %v", err)
	}
	updated, err := svc.UpdateLink(ctx, link.ID, "a", LinkUpdate{IsRead: &read})
	if err != nil || !updated.IsRead {
		t.Fatalf("обновление: %+v %v", updated, err)
	}
	if err := svc.DeleteLink(ctx, link.ID, "b"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("чужую ссылку удалять нельзя: %v", err)
	}
	if err := svc.DeleteLink(ctx, link.ID, "a"); err != nil {
		t.Fatalf("удаление: %v", err)
	}
	links, _ := svc.ListLinks(ctx, "a")
	if len(links) != 0 {
		t.Fatalf("ссылка должна быть удалена")
	}
}

func TestCurateCandidates(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newService(t, nil)
	if _, err := svc.QuickSave(ctx, "a", "https://one.example"); err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	if _, err := svc.QuickSave(ctx, "a", "https://two.example"); err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	if _, err := svc.QuickSave(ctx, "a", "https://one.example"); err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	if _, err := store.SaveLink(ctx, domain.VaultLink{UserID: "b", URL: "https://other.example"}); err != nil {
		t.Fatalf("сохранение: %v", err)
	}

	candidates, err := svc.CurateCandidates(ctx, "a")
	if err != nil {
		t.Fatalf("кандидаты: %v", err)
	}
	if len(candidates) != 2 || candidates[0].URL != "https://one.example" {
		t.Fatalf("ожидали две ссылки, новые сверху: %+v", candidates)
	}
}
