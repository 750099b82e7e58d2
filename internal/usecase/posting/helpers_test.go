package posting

import (
	"context"
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
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recordingInvalidator struct {
	authors []string
}

func (r *recordingInvalidator) InvalidateAuthor(_ context.Context, authorID string) {
	r.authors = append(r.authors, authorID)
}

type recordingPublisher struct {
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	store  *memstore.Store
	clock  *manualClock
	gate   *Gate
	svc    *Service
	inval  *recordingInvalidator
	events *recordingPublisher
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	clock := &manualClock{t: time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)}
	store := memstore.New(clock.now)
	for _, id := range users {
		if _, _, err := store.EnsureUser(context.Background(), domain.User{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("создание пользователя: %v", err)
		}
	}
	calendar := domain.NewPeriodCalendar(domain.PeriodMonth, time.UTC)
	gate := NewGate(store, store, calendar, clock.now, zerolog.Nop())
	inval := &recordingInvalidator{}
	events := &recordingPublisher{}
	svc := NewService(store, store, gate, inval, events, zerolog.Nop())
	return &fixture{store: store, clock: clock, gate: gate, svc: svc, inval: inval, events: events}
}

func monthlyInput() NewPost {
	links := make([]domain.LinkEntry, domain.MonthlyLinkCount)
	for i := range links {
		links[i] = domain.LinkEntry{URL: "https://example.com/" + string(rune('a'+i)), Title: "t"}
	}
	return NewPost{Type: domain.PostTypeMonthly, MonthlyLinks: links}
}

func singleInput(url string) NewPost {
	return NewPost{Type: domain.PostTypeSingle, Link: &domain.LinkEntry{URL: url}}
}
