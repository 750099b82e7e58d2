package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/domain"
	"relink/internal/infra/queue"
)

type stubEnricher struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (s *stubEnricher) EnrichLink(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return false, errors.New("metadata timeout")
	}
	return true, nil
}

func (s *stubEnricher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingActivity) LogActivity(_ context.Context, userID, action string, _ map[string]any) {
	r.mu.Lock()
	r.entries = append(r.entries, userID+":"+action)
	r.mu.Unlock()
}

func (r *recordingActivity) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

type recordingInvalidator struct {
	mu      sync.Mutex
	authors []string
}

func (r *recordingInvalidator) InvalidateAuthor(_ context.Context, authorID string) {
	r.mu.Lock()
	r.authors = append(r.authors, authorID)
	r.mu.Unlock()
}

func TestProcessorRoutesEvents(t *testing.T) {
	ctx := context.Background()
	activity := &recordingActivity{}
	inval := &recordingInvalidator{}
	p := NewProcessor(&stubEnricher{}, activity, inval, zerolog.Nop())

	events := []domain.Event{
		{Type: domain.EventPostCreated, UserID: "a", PostID: "p1"},
		{Type: domain.EventPostUpdated, UserID: "a", PeerID: "b", PostID: "p1"},
		{Type: domain.EventConnectionAccepted, UserID: "a", PeerID: "b"},
		{Type: domain.EventLinkSaved, UserID: "a", LinkID: "l1"},
	}
	for _, e := range events {
		if err := p.Handle(ctx, e); err != nil {
			t.Fatalf("%s: %v", e.Type, err)
		}
	}
	want := []string{"a:post_created", "a:post_updated", "a:connection_accepted", "b:connection_accepted", "a:link_saved"}
	got := activity.list()
	if len(got) != len(want) {
		t.Fatalf("журнал: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("журнал[%d] = %s, ожидали %s", i, got[i], want[i])
		}
	}
	if len(inval.authors) != 2 {
		t.Fatalf("ожидали две инвалидации, получили %v", inval.authors)
	}
	if err := p.Handle(ctx, domain.Event{Type: "unknown"}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("ожидали ErrUnknownEvent, получили %v", err)
	}
}

func TestWorkerRetriesFailedEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	enricher := &stubEnricher{fails: 2}
	q := queue.NewMemoryEventQueue(8)
	w := NewWorker(q, NewProcessor(enricher, &recordingActivity{}, &recordingInvalidator{}, zerolog.Nop()), zerolog.Nop())
	w.backoff = 0

	if err := q.Publish(ctx, domain.Event{ID: "e1", Type: domain.EventLinkSaved, UserID: "a", LinkID: "l1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	for enricher.count() < 3 {
		select {
		case <-ctx.Done():
			t.Fatalf("событие не обработано: вызовов %d", enricher.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
	if q.Len() != 0 {
		t.Fatalf("после успеха событие не должно возвращаться в очередь")
	}
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	enricher := &stubEnricher{fails: 100}
	q := queue.NewMemoryEventQueue(8)
	w := NewWorker(q, NewProcessor(enricher, &recordingActivity{}, &recordingInvalidator{}, zerolog.Nop()), zerolog.Nop())
	w.backoff = 0

	if err := q.Publish(ctx, domain.Event{ID: "e2", Type: domain.EventLinkSaved, LinkID: "l1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i := 0; i < MaxDeliveryAttempts; i++ {
		event, ack, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		w.process(ctx, event, ack)
	}
	if enricher.count() != MaxDeliveryAttempts {
		t.Fatalf("ожидали %d попыток, получили %d", MaxDeliveryAttempts, enricher.count())
	}
	if q.Len() != 0 {
		t.Fatalf("после последней попытки событие отбрасывается")
	}
}

func TestInlineSwallowsErrors(t *testing.T) {
	p := NewProcessor(&stubEnricher{fails: 1}, &recordingActivity{}, &recordingInvalidator{}, zerolog.Nop())
	inline := NewInline(p, zerolog.Nop())
	if err := inline.Publish(context.Background(), domain.Event{Type: domain.EventLinkSaved, LinkID: "l1"}); err != nil {
		t.Fatalf("inline не возвращает ошибок обработки: %v", err)
	}
}
