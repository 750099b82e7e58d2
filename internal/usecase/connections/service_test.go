package connections

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/adapters/memstore"
	"relink/internal/domain"
)

type recordingPublisher struct {
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.events = append(p.events, event)
	return nil
}

func newService(t *testing.T, users ...string) (*Service, *memstore.Store, *recordingPublisher) {
	t.Helper()
	store := memstore.New(nil)
	for _, id := range users {
		if _, _, err := store.EnsureUser(context.Background(), domain.User{ID: id, DisplayName: "User " + id}); err != nil {
			t.Fatalf("создание пользователя: %v", err)
		}
	}
	pub := &recordingPublisher{}
	return NewService(store, store, pub, time.Now, zerolog.Nop()), store, pub
}

func TestAcceptMakesFriendshipSymmetric(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newService(t, "a", "b")

	if _, err := svc.SendRequest(ctx, "a", "b"); err != nil {
		t.Fatalf("заявка: %v", err)
	}
	status, _ := svc.FriendshipStatus(ctx, "b", "a")
	if status != domain.FriendshipPending {
		t.Fatalf("ожидали pending, получили %s", status)
	}
	pending, err := svc.ListPendingRequests(ctx, "b")
	if err != nil || len(pending) != 1 || pending[0].ID != "a" {
		t.Fatalf("входящие заявки: %v %v", pending, err)
	}

	if _, err := svc.Accept(ctx, "a", "b"); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("отправитель не может принять свою заявку: %v", err)
	}
	conn, err := svc.Accept(ctx, "b", "a")
	if err != nil {
		t.Fatalf("принятие: %v", err)
	}
	if conn.Status != domain.ConnectionAccepted || conn.AcceptedAt == nil {
		t.Fatalf("неверная запись связи: %+v", conn)
	}

	a, _ := store.GetUser(ctx, "a")
	b, _ := store.GetUser(ctx, "b")
	if !a.HasConnection("b") || !b.HasConnection("a") {
		t.Fatalf("дружба должна быть симметричной: %v %v", a.Connections, b.Connections)
	}
	if len(a.SentRequests) != 0 || len(b.PendingRequests) != 0 {
		t.Fatalf("после принятия не должно остаться заявок")
	}
	stored, found, _ := store.FindBetween(ctx, "a", "b")
	if !found || stored.Status == domain.ConnectionPending {
		t.Fatalf("pending-записи для пары не должно остаться")
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.EventConnectionAccepted {
		t.Fatalf("ожидали событие connection.accepted, получили %+v", pub.events)
	}

	friends, err := svc.ListFriends(ctx, "a")
	if err != nil || len(friends) != 1 || friends[0].DisplayName != "User b" {
		t.Fatalf("список друзей: %v %v", friends, err)
	}
	if _, err := svc.SendRequest(ctx, "b", "a"); !errors.Is(err, domain.ErrAlreadyConnected) {
		t.Fatalf("повторная заявка друзьям: %v", err)
	}
}

func TestRejectReturnsToNone(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, "a", "b")
	if _, err := svc.SendRequest(ctx, "a", "b"); err != nil {
		t.Fatalf("заявка: %v", err)
	}
	if _, err := svc.SendRequest(ctx, "a", "b"); !errors.Is(err, domain.ErrRequestExists) {
		t.Fatalf("дубль заявки: %v", err)
	}
	if err := svc.Reject(ctx, "b", "a"); err != nil {
		t.Fatalf("отклонение: %v", err)
	}
	status, _ := svc.FriendshipStatus(ctx, "a", "b")
	if status != domain.FriendshipNone {
		t.Fatalf("после отклонения статус none, получили %s", status)
	}
	a, _ := store.GetUser(ctx, "a")
	if len(a.SentRequests) != 0 {
		t.Fatalf("исходящая заявка должна исчезнуть")
	}
	if err := svc.Reject(ctx, "b", "a"); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("повторное отклонение: %v", err)
	}
}

func TestSendRequestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, "a")
	if _, err := svc.SendRequest(ctx, "a", "a"); !errors.Is(err, domain.ErrSelfConnection) {
		t.Fatalf("заявка самому себе: %v", err)
	}
	if _, err := svc.SendRequest(ctx, "a", "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("заявка несуществующему: %v", err)
	}
}
