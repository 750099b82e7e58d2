package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relink/internal/adapters/memstore"
	"relink/internal/domain"
)

func newService() (*Service, *memstore.Store) {
	store := memstore.New(nil)
	return NewService(store, store, nil, time.Now, zerolog.Nop()), store
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	id := Identity{UserID: "u1", Email: "u1@example.com", Name: "Ann"}

	first, err := svc.EnsureProfile(ctx, id)
	if err != nil {
		t.Fatalf("создание: %v", err)
	}
	if first.DisplayName != "Ann" {
		t.Fatalf("имя из токена не сохранено: %+v", first)
	}
	if _, err := svc.EnsureProfile(ctx, Identity{UserID: "u1", Name: "Other"}); err != nil {
		t.Fatalf("повторный вызов: %v", err)
	}
	again, _ := svc.GetProfile(ctx, "u1")
	if again.DisplayName != "Ann" {
		t.Fatalf("повторный вызов не должен менять профиль")
	}
	activity, _ := svc.GetActivity(ctx, "u1", 0)
	if len(activity) != 1 || activity[0].Action != domain.ActivityProfileCreated {
		t.Fatalf("ожидали одну запись profile_created, получили %+v", activity)
	}
}

func TestUpdateProfileCreatesMissing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	name := "  Bob "
	user, err := svc.UpdateProfile(ctx, "u2", Update{DisplayName: &name})
	if err != nil {
		t.Fatalf("обновление: %v", err)
	}
	if user.DisplayName != "Bob" {
		t.Fatalf("имя должно быть обрезано: %q", user.DisplayName)
	}
	bad := "javascript:alert(1)"
	if _, err := svc.UpdateProfile(ctx, "u2", Update{PhotoURL: &bad}); !errors.Is(err, domain.ErrInvalidURL) {
		t.Fatalf("ожидали ErrInvalidURL, получили %v", err)
	}
}

func TestPublicProfileFallsBackToEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	if _, err := svc.EnsureProfile(ctx, Identity{UserID: "u3", Email: "u3@example.com"}); err != nil {
		t.Fatalf("создание: %v", err)
	}
	public, err := svc.GetPublicProfile(ctx, "u3")
	if err != nil || public.DisplayName != "u3@example.com" {
		t.Fatalf("публичный профиль: %+v %v", public, err)
	}
	if _, err := svc.GetPublicProfile(ctx, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("ожидали ErrUserNotFound, получили %v", err)
	}
}

func TestDeleteProfileRemovesActivity(t *testing.T) {
	ctx := context.Background()
	svc, store := newService()
	if _, err := svc.EnsureProfile(ctx, Identity{UserID: "u4"}); err != nil {
		t.Fatalf("создание: %v", err)
	}
	if err := svc.DeleteProfile(ctx, "u4"); err != nil {
		t.Fatalf("удаление: %v", err)
	}
	if _, err := store.GetUser(ctx, "u4"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("профиль должен быть удалён")
	}
	activity, _ := svc.GetActivity(ctx, "u4", 0)
	if len(activity) != 0 {
		t.Fatalf("журнал должен быть удалён")
	}
}
