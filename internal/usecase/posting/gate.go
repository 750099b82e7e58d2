package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

// Действия по исправлению указателя текущего поста.
const (
	RepairNone     = ""
	RepairCleared  = "cleared"
	RepairRestored = "restored"
)

// PointerCheck: результат проверки указателя против хранилища постов.
// Valid означает, что указателю можно верить; Stale означает, что его нужно сбросить.
type PointerCheck struct {
	Valid bool
	Stale bool
}

// Gate решает, публиковал ли пользователь ReLink в текущем периоде.
// Источник истины: хранилище постов. Указатель в профиле только ускоряет ответ.
type Gate struct {
	users    domain.UserRepo
	posts    domain.PostRepo
	calendar domain.PeriodCalendar
	now      domain.Clock
	log      zerolog.Logger
}

var _ domain.PostingGate = (*Gate)(nil)

// NewGate создаёт гейт публикаций.
func NewGate(users domain.UserRepo, posts domain.PostRepo, calendar domain.PeriodCalendar, now domain.Clock, logger zerolog.Logger) *Gate {
	return &Gate{users: users, posts: posts, calendar: calendar, now: now, log: logger}
}

// CurrentPeriod возвращает период, в котором находится текущий момент.
func (g *Gate) CurrentPeriod() domain.Period {
	return g.calendar.At(g.now())
}

// ValidatePointer сверяет указатель профиля с хранилищем постов.
// Указатель за другой период не считается устаревшим: он просто не отвечает на вопрос о текущем.
func (g *Gate) ValidatePointer(ctx context.Context, user domain.User, period domain.Period) (PointerCheck, error) {
	ptr := user.CurrentPost
	if ptr == nil || !period.SameStart(ptr.PeriodStart) {
		return PointerCheck{}, nil
	}
	post, err := g.posts.GetPost(ctx, ptr.PostID)
	if errors.Is(err, domain.ErrPostNotFound) {
		return PointerCheck{Stale: true}, nil
	}
	if err != nil {
		return PointerCheck{}, fmt.Errorf("проверка указателя: %w", err)
	}
	if post.Deleted || post.UserID != user.ID || !period.Contains(post.CreatedAt) {
		return PointerCheck{Stale: true}, nil
	}
	return PointerCheck{Valid: true}, nil
}

// HasPostedThisPeriod реализует domain.PostingGate.
func (g *Gate) HasPostedThisPeriod(ctx context.Context, userID string) (bool, error) {
	posted, _, err := g.resolve(ctx, userID)
	return posted, err
}

// Repair выполняет ту же проверку, что и гейт, и сообщает, что было исправлено.
func (g *Gate) Repair(ctx context.Context, userID string) (string, error) {
	_, action, err := g.resolve(ctx, userID)
	return action, err
}

func (g *Gate) resolve(ctx context.Context, userID string) (bool, string, error) {
	period := g.CurrentPeriod()
	user, err := g.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, RepairNone, nil
	}
	if err != nil {
		return false, RepairNone, fmt.Errorf("получение профиля: %w", err)
	}

	check, err := g.ValidatePointer(ctx, user, period)
	if err != nil {
		return false, RepairNone, err
	}
	if check.Valid {
		return true, RepairNone, nil
	}

	action := RepairNone
	if check.Stale {
		action = RepairCleared
		if err := g.users.SetCurrentPost(ctx, userID, nil); err != nil {
			g.log.Warn().Err(err).Str("user", userID).Msg("posting: не удалось сбросить устаревший указатель")
		} else {
			metrics.ObservePointerRepair(RepairCleared)
		}
	}

	post, found, err := g.posts.FindUserPostInRange(ctx, userID, period.Start, period.End)
	if err != nil {
		return false, action, fmt.Errorf("поиск поста за период: %w", err)
	}
	if !found {
		return false, action, nil
	}

	if err := g.users.SetCurrentPost(ctx, userID, period.Pointer(post.ID, g.now())); err != nil {
		g.log.Warn().Err(err).Str("user", userID).Msg("posting: не удалось восстановить указатель")
		return true, action, nil
	}
	metrics.ObservePointerRepair(RepairRestored)
	return true, RepairRestored, nil
}
