// Package posting реализует публикацию ReLink: гейт периода, создание, удаление, лайки и комментарии.
package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

// Status описывает состояние пользователя в текущем периоде.
type Status struct {
	Posted      bool   `json:"posted"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
	Label       string `json:"label"`
}

// Service управляет постами.
type Service struct {
	posts       domain.PostRepo
	users       domain.UserRepo
	gate        *Gate
	invalidator domain.FeedInvalidator
	events      domain.EventPublisher
	log         zerolog.Logger
}

// NewService создаёт сервис публикаций.
func NewService(posts domain.PostRepo, users domain.UserRepo, gate *Gate, invalidator domain.FeedInvalidator, events domain.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{posts: posts, users: users, gate: gate, invalidator: invalidator, events: events, log: logger}
}

// CreatePost публикует ReLink автора за текущий период.
func (s *Service) CreatePost(ctx context.Context, userID string, input NewPost) (domain.Post, error) {
	valid, err := input.Validate()
	if err != nil {
		return domain.Post{}, err
	}
	posted, err := s.gate.HasPostedThisPeriod(ctx, userID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("проверка периода: %w", err)
	}
	if posted {
		return domain.Post{}, domain.ErrAlreadyPosted
	}

	// время создания и период берутся с одних часов, иначе пост на границе попадёт в соседний период
	now := s.gate.now()
	period := s.gate.calendar.At(now)
	post, err := s.posts.CreatePost(ctx, domain.Post{
		UserID:       userID,
		Type:         valid.Type,
		Link:         valid.Link,
		MonthlyLinks: valid.MonthlyLinks,
		Title:        period.PostTitle(),
		PeriodStart:  period.Start,
		PeriodLabel:  period.Label,
		Year:         period.Year,
		Likes:        []string{},
		Comments:     []domain.Comment{},
		CreatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyPosted) {
			return domain.Post{}, err
		}
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}

	if err := s.users.SetCurrentPost(ctx, userID, period.Pointer(post.ID, now)); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Str("post", post.ID).Msg("posting: не удалось записать указатель периода")
	}
	s.invalidator.InvalidateAuthor(ctx, userID)
	metrics.PostsCreated.Inc()
	s.publish(ctx, domain.Event{Type: domain.EventPostCreated, UserID: userID, PostID: post.ID})
	s.log.Info().Str("user", userID).Str("post", post.ID).Str("period", period.Label).Msg("posting: опубликован ReLink")
	return post, nil
}

// DeletePost мягко удаляет пост автора и сообщает, остался ли автор без поста в текущем периоде.
func (s *Service) DeletePost(ctx context.Context, postID, requesterID string) (bool, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}
	if post.Deleted {
		return false, domain.ErrPostNotFound
	}
	if post.UserID != requesterID {
		return false, domain.ErrForbidden
	}
	if err := s.posts.SoftDeletePost(ctx, postID); err != nil {
		return false, fmt.Errorf("удаление поста: %w", err)
	}
	metrics.PostsDeleted.WithLabelValues("soft").Inc()

	s.clearPointerIf(ctx, post.UserID, postID)
	s.invalidator.InvalidateAuthor(ctx, post.UserID)
	s.publish(ctx, domain.Event{Type: domain.EventPostDeleted, UserID: post.UserID, PostID: postID})

	period := s.gate.CurrentPeriod()
	left, err := s.posts.CountUserPostsInRange(ctx, post.UserID, period.Start, period.End)
	if err != nil {
		// пост уже удалён, поэтому ошибка подсчёта не возвращается вызывающему
		s.log.Warn().Err(err).Str("user", post.UserID).Str("post", postID).Msg("posting: не удалось пересчитать посты периода")
		posted, gateErr := s.gate.HasPostedThisPeriod(ctx, post.UserID)
		if gateErr != nil {
			s.log.Warn().Err(gateErr).Str("user", post.UserID).Msg("posting: статус периода неизвестен, считаем ленту заблокированной")
			return true, nil
		}
		return !posted, nil
	}
	return left == 0, nil
}

// ToggleLike ставит или снимает лайк и возвращает новое состояние.
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	post, err := s.livePost(ctx, postID)
	if err != nil {
		return false, err
	}
	liked, err := s.posts.ToggleLike(ctx, postID, userID)
	if err != nil {
		return false, err
	}
	s.invalidator.InvalidateAuthor(ctx, post.UserID)
	s.publish(ctx, domain.Event{Type: domain.EventPostUpdated, UserID: post.UserID, PeerID: userID, PostID: postID})
	return liked, nil
}

// AddComment добавляет комментарий к посту.
func (s *Service) AddComment(ctx context.Context, postID, userID, text string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, domain.ErrEmptyComment
	}
	post, err := s.livePost(ctx, postID)
	if err != nil {
		return domain.Comment{}, err
	}
	comment := domain.Comment{
		ID:        uuid.NewString(),
		Text:      text,
		UserID:    userID,
		CreatedAt: s.gate.now(),
	}
	if err := s.posts.AppendComment(ctx, postID, comment); err != nil {
		return domain.Comment{}, err
	}
	s.invalidator.InvalidateAuthor(ctx, post.UserID)
	s.publish(ctx, domain.Event{Type: domain.EventPostUpdated, UserID: post.UserID, PeerID: userID, PostID: postID})
	return comment, nil
}

// DeleteComment удаляет комментарий. Разрешено автору комментария и автору поста.
func (s *Service) DeleteComment(ctx context.Context, postID, commentID, userID string) error {
	post, err := s.livePost(ctx, postID)
	if err != nil {
		return err
	}
	comment, ok := post.FindComment(commentID)
	if !ok {
		return domain.ErrCommentNotFound
	}
	if comment.UserID != userID && post.UserID != userID {
		return domain.ErrForbidden
	}
	if err := s.posts.RemoveComment(ctx, postID, commentID); err != nil {
		return err
	}
	s.invalidator.InvalidateAuthor(ctx, post.UserID)
	return nil
}

// ListUserPosts возвращает неудалённые посты пользователя.
func (s *Service) ListUserPosts(ctx context.Context, userID string) ([]domain.Post, error) {
	posts, err := s.posts.ListUserPosts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("посты пользователя: %w", err)
	}
	return posts, nil
}

// PeriodStatus возвращает данные для баннера блокировки ленты.
func (s *Service) PeriodStatus(ctx context.Context, userID string) (Status, error) {
	period := s.gate.CurrentPeriod()
	posted, err := s.gate.HasPostedThisPeriod(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Posted:      posted,
		PeriodStart: period.Start.Format(time.RFC3339),
		PeriodEnd:   period.End.Format(time.RFC3339),
		Label:       period.Label,
	}, nil
}

func (s *Service) livePost(ctx context.Context, postID string) (domain.Post, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return domain.Post{}, err
	}
	if post.Deleted {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return post, nil
}

func (s *Service) clearPointerIf(ctx context.Context, userID, postID string) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("posting: не удалось прочитать профиль для сброса указателя")
		return
	}
	if user.CurrentPost == nil || user.CurrentPost.PostID != postID {
		return
	}
	if err := s.users.SetCurrentPost(ctx, userID, nil); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("posting: не удалось сбросить указатель")
	}
}

func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.gate.now()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("type", string(event.Type)).Str("user", event.UserID).Msg("posting: не удалось опубликовать событие")
	}
}
