package posting

import (
	"context"
	"fmt"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const adminListLimit = 500

// ListAllPosts возвращает все посты, включая удалённые.
func (s *Service) ListAllPosts(ctx context.Context) ([]domain.Post, error) {
	posts, err := s.posts.ListAllPosts(ctx, adminListLimit)
	if err != nil {
		return nil, fmt.Errorf("список постов: %w", err)
	}
	return posts, nil
}

// AdminDeletePost удаляет пост без возможности восстановления.
func (s *Service) AdminDeletePost(ctx context.Context, postID string) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if err := s.posts.HardDeletePost(ctx, postID); err != nil {
		return fmt.Errorf("удаление поста: %w", err)
	}
	metrics.PostsDeleted.WithLabelValues("hard").Inc()
	s.clearPointerIf(ctx, post.UserID, postID)
	s.invalidator.InvalidateAuthor(ctx, post.UserID)
	s.publish(ctx, domain.Event{Type: domain.EventPostDeleted, UserID: post.UserID, PostID: postID})
	return nil
}

// ResetUserPosts удаляет все посты пользователя и сбрасывает указатель.
func (s *Service) ResetUserPosts(ctx context.Context, userID string) (int, error) {
	n, err := s.posts.DeleteUserPosts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("удаление постов пользователя: %w", err)
	}
	metrics.PostsDeleted.WithLabelValues("hard").Add(float64(n))
	if err := s.users.SetCurrentPost(ctx, userID, nil); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("posting: не удалось сбросить указатель")
	}
	s.invalidator.InvalidateAuthor(ctx, userID)
	s.log.Info().Str("user", userID).Int("deleted", n).Msg("posting: посты пользователя сброшены")
	return n, nil
}

// PurgeAllPosts удаляет все посты и все указатели. Только для CLI.
func (s *Service) PurgeAllPosts(ctx context.Context) (int, error) {
	n, err := s.posts.DeleteAllPosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("удаление всех постов: %w", err)
	}
	metrics.PostsDeleted.WithLabelValues("hard").Add(float64(n))
	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return n, fmt.Errorf("список пользователей: %w", err)
	}
	for _, id := range ids {
		if err := s.users.SetCurrentPost(ctx, id, nil); err != nil {
			s.log.Warn().Err(err).Str("user", id).Msg("posting: не удалось сбросить указатель")
		}
		s.invalidator.InvalidateAuthor(ctx, id)
	}
	s.log.Info().Int("deleted", n).Msg("posting: все посты удалены")
	return n, nil
}
