package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"relink/internal/domain"
)

func clonePost(p *domain.Post) domain.Post {
	out := *p
	if p.Link != nil {
		l := *p.Link
		out.Link = &l
	}
	if p.MonthlyLinks != nil {
		out.MonthlyLinks = append([]domain.LinkEntry(nil), p.MonthlyLinks...)
	}
	out.Likes = cloneStrings(p.Likes)
	out.Comments = append([]domain.Comment{}, p.Comments...)
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

// newerFirst упорядочивает посты по (created_at, id) по убыванию.
func newerFirst(posts []domain.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}

// CreatePost реализует domain.PostRepo. Уникальность (автор, период) проверяется под мьютексом.
func (s *Store) CreatePost(_ context.Context, post domain.Post) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[post.UserID]; !ok {
		return domain.Post{}, domain.ErrUserNotFound
	}
	for _, p := range s.posts {
		if p.UserID == post.UserID && !p.Deleted && p.PeriodStart.Equal(post.PeriodStart) {
			return domain.Post{}, domain.ErrAlreadyPosted
		}
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = s.now()
	}
	post.Deleted = false
	post.DeletedAt = nil
	stored := clonePost(&post)
	s.posts[post.ID] = &stored
	return clonePost(&stored), nil
}

// GetPost реализует domain.PostRepo.
func (s *Store) GetPost(_ context.Context, id string) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return clonePost(p), nil
}

// FindUserPostInRange возвращает самый новый неудалённый пост автора в [from, to).
func (s *Store) FindUserPostInRange(_ context.Context, userID string, from, to time.Time) (domain.Post, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []domain.Post
	for _, p := range s.posts {
		if p.UserID == userID && !p.Deleted && !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) {
			found = append(found, clonePost(p))
		}
	}
	if len(found) == 0 {
		return domain.Post{}, false, nil
	}
	newerFirst(found)
	return found[0], true, nil
}

// CountUserPostsInRange реализует domain.PostRepo.
func (s *Store) CountUserPostsInRange(_ context.Context, userID string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.posts {
		if p.UserID == userID && !p.Deleted && !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// ListFeed реализует domain.PostRepo.
func (s *Store) ListFeed(_ context.Context, q domain.FeedQuery) ([]domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	authors := make(map[string]struct{}, len(q.UserIDs))
	for _, id := range q.UserIDs {
		authors[id] = struct{}{}
	}
	var out []domain.Post
	for _, p := range s.posts {
		if p.Deleted {
			continue
		}
		if _, ok := authors[p.UserID]; !ok {
			continue
		}
		if q.After != nil {
			if p.CreatedAt.After(q.After.CreatedAt) {
				continue
			}
			if p.CreatedAt.Equal(q.After.CreatedAt) && p.ID >= q.After.ID {
				continue
			}
		}
		out = append(out, clonePost(p))
	}
	newerFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ListUserPosts возвращает неудалённые посты автора от новых к старым.
func (s *Store) ListUserPosts(_ context.Context, userID string) ([]domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Post
	for _, p := range s.posts {
		if p.UserID == userID && !p.Deleted {
			out = append(out, clonePost(p))
		}
	}
	newerFirst(out)
	return out, nil
}

// ListAllPosts возвращает все посты, включая удалённые. limit <= 0 означает без ограничения.
func (s *Store) ListAllPosts(_ context.Context, limit int) ([]domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, clonePost(p))
	}
	newerFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SoftDeletePost реализует domain.PostRepo.
func (s *Store) SoftDeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.Deleted {
		return domain.ErrPostNotFound
	}
	now := s.now()
	p.Deleted = true
	p.DeletedAt = &now
	return nil
}

// HardDeletePost реализует domain.PostRepo.
func (s *Store) HardDeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return domain.ErrPostNotFound
	}
	delete(s.posts, id)
	return nil
}

// DeleteUserPosts реализует domain.PostRepo.
func (s *Store) DeleteUserPosts(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.posts {
		if p.UserID == userID {
			delete(s.posts, id)
			n++
		}
	}
	return n, nil
}

// DeleteAllPosts реализует domain.PostRepo.
func (s *Store) DeleteAllPosts(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.posts)
	s.posts = make(map[string]*domain.Post)
	return n, nil
}

// ToggleLike реализует domain.PostRepo.
func (s *Store) ToggleLike(_ context.Context, postID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok || p.Deleted {
		return false, domain.ErrPostNotFound
	}
	if p.LikedBy(userID) {
		p.Likes = remove(p.Likes, userID)
		return false, nil
	}
	p.Likes = append(p.Likes, userID)
	return true, nil
}

// AppendComment реализует domain.PostRepo.
func (s *Store) AppendComment(_ context.Context, postID string, comment domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok || p.Deleted {
		return domain.ErrPostNotFound
	}
	p.Comments = append(p.Comments, comment)
	return nil
}

// RemoveComment реализует domain.PostRepo.
func (s *Store) RemoveComment(_ context.Context, postID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok || p.Deleted {
		return domain.ErrPostNotFound
	}
	for i, c := range p.Comments {
		if c.ID == commentID {
			p.Comments = append(p.Comments[:i], p.Comments[i+1:]...)
			return nil
		}
	}
	return domain.ErrCommentNotFound
}
