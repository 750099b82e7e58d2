package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"relink/internal/domain"
)

// SaveLink реализует domain.LinkRepo.
func (s *Store) SaveLink(_ context.Context, link domain.VaultLink) (domain.VaultLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[link.UserID]; !ok {
		return domain.VaultLink{}, domain.ErrUserNotFound
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = s.now()
	stored := link
	s.links[link.ID] = &stored
	return stored, nil
}

// GetLink реализует domain.LinkRepo.
func (s *Store) GetLink(_ context.Context, id string) (domain.VaultLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return domain.VaultLink{}, domain.ErrLinkNotFound
	}
	return *l, nil
}

// ListLinks реализует domain.LinkRepo.
func (s *Store) ListLinks(_ context.Context, userID string, since time.Time) ([]domain.VaultLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.VaultLink
	for _, l := range s.links {
		if l.UserID != userID {
			continue
		}
		if !since.IsZero() && l.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UpdateLink перезаписывает изменяемые поля ссылки.
func (s *Store) UpdateLink(_ context.Context, link domain.VaultLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[link.ID]
	if !ok {
		return domain.ErrLinkNotFound
	}
	l.URL = link.URL
	l.Title = link.Title
	l.Description = link.Description
	l.Image = link.Image
	l.Comment = link.Comment
	l.IsRead = link.IsRead
	return nil
}

// DeleteLink реализует domain.LinkRepo.
func (s *Store) DeleteLink(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[id]; !ok {
		return domain.ErrLinkNotFound
	}
	delete(s.links, id)
	return nil
}

// RecordActivity реализует domain.ActivityRepo.
func (s *Store) RecordActivity(_ context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activitySeq++
	activity.ID = s.activitySeq
	if activity.Timestamp.IsZero() {
		activity.Timestamp = s.now()
	}
	s.activities = append(s.activities, activity)
	return nil
}

// ListActivity возвращает последние записи журнала пользователя.
func (s *Store) ListActivity(_ context.Context, userID string, limit int) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activity
	for i := len(s.activities) - 1; i >= 0; i-- {
		a := s.activities[i]
		if a.UserID != userID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// DeleteUserActivity реализует domain.ActivityRepo.
func (s *Store) DeleteUserActivity(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.activities[:0]
	for _, a := range s.activities {
		if a.UserID != userID {
			kept = append(kept, a)
		}
	}
	s.activities = kept
	return nil
}
