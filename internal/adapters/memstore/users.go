package memstore

import (
	"context"
	"sort"

	"relink/internal/domain"
)

func cloneUser(u *domain.User) domain.User {
	out := *u
	out.Connections = cloneStrings(u.Connections)
	out.PendingRequests = cloneStrings(u.PendingRequests)
	out.SentRequests = cloneStrings(u.SentRequests)
	if u.CurrentPost != nil {
		p := *u.CurrentPost
		out.CurrentPost = &p
	}
	return out
}

// GetUser реализует domain.UserRepo.
func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetUsers возвращает найденные профили в порядке ids, пропуская отсутствующие.
func (s *Store) GetUsers(_ context.Context, ids []string) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

// EnsureUser реализует domain.UserRepo.
func (s *Store) EnsureUser(_ context.Context, user domain.User) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; ok {
		return cloneUser(existing), false, nil
	}
	now := s.now()
	u := &domain.User{
		ID:              user.ID,
		Email:           user.Email,
		DisplayName:     user.DisplayName,
		PhotoURL:        user.PhotoURL,
		Bio:             user.Bio,
		Connections:     []string{},
		PendingRequests: []string{},
		SentRequests:    []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.users[u.ID] = u
	return cloneUser(u), true, nil
}

// UpdateProfile реализует domain.UserRepo.
func (s *Store) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u, ok := s.users[id]
	if !ok {
		u = &domain.User{ID: id, Connections: []string{}, PendingRequests: []string{}, SentRequests: []string{}, CreatedAt: now}
		s.users[id] = u
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.DisplayName != nil {
		u.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		u.PhotoURL = *update.PhotoURL
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	u.UpdatedAt = now
	return cloneUser(u), nil
}

// SetCurrentPost реализует domain.UserRepo.
func (s *Store) SetCurrentPost(_ context.Context, userID string, pointer *domain.PeriodPointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if pointer == nil {
		u.CurrentPost = nil
	} else {
		p := *pointer
		u.CurrentPost = &p
	}
	u.UpdatedAt = s.now()
	return nil
}

// SetUserConnections перезаписывает три списка связей профиля.
func (s *Store) SetUserConnections(_ context.Context, userID string, conns domain.UserConnections) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Connections = cloneStrings(conns.Connections)
	u.PendingRequests = cloneStrings(conns.PendingRequests)
	u.SentRequests = cloneStrings(conns.SentRequests)
	u.UpdatedAt = s.now()
	return nil
}

// DeleteUser удаляет профиль вместе с постами, связями и ссылками пользователя.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, id)
	for pid, p := range s.posts {
		if p.UserID == id {
			delete(s.posts, pid)
		}
	}
	for cid, c := range s.connections {
		if c.Involves(id) {
			delete(s.connections, cid)
		}
	}
	for lid, l := range s.links {
		if l.UserID == id {
			delete(s.links, lid)
		}
	}
	for _, u := range s.users {
		u.Connections = remove(u.Connections, id)
		u.PendingRequests = remove(u.PendingRequests, id)
		u.SentRequests = remove(u.SentRequests, id)
	}
	return nil
}

// ListUserIDs реализует domain.UserRepo.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
