package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"relink/internal/domain"
)

func (s *Store) findBetweenLocked(a, b string) *domain.Connection {
	for _, c := range s.connections {
		if (c.SenderID == a && c.ReceiverID == b) || (c.SenderID == b && c.ReceiverID == a) {
			return c
		}
	}
	return nil
}

// CreateRequest создаёт заявку и обновляет списки обоих профилей за один шаг.
func (s *Store) CreateRequest(_ context.Context, senderID, receiverID string) (domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if senderID == receiverID {
		return domain.Connection{}, domain.ErrSelfConnection
	}
	sender, ok := s.users[senderID]
	if !ok {
		return domain.Connection{}, domain.ErrUserNotFound
	}
	receiver, ok := s.users[receiverID]
	if !ok {
		return domain.Connection{}, domain.ErrUserNotFound
	}
	if existing := s.findBetweenLocked(senderID, receiverID); existing != nil {
		if existing.Status == domain.ConnectionAccepted {
			return domain.Connection{}, domain.ErrAlreadyConnected
		}
		return domain.Connection{}, domain.ErrRequestExists
	}
	now := s.now()
	conn := &domain.Connection{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     domain.ConnectionPending,
		CreatedAt:  now,
	}
	s.connections[conn.ID] = conn
	sender.SentRequests = addUnique(sender.SentRequests, receiverID)
	receiver.PendingRequests = addUnique(receiver.PendingRequests, senderID)
	sender.UpdatedAt, receiver.UpdatedAt = now, now
	return *conn, nil
}

// AcceptRequest принимает входящую заявку requesterID к userID.
func (s *Store) AcceptRequest(_ context.Context, userID, requesterID string) (domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.findBetweenLocked(userID, requesterID)
	if conn == nil || conn.Status != domain.ConnectionPending || conn.ReceiverID != userID {
		return domain.Connection{}, domain.ErrRequestNotFound
	}
	user, ok := s.users[userID]
	if !ok {
		return domain.Connection{}, domain.ErrUserNotFound
	}
	requester, ok := s.users[requesterID]
	if !ok {
		return domain.Connection{}, domain.ErrUserNotFound
	}
	now := s.now()
	conn.Status = domain.ConnectionAccepted
	conn.AcceptedAt = &now
	user.Connections = addUnique(user.Connections, requesterID)
	user.PendingRequests = remove(user.PendingRequests, requesterID)
	requester.Connections = addUnique(requester.Connections, userID)
	requester.SentRequests = remove(requester.SentRequests, userID)
	user.UpdatedAt, requester.UpdatedAt = now, now
	return *conn, nil
}

// RejectRequest удаляет входящую заявку и чистит списки обоих профилей.
func (s *Store) RejectRequest(_ context.Context, userID, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.findBetweenLocked(userID, requesterID)
	if conn == nil || conn.Status != domain.ConnectionPending || conn.ReceiverID != userID {
		return domain.ErrRequestNotFound
	}
	delete(s.connections, conn.ID)
	now := s.now()
	if user, ok := s.users[userID]; ok {
		user.PendingRequests = remove(user.PendingRequests, requesterID)
		user.UpdatedAt = now
	}
	if requester, ok := s.users[requesterID]; ok {
		requester.SentRequests = remove(requester.SentRequests, userID)
		requester.UpdatedAt = now
	}
	return nil
}

// FindBetween реализует domain.ConnectionRepo.
func (s *Store) FindBetween(_ context.Context, a, b string) (domain.Connection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findBetweenLocked(a, b); c != nil {
		return *c, true, nil
	}
	return domain.Connection{}, false, nil
}

// ListConnections возвращает все записи связей пользователя от старых к новым.
func (s *Store) ListConnections(_ context.Context, userID string) ([]domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Connection
	for _, c := range s.connections {
		if c.Involves(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CorruptUserConnections перезаписывает списки профиля в обход записей связей.
// Нужна тестам согласования, чтобы смоделировать частичную запись.
func (s *Store) CorruptUserConnections(userID string, conns domain.UserConnections) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Connections = cloneStrings(conns.Connections)
		u.PendingRequests = cloneStrings(conns.PendingRequests)
		u.SentRequests = cloneStrings(conns.SentRequests)
	}
}
