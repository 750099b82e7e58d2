// Package connections управляет заявками в друзья и списками друзей.
package connections

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"relink/internal/domain"
)

// Service реализует жизненный цикл связи: none → pending → accepted или pending → none.
type Service struct {
	conns  domain.ConnectionRepo
	users  domain.UserRepo
	events domain.EventPublisher
	now    domain.Clock
	log    zerolog.Logger
}

// NewService создаёт сервис связей.
func NewService(conns domain.ConnectionRepo, users domain.UserRepo, events domain.EventPublisher, now domain.Clock, logger zerolog.Logger) *Service {
	return &Service{conns: conns, users: users, events: events, now: now, log: logger}
}

// SendRequest отправляет заявку от senderID к receiverID.
func (s *Service) SendRequest(ctx context.Context, senderID, receiverID string) (domain.Connection, error) {
	if senderID == receiverID {
		return domain.Connection{}, domain.ErrSelfConnection
	}
	conn, err := s.conns.CreateRequest(ctx, senderID, receiverID)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("создание заявки: %w", err)
	}
	s.log.Info().Str("sender", senderID).Str("receiver", receiverID).Msg("connections: заявка отправлена")
	return conn, nil
}

// Accept принимает заявку requesterID. После успеха оба профиля содержат друг друга в connections.
func (s *Service) Accept(ctx context.Context, userID, requesterID string) (domain.Connection, error) {
	conn, err := s.conns.AcceptRequest(ctx, userID, requesterID)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("принятие заявки: %w", err)
	}
	if s.events != nil {
		event := domain.Event{
			ID:         uuid.NewString(),
			Type:       domain.EventConnectionAccepted,
			UserID:     userID,
			PeerID:     requesterID,
			OccurredAt: s.now(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("user", userID).Msg("connections: не удалось опубликовать событие")
		}
	}
	s.log.Info().Str("user", userID).Str("peer", requesterID).Msg("connections: заявка принята")
	return conn, nil
}

// Reject отклоняет заявку; запись связи удаляется.
func (s *Service) Reject(ctx context.Context, userID, requesterID string) error {
	if err := s.conns.RejectRequest(ctx, userID, requesterID); err != nil {
		return fmt.Errorf("отклонение заявки: %w", err)
	}
	return nil
}

// FriendshipStatus возвращает состояние отношений userID к targetID.
func (s *Service) FriendshipStatus(ctx context.Context, userID, targetID string) (domain.FriendshipStatus, error) {
	if userID == targetID {
		return domain.FriendshipNone, nil
	}
	conn, found, err := s.conns.FindBetween(ctx, userID, targetID)
	if err != nil {
		return "", fmt.Errorf("поиск связи: %w", err)
	}
	if !found {
		return domain.FriendshipNone, nil
	}
	if conn.Status == domain.ConnectionAccepted {
		return domain.FriendshipFriends, nil
	}
	return domain.FriendshipPending, nil
}

// ListFriends возвращает публичные профили друзей.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]domain.PublicProfile, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение профиля: %w", err)
	}
	return s.profiles(ctx, user.Connections)
}

// ListPendingRequests возвращает профили тех, кто ждёт ответа пользователя.
func (s *Service) ListPendingRequests(ctx context.Context, userID string) ([]domain.PublicProfile, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение профиля: %w", err)
	}
	return s.profiles(ctx, user.PendingRequests)
}

func (s *Service) profiles(ctx context.Context, ids []string) ([]domain.PublicProfile, error) {
	out := make([]domain.PublicProfile, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("получение профилей: %w", err)
	}
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}
