// Package profile управляет профилями пользователей и журналом их действий.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"relink/internal/domain"
)

// Identity: данные пользователя из токена провайдера идентификации.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Update: изменяемые пользователем поля профиля.
type Update struct {
	DisplayName *string `json:"displayName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

// Service реализует операции с профилем.
type Service struct {
	users       domain.UserRepo
	activities  domain.ActivityRepo
	invalidator domain.FeedInvalidator
	now         domain.Clock
	log         zerolog.Logger
}

// NewService создаёт сервис профилей. invalidator может быть nil.
func NewService(users domain.UserRepo, activities domain.ActivityRepo, invalidator domain.FeedInvalidator, now domain.Clock, logger zerolog.Logger) *Service {
	return &Service{users: users, activities: activities, invalidator: invalidator, now: now, log: logger}
}

// EnsureProfile создаёт профиль при первом входе. Повторный вызов ничего не меняет.
func (s *Service) EnsureProfile(ctx context.Context, id Identity) (domain.User, error) {
	user, created, err := s.users.EnsureUser(ctx, domain.User{ID: id.UserID, Email: id.Email, DisplayName: id.Name})
	if err != nil {
		return domain.User{}, fmt.Errorf("создание профиля: %w", err)
	}
	if created {
		s.LogActivity(ctx, id.UserID, domain.ActivityProfileCreated, nil)
		s.log.Info().Str("user", id.UserID).Msg("profile: создан профиль")
	}
	return user, nil
}

// GetProfile возвращает профиль целиком.
func (s *Service) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUser(ctx, userID)
}

// UpdateProfile меняет поля профиля, создавая его при отсутствии.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update Update) (domain.User, error) {
	if update.PhotoURL != nil && strings.TrimSpace(*update.PhotoURL) != "" {
		normalized, err := domain.NormalizeURL(*update.PhotoURL)
		if err != nil {
			return domain.User{}, err
		}
		update.PhotoURL = &normalized
	}
	user, err := s.users.UpdateProfile(ctx, userID, domain.ProfileUpdate{
		DisplayName: trimmed(update.DisplayName),
		Bio:         trimmed(update.Bio),
		PhotoURL:    trimmed(update.PhotoURL),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("обновление профиля: %w", err)
	}
	s.LogActivity(ctx, userID, domain.ActivityProfileUpdated, changedFields(update))
	return user, nil
}

// GetPublicProfile возвращает публичную часть профиля.
func (s *Service) GetPublicProfile(ctx context.Context, userID string) (domain.PublicProfile, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.PublicProfile{}, err
	}
	return user.Public(), nil
}

// DeleteProfile удаляет профиль вместе с постами, связями, ссылками и журналом.
func (s *Service) DeleteProfile(ctx context.Context, userID string) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("удаление профиля: %w", err)
	}
	if err := s.activities.DeleteUserActivity(ctx, userID); err != nil {
		return fmt.Errorf("удаление журнала: %w", err)
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateAuthor(ctx, userID)
	}
	s.log.Info().Str("user", userID).Msg("profile: профиль удалён")
	return nil
}

// LogActivity пишет запись в журнал. Ошибки только логируются.
func (s *Service) LogActivity(ctx context.Context, userID, action string, details map[string]any) {
	err := s.activities.RecordActivity(ctx, domain.Activity{
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user", userID).Str("action", action).Msg("profile: не удалось записать действие")
	}
}

// GetActivity возвращает последние действия; limit <= 0 означает значение по умолчанию.
func (s *Service) GetActivity(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = domain.DefaultActivityLimit
	}
	items, err := s.activities.ListActivity(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("журнал действий: %w", err)
	}
	if items == nil {
		items = []domain.Activity{}
	}
	return items, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func changedFields(u Update) map[string]any {
	var fields []string
	if u.DisplayName != nil {
		fields = append(fields, "displayName")
	}
	if u.Bio != nil {
		fields = append(fields, "bio")
	}
	if u.PhotoURL != nil {
		fields = append(fields, "photoURL")
	}
	return map[string]any{"fields": fields}
}
