// Package reconcile приводит денормализованные данные профилей в соответствие с источниками истины.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

// PointerRepairer проверяет и чинит указатель текущего поста одного пользователя.
type PointerRepairer interface {
	Repair(ctx context.Context, userID string) (string, error)
}

// Report: итог прохода согласования.
type Report struct {
	Users    int            `json:"users"`
	Fixes    map[string]int `json:"fixes"`
	Failures int            `json:"failures"`
}

func newReport() Report {
	return Report{Fixes: map[string]int{}}
}

func (r *Report) fix(kind string) {
	r.Fixes[kind]++
	metrics.ReconcileFixes.WithLabelValues(kind).Inc()
}

// Service выполняет проходы согласования.
type Service struct {
	users    domain.UserRepo
	conns    domain.ConnectionRepo
	pointers PointerRepairer
	log      zerolog.Logger
}

// NewService создаёт сервис согласования.
func NewService(users domain.UserRepo, conns domain.ConnectionRepo, pointers PointerRepairer, logger zerolog.Logger) *Service {
	return &Service{users: users, conns: conns, pointers: pointers, log: logger}
}

// ReconcilePointers прогоняет проверку указателя для каждого пользователя:
// устаревшие указатели сбрасываются, отсутствующие восстанавливаются.
func (s *Service) ReconcilePointers(ctx context.Context) (Report, error) {
	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("список пользователей: %w", err)
	}
	report := newReport()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Users++
		action, err := s.pointers.Repair(ctx, id)
		if err != nil {
			report.Failures++
			s.log.Error().Err(err).Str("user", id).Msg("reconcile: не удалось проверить указатель")
			continue
		}
		if action != "" {
			report.fix("pointer_" + action)
		}
	}
	s.log.Info().Int("users", report.Users).Interface("fixes", report.Fixes).Int("failures", report.Failures).Msg("reconcile: указатели проверены")
	return report, nil
}

// ReconcileConnections пересобирает списки связей каждого профиля из записей связей.
func (s *Service) ReconcileConnections(ctx context.Context) (Report, error) {
	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("список пользователей: %w", err)
	}
	report := newReport()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Users++
		fixed, err := s.reconcileUser(ctx, id)
		if err != nil {
			report.Failures++
			s.log.Error().Err(err).Str("user", id).Msg("reconcile: не удалось сверить связи")
			continue
		}
		if fixed {
			report.fix("connections")
		}
	}
	s.log.Info().Int("users", report.Users).Interface("fixes", report.Fixes).Int("failures", report.Failures).Msg("reconcile: связи сверены")
	return report, nil
}

func (s *Service) reconcileUser(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("получение профиля: %w", err)
	}
	records, err := s.conns.ListConnections(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("записи связей: %w", err)
	}
	want := Expected(userID, records)
	if sameSet(user.Connections, want.Connections) &&
		sameSet(user.PendingRequests, want.PendingRequests) &&
		sameSet(user.SentRequests, want.SentRequests) {
		return false, nil
	}
	if err := s.users.SetUserConnections(ctx, userID, want); err != nil {
		return false, fmt.Errorf("запись связей: %w", err)
	}
	s.log.Warn().Str("user", userID).Msg("reconcile: списки связей расходились с записями и пересобраны")
	return true, nil
}

// Expected строит три списка профиля по записям связей пользователя.
func Expected(userID string, records []domain.Connection) domain.UserConnections {
	out := domain.UserConnections{Connections: []string{}, PendingRequests: []string{}, SentRequests: []string{}}
	for _, c := range records {
		if !c.Involves(userID) {
			continue
		}
		other := c.Other(userID)
		switch {
		case c.Status == domain.ConnectionAccepted:
			out.Connections = append(out.Connections, other)
		case c.ReceiverID == userID:
			out.PendingRequests = append(out.PendingRequests, other)
		default:
			out.SentRequests = append(out.SentRequests, other)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
