// Package vault управляет личным хранилищем ссылок пользователя.
package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"mvdan.cc/xurls/v2"

	"relink/internal/domain"
)

// PeriodSource сообщает текущий период публикации.
type PeriodSource interface {
	CurrentPeriod() domain.Period
}

// NewLink: ввод при сохранении ссылки.
type NewLink struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// LinkUpdate: изменяемые поля ссылки; nil означает «не менять».
type LinkUpdate struct {
	Comment *string `json:"comment,omitempty"`
	IsRead  *bool   `json:"isRead,omitempty"`
}

// Service реализует операции хранилища ссылок.
type Service struct {
	links    domain.LinkRepo
	fetcher  domain.MetadataFetcher
	enricher *Enricher
	period   PeriodSource
	events   domain.EventPublisher
	now      domain.Clock
	log      zerolog.Logger
}

// NewService создаёт сервис. nil fetcher означает «только hostname».
func NewService(links domain.LinkRepo, fetcher domain.MetadataFetcher, period PeriodSource, events domain.EventPublisher, now domain.Clock, logger zerolog.Logger) *Service {
	return &Service{
		links:    links,
		fetcher:  fetcher,
		enricher: NewEnricher(links, fetcher, logger),
		period:   period,
		events:   events,
		now:      now,
		log:      logger,
	}
}

// SaveLink сохраняет ссылку с превью. Ошибка получения превью не мешает сохранению.
func (s *Service) SaveLink(ctx context.Context, userID string, in NewLink) (domain.VaultLink, error) {
	u, err := domain.NormalizeURL(in.URL)
	if err != nil {
		return domain.VaultLink{}, err
	}
	meta := s.lookup(ctx, u)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = meta.Title
	}
	link, err := s.links.SaveLink(ctx, domain.VaultLink{
		UserID:      userID,
		URL:         u,
		Title:       title,
		Description: meta.Description,
		Image:       meta.Image,
		Comment:     strings.TrimSpace(in.Comment),
	})
	if err != nil {
		return domain.VaultLink{}, fmt.Errorf("сохранение ссылки: %w", err)
	}
	s.publish(ctx, link)
	return link, nil
}

// QuickSave сохраняет ссылку без превью; воркер дополнит её по событию link.saved.
func (s *Service) QuickSave(ctx context.Context, userID, rawURL string) (domain.VaultLink, error) {
	u, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return domain.VaultLink{}, err
	}
	link, err := s.links.SaveLink(ctx, domain.VaultLink{UserID: userID, URL: u, Title: u})
	if err != nil {
		return domain.VaultLink{}, fmt.Errorf("сохранение ссылки: %w", err)
	}
	s.publish(ctx, link)
	return link, nil
}

// ImportText находит все http(s)-ссылки в тексте и быстро сохраняет каждую уникальную.
func (s *Service) ImportText(ctx context.Context, userID, text string) ([]domain.VaultLink, error) {
	seen := make(map[string]struct{})
	saved := []domain.VaultLink{}
	for _, found := range xurls.Strict().FindAllString(text, -1) {
		u, err := domain.NormalizeURL(found)
		if err != nil {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		link, err := s.QuickSave(ctx, userID, u)
		if err != nil {
			return saved, err
		}
		saved = append(saved, link)
	}
	return saved, nil
}

// ListLinks возвращает ссылки пользователя от новых к старым.
func (s *Service) ListLinks(ctx context.Context, userID string) ([]domain.VaultLink, error) {
	links, err := s.links.ListLinks(ctx, userID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("список ссылок: %w", err)
	}
	if links == nil {
		links = []domain.VaultLink{}
	}
	return links, nil
}

// UpdateLink меняет комментарий или отметку о прочтении. Только владелец.
func (s *Service) UpdateLink(ctx context.Context, linkID, userID string, update LinkUpdate) (domain.VaultLink, error) {
	link, err := s.owned(ctx, linkID, userID)
	if err != nil {
		return domain.VaultLink{}, err
	}
	if update.Comment != nil {
		link.Comment = strings.TrimSpace(*update.Comment)
	}
	if update.IsRead != nil {
		link.IsRead = *update.IsRead
	}
	if err := s.links.UpdateLink(ctx, link); err != nil {
		return domain.VaultLink{}, fmt.Errorf("обновление ссылки: %w", err)
	}
	return link, nil
}

// DeleteLink удаляет ссылку. Только владелец.
func (s *Service) DeleteLink(ctx context.Context, linkID, userID string) error {
	if _, err := s.owned(ctx, linkID, userID); err != nil {
		return err
	}
	if err := s.links.DeleteLink(ctx, linkID); err != nil {
		return fmt.Errorf("удаление ссылки: %w", err)
	}
	return nil
}

// CurateCandidates возвращает ссылки текущего периода без дублей по URL, новые сверху.
// Из них пользователь собирает подборку.
func (s *Service) CurateCandidates(ctx context.Context, userID string) ([]domain.VaultLink, error) {
	period := s.period.CurrentPeriod()
	links, err := s.links.ListLinks(ctx, userID, period.Start)
	if err != nil {
		return nil, fmt.Errorf("ссылки за период: %w", err)
	}
	seen := make(map[string]struct{}, len(links))
	out := make([]domain.VaultLink, 0, len(links))
	for _, l := range links {
		if !period.Contains(l.CreatedAt) {
			continue
		}
		if _, dup := seen[l.URL]; dup {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out, nil
}

// EnrichLink дополняет превью ссылки, сохранённой через QuickSave.
func (s *Service) EnrichLink(ctx context.Context, linkID string) (bool, error) {
	return s.enricher.EnrichLink(ctx, linkID)
}

func (s *Service) owned(ctx context.Context, linkID, userID string) (domain.VaultLink, error) {
	link, err := s.links.GetLink(ctx, linkID)
	if err != nil {
		return domain.VaultLink{}, err
	}
	if link.UserID != userID {
		return domain.VaultLink{}, domain.ErrForbidden
	}
	return link, nil
}

func (s *Service) lookup(ctx context.Context, rawURL string) domain.LinkMetadata {
	if s.fetcher == nil {
		return domain.LinkMetadata{Title: domain.Hostname(rawURL), URL: rawURL}
	}
	meta, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		s.log.Warn().Err(err).Str("url", rawURL).Msg("vault: превью недоступно, используем hostname")
		return domain.LinkMetadata{Title: domain.Hostname(rawURL), URL: rawURL}
	}
	if meta.Title == "" {
		meta.Title = domain.Hostname(rawURL)
	}
	return meta
}

func (s *Service) publish(ctx context.Context, link domain.VaultLink) {
	if s.events == nil {
		return
	}
	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventLinkSaved,
		UserID:     link.UserID,
		LinkID:     link.ID,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("link", link.ID).Msg("vault: не удалось опубликовать событие")
	}
}
