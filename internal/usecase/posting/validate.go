package posting

import (
	"strings"

	"relink/internal/domain"
)

// NewPost описывает ввод пользователя при публикации.
type NewPost struct {
	Type         domain.PostType    `json:"type"`
	Link         *domain.LinkEntry  `json:"link,omitempty"`
	MonthlyLinks []domain.LinkEntry `json:"monthlyLinks,omitempty"`
}

// Validate проверяет ввод и возвращает нормализованную копию. Ничего не пишет.
func (in NewPost) Validate() (NewPost, error) {
	kind := in.Type
	if kind == "" {
		kind = domain.PostTypeSingle
		if len(in.MonthlyLinks) > 0 {
			kind = domain.PostTypeMonthly
		}
	}
	switch kind {
	case domain.PostTypeSingle:
		if in.Link == nil {
			return NewPost{}, domain.ErrInvalidURL
		}
		entry, err := normalizeEntry(*in.Link)
		if err != nil {
			return NewPost{}, err
		}
		return NewPost{Type: kind, Link: &entry}, nil
	case domain.PostTypeMonthly:
		if len(in.MonthlyLinks) != domain.MonthlyLinkCount {
			return NewPost{}, domain.ErrInvalidLinkCount
		}
		links := make([]domain.LinkEntry, 0, len(in.MonthlyLinks))
		for _, l := range in.MonthlyLinks {
			entry, err := normalizeEntry(l)
			if err != nil {
				return NewPost{}, err
			}
			links = append(links, entry)
		}
		return NewPost{Type: kind, MonthlyLinks: links}, nil
	}
	return NewPost{}, domain.ErrInvalidPostType
}

func normalizeEntry(l domain.LinkEntry) (domain.LinkEntry, error) {
	u, err := domain.NormalizeURL(l.URL)
	if err != nil {
		return domain.LinkEntry{}, err
	}
	out := domain.LinkEntry{
		URL:         u,
		Title:       strings.TrimSpace(l.Title),
		Description: strings.TrimSpace(l.Description),
		Comment:     strings.TrimSpace(l.Comment),
	}
	if out.Title == "" {
		out.Title = domain.Hostname(u)
	}
	return out, nil
}
