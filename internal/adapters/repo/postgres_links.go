package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const linkColumns = `id::text, user_id, url, title, description, image, comment, is_read, created_at`

func scanLink(row pgx.Row) (domain.VaultLink, error) {
	var l domain.VaultLink
	err := row.Scan(&l.ID, &l.UserID, &l.URL, &l.Title, &l.Description, &l.Image, &l.Comment, &l.IsRead, &l.CreatedAt)
	return l, err
}

// SaveLink реализует domain.LinkRepo.
func (p *Postgres) SaveLink(ctx context.Context, link domain.VaultLink) (domain.VaultLink, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	start := time.Now()
	saved, err := scanLink(p.pool.QueryRow(ctx, `
INSERT INTO links (id, user_id, url, title, description, image, comment, is_read)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+linkColumns,
		link.ID, link.UserID, link.URL, link.Title, link.Description, link.Image, link.Comment, link.IsRead))
	metrics.ObserveNetworkRequest("postgres", "links_insert", "links", start, err)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return domain.VaultLink{}, domain.ErrUserNotFound
		}
		return domain.VaultLink{}, fmt.Errorf("insert link: %w", err)
	}
	return saved, nil
}

// GetLink реализует domain.LinkRepo.
func (p *Postgres) GetLink(ctx context.Context, id string) (domain.VaultLink, error) {
	if !validID(id) {
		return domain.VaultLink{}, domain.ErrLinkNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	link, err := scanLink(p.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM links WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "links_get", "links", start, nil)
		return domain.VaultLink{}, domain.ErrLinkNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "links_get", "links", start, err)
	if err != nil {
		return domain.VaultLink{}, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

// ListLinks реализует domain.LinkRepo.
func (p *Postgres) ListLinks(ctx context.Context, userID string, since time.Time) ([]domain.VaultLink, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+linkColumns+` FROM links
WHERE user_id=$1 AND ($2::timestamptz IS NULL OR created_at >= $2::timestamptz)
ORDER BY created_at DESC, id DESC
`, userID, nullableTime(since))
	metrics.ObserveNetworkRequest("postgres", "links_list", "links", start, err)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()
	var out []domain.VaultLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLink реализует domain.LinkRepo.
func (p *Postgres) UpdateLink(ctx context.Context, link domain.VaultLink) error {
	if !validID(link.ID) {
		return domain.ErrLinkNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE links SET url=$2, title=$3, description=$4, image=$5, comment=$6, is_read=$7
WHERE id=$1
`, link.ID, link.URL, link.Title, link.Description, link.Image, link.Comment, link.IsRead)
	metrics.ObserveNetworkRequest("postgres", "links_update", "links", start, err)
	if err != nil {
		return fmt.Errorf("update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

// DeleteLink реализует domain.LinkRepo.
func (p *Postgres) DeleteLink(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrLinkNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM links WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "links_delete", "links", start, err)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

// RecordActivity реализует domain.ActivityRepo.
func (p *Postgres) RecordActivity(ctx context.Context, activity domain.Activity) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	details := activity.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO activities (user_id, action, details, created_at)
VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()))
`, activity.UserID, activity.Action, payload, nullableTime(activity.Timestamp))
	metrics.ObserveNetworkRequest("postgres", "activities_insert", "activities", start, err)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity реализует domain.ActivityRepo.
func (p *Postgres) ListActivity(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var lim *int
	if limit > 0 {
		lim = &limit
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, action, details, created_at FROM activities
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, lim)
	metrics.ObserveNetworkRequest("postgres", "activities_list", "activities", start, err)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()
	var out []domain.Activity
	for rows.Next() {
		var (
			a   domain.Activity
			raw []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &raw, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteUserActivity реализует domain.ActivityRepo.
func (p *Postgres) DeleteUserActivity(ctx context.Context, userID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM activities WHERE user_id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "activities_delete_user", "activities", start, err)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}
