package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const userColumns = `id, email, display_name, photo_url, bio, connections, pending_requests, sent_requests, current_post, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u       domain.User
		pointer []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Bio,
		&u.Connections, &u.PendingRequests, &u.SentRequests, &pointer, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	if len(pointer) > 0 {
		var ptr domain.PeriodPointer
		if err := json.Unmarshal(pointer, &ptr); err != nil {
			return domain.User{}, fmt.Errorf("decode current_post: %w", err)
		}
		u.CurrentPost = &ptr
	}
	u.Connections = nonNil(u.Connections)
	u.PendingRequests = nonNil(u.PendingRequests)
	u.SentRequests = nonNil(u.SentRequests)
	return u, nil
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, nil)
		return domain.User{}, domain.ErrUserNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUsers возвращает найденные профили в порядке ids.
func (p *Postgres) GetUsers(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	metrics.ObserveNetworkRequest("postgres", "users_get_many", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.User, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
			delete(byID, id)
		}
	}
	return out, nil
}

// EnsureUser реализует domain.UserRepo.
func (p *Postgres) EnsureUser(ctx context.Context, user domain.User) (domain.User, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	created, err := scanUser(p.pool.QueryRow(ctx, `
INSERT INTO users (id, email, display_name, photo_url, bio)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING
RETURNING `+userColumns, user.ID, user.Email, user.DisplayName, user.PhotoURL, user.Bio))
	if err == nil {
		metrics.ObserveNetworkRequest("postgres", "users_ensure", "users", start, nil)
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "users_ensure", "users", start, err)
		return domain.User{}, false, fmt.Errorf("ensure user: %w", err)
	}
	metrics.ObserveNetworkRequest("postgres", "users_ensure", "users", start, nil)
	existing, err := p.GetUser(ctx, user.ID)
	if err != nil {
		return domain.User{}, false, err
	}
	return existing, false, nil
}

// UpdateProfile реализует domain.UserRepo.
func (p *Postgres) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `
INSERT INTO users (id, email, display_name, photo_url, bio)
VALUES ($1, COALESCE($2::text, ''), COALESCE($3::text, ''), COALESCE($4::text, ''), COALESCE($5::text, ''))
ON CONFLICT (id) DO UPDATE SET
    email        = COALESCE($2::text, users.email),
    display_name = COALESCE($3::text, users.display_name),
    photo_url    = COALESCE($4::text, users.photo_url),
    bio          = COALESCE($5::text, users.bio),
    updated_at   = now()
RETURNING `+userColumns, id, update.Email, update.DisplayName, update.PhotoURL, update.Bio))
	metrics.ObserveNetworkRequest("postgres", "users_update_profile", "users", start, err)
	if err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// SetCurrentPost реализует domain.UserRepo.
func (p *Postgres) SetCurrentPost(ctx context.Context, userID string, pointer *domain.PeriodPointer) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var payload []byte
	if pointer != nil {
		data, err := json.Marshal(pointer)
		if err != nil {
			return fmt.Errorf("encode pointer: %w", err)
		}
		payload = data
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE users SET current_post=$2, updated_at=now() WHERE id=$1`, userID, payload)
	metrics.ObserveNetworkRequest("postgres", "users_set_current_post", "users", start, err)
	if err != nil {
		return fmt.Errorf("set current post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetUserConnections реализует domain.UserRepo.
func (p *Postgres) SetUserConnections(ctx context.Context, userID string, conns domain.UserConnections) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE users SET connections=$2, pending_requests=$3, sent_requests=$4, updated_at=now()
WHERE id=$1
`, userID, nonNil(conns.Connections), nonNil(conns.PendingRequests), nonNil(conns.SentRequests))
	metrics.ObserveNetworkRequest("postgres", "users_set_connections", "users", start, err)
	if err != nil {
		return fmt.Errorf("set user connections: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// DeleteUser удаляет профиль; посты, связи и ссылки удаляются каскадно.
func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "users", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "users_delete", "users", start, err)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE users SET
    connections      = array_remove(connections, $1),
    pending_requests = array_remove(pending_requests, $1),
    sent_requests    = array_remove(sent_requests, $1),
    updated_at       = now()
WHERE $1 = ANY(connections) OR $1 = ANY(pending_requests) OR $1 = ANY(sent_requests)
`, id)
	metrics.ObserveNetworkRequest("postgres", "users_detach_deleted", "users", start, err)
	if err != nil {
		return fmt.Errorf("detach deleted user: %w", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "users", start, err)
	return err
}

// ListUserIDs реализует domain.UserRepo.
func (p *Postgres) ListUserIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "users_list_ids", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan user ids: %w", err)
	}
	return ids, nil
}
