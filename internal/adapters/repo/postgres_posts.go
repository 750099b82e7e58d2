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

const postColumns = `id::text, user_id, type, link, monthly_links, title, period_start, period_label, year, likes, comments, deleted, deleted_at, created_at`

func scanPost(row pgx.Row) (domain.Post, error) {
	var (
		post                 domain.Post
		postType             string
		link, monthly, comms []byte
	)
	if err := row.Scan(&post.ID, &post.UserID, &postType, &link, &monthly, &post.Title,
		&post.PeriodStart, &post.PeriodLabel, &post.Year, &post.Likes, &comms,
		&post.Deleted, &post.DeletedAt, &post.CreatedAt); err != nil {
		return domain.Post{}, err
	}
	post.Type = domain.PostType(postType)
	if len(link) > 0 && string(link) != "null" {
		var entry domain.LinkEntry
		if err := json.Unmarshal(link, &entry); err != nil {
			return domain.Post{}, fmt.Errorf("decode link: %w", err)
		}
		post.Link = &entry
	}
	if len(monthly) > 0 {
		if err := json.Unmarshal(monthly, &post.MonthlyLinks); err != nil {
			return domain.Post{}, fmt.Errorf("decode monthly_links: %w", err)
		}
		if len(post.MonthlyLinks) == 0 {
			post.MonthlyLinks = nil
		}
	}
	post.Comments = []domain.Comment{}
	if len(comms) > 0 {
		if err := json.Unmarshal(comms, &post.Comments); err != nil {
			return domain.Post{}, fmt.Errorf("decode comments: %w", err)
		}
	}
	post.Likes = nonNil(post.Likes)
	return post, nil
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	defer rows.Close()
	var out []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, post)
	}
	return out, rows.Err()
}

// CreatePost реализует domain.PostRepo. Время создания задаёт вызывающий, чтобы оно совпадало с period_start.
func (p *Postgres) CreatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	var link []byte
	if post.Link != nil {
		data, err := json.Marshal(post.Link)
		if err != nil {
			return domain.Post{}, fmt.Errorf("encode link: %w", err)
		}
		link = data
	}
	monthly := post.MonthlyLinks
	if monthly == nil {
		monthly = []domain.LinkEntry{}
	}
	monthlyJSON, err := json.Marshal(monthly)
	if err != nil {
		return domain.Post{}, fmt.Errorf("encode monthly links: %w", err)
	}

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}

	start := time.Now()
	created, err := scanPost(p.pool.QueryRow(ctx, `
INSERT INTO posts (id, user_id, type, link, monthly_links, title, period_start, period_label, year, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+postColumns,
		post.ID, post.UserID, string(post.Type), link, monthlyJSON, post.Title, post.PeriodStart, post.PeriodLabel, post.Year, post.CreatedAt))
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if err != nil {
		switch code, constraint := pgErrorCode(err); {
		case code == pgUniqueViolation && constraint == "posts_one_per_period":
			return domain.Post{}, domain.ErrAlreadyPosted
		case code == pgForeignKeyViolation:
			return domain.Post{}, domain.ErrUserNotFound
		}
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return created, nil
}

// GetPost реализует domain.PostRepo.
func (p *Postgres) GetPost(ctx context.Context, id string) (domain.Post, error) {
	if !validID(id) {
		return domain.Post{}, domain.ErrPostNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	post, err := scanPost(p.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, nil)
		return domain.Post{}, domain.ErrPostNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if err != nil {
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// FindUserPostInRange реализует domain.PostRepo.
func (p *Postgres) FindUserPostInRange(ctx context.Context, userID string, from, to time.Time) (domain.Post, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	post, err := scanPost(p.pool.QueryRow(ctx, `
SELECT `+postColumns+` FROM posts
WHERE user_id=$1 AND NOT deleted AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC, id DESC
LIMIT 1
`, userID, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "posts_find_in_range", "posts", start, nil)
		return domain.Post{}, false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "posts_find_in_range", "posts", start, err)
	if err != nil {
		return domain.Post{}, false, fmt.Errorf("find post in range: %w", err)
	}
	return post, true, nil
}

// CountUserPostsInRange реализует domain.PostRepo.
func (p *Postgres) CountUserPostsInRange(ctx context.Context, userID string, from, to time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var n int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM posts
WHERE user_id=$1 AND NOT deleted AND created_at >= $2 AND created_at < $3
`, userID, from, to).Scan(&n)
	metrics.ObserveNetworkRequest("postgres", "posts_count_in_range", "posts", start, err)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// ListFeed реализует domain.PostRepo: keyset-пагинация по (created_at, id).
func (p *Postgres) ListFeed(ctx context.Context, q domain.FeedQuery) ([]domain.Post, error) {
	if len(q.UserIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		afterTime *time.Time
		afterID   *string
	)
	if q.After != nil {
		if !validID(q.After.ID) {
			return nil, domain.ErrInvalidCursor
		}
		afterTime, afterID = &q.After.CreatedAt, &q.After.ID
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+postColumns+` FROM posts
WHERE NOT deleted
  AND user_id = ANY($1)
  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2::timestamptz, $3::uuid))
ORDER BY created_at DESC, id DESC
LIMIT $4
`, q.UserIDs, afterTime, afterID, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list_feed", "posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	return collectPosts(rows)
}

// ListUserPosts реализует domain.PostRepo.
func (p *Postgres) ListUserPosts(ctx context.Context, userID string) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+postColumns+` FROM posts
WHERE user_id=$1 AND NOT deleted
ORDER BY created_at DESC, id DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "posts_list_user", "posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("list user posts: %w", err)
	}
	return collectPosts(rows)
}

// ListAllPosts реализует domain.PostRepo.
func (p *Postgres) ListAllPosts(ctx context.Context, limit int) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var lim *int
	if limit > 0 {
		lim = &limit
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id DESC LIMIT $1`, lim)
	metrics.ObserveNetworkRequest("postgres", "posts_list_all", "posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("list all posts: %w", err)
	}
	return collectPosts(rows)
}

// SoftDeletePost реализует domain.PostRepo.
func (p *Postgres) SoftDeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrPostNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE posts SET deleted=TRUE, deleted_at=now() WHERE id=$1 AND NOT deleted`, id)
	metrics.ObserveNetworkRequest("postgres", "posts_soft_delete", "posts", start, err)
	if err != nil {
		return fmt.Errorf("soft delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// HardDeletePost реализует domain.PostRepo.
func (p *Postgres) HardDeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrPostNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "posts_hard_delete", "posts", start, err)
	if err != nil {
		return fmt.Errorf("hard delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// DeleteUserPosts реализует domain.PostRepo.
func (p *Postgres) DeleteUserPosts(ctx context.Context, userID string) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM posts WHERE user_id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "posts_delete_user", "posts", start, err)
	if err != nil {
		return 0, fmt.Errorf("delete user posts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteAllPosts реализует domain.PostRepo.
func (p *Postgres) DeleteAllPosts(ctx context.Context) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM posts`)
	metrics.ObserveNetworkRequest("postgres", "posts_delete_all", "posts", start, err)
	if err != nil {
		return 0, fmt.Errorf("delete all posts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ToggleLike реализует domain.PostRepo одним UPDATE без гонки чтение-запись.
func (p *Postgres) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	if !validID(postID) {
		return false, domain.ErrPostNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var liked bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE posts SET likes = CASE
    WHEN $2::text = ANY(likes) THEN array_remove(likes, $2::text)
    ELSE array_append(likes, $2::text)
END
WHERE id=$1 AND NOT deleted
RETURNING $2::text = ANY(likes)
`, postID, userID).Scan(&liked)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "posts_toggle_like", "posts", start, nil)
		return false, domain.ErrPostNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "posts_toggle_like", "posts", start, err)
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	return liked, nil
}

// AppendComment реализует domain.PostRepo.
func (p *Postgres) AppendComment(ctx context.Context, postID string, comment domain.Comment) error {
	if !validID(postID) {
		return domain.ErrPostNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	payload, err := json.Marshal([]domain.Comment{comment})
	if err != nil {
		return fmt.Errorf("encode comment: %w", err)
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE posts SET comments = comments || $2::jsonb WHERE id=$1 AND NOT deleted`, postID, payload)
	metrics.ObserveNetworkRequest("postgres", "posts_append_comment", "posts", start, err)
	if err != nil {
		return fmt.Errorf("append comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// RemoveComment реализует domain.PostRepo.
func (p *Postgres) RemoveComment(ctx context.Context, postID, commentID string) error {
	if !validID(postID) {
		return domain.ErrPostNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "posts", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	start = time.Now()
	err = tx.QueryRow(ctx, `SELECT comments FROM posts WHERE id=$1 AND NOT deleted FOR UPDATE`, postID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "posts_get_comments", "posts", start, nil)
		return domain.ErrPostNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "posts_get_comments", "posts", start, err)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	var comments []domain.Comment
	if err := json.Unmarshal(raw, &comments); err != nil {
		return fmt.Errorf("decode comments: %w", err)
	}
	kept := comments[:0]
	for _, c := range comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(comments) {
		return domain.ErrCommentNotFound
	}
	payload, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("encode comments: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE posts SET comments=$2 WHERE id=$1`, postID, payload)
	metrics.ObserveNetworkRequest("postgres", "posts_set_comments", "posts", start, err)
	if err != nil {
		return fmt.Errorf("store comments: %w", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "posts", start, err)
	return err
}
