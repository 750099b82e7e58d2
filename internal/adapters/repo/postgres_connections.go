package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"relink/internal/domain"
	"relink/internal/infra/metrics"
)

const connectionColumns = `id::text, sender_id, receiver_id, status, created_at, accepted_at`

func scanConnection(row pgx.Row) (domain.Connection, error) {
	var (
		c      domain.Connection
		status string
	)
	if err := row.Scan(&c.ID, &c.SenderID, &c.ReceiverID, &status, &c.CreatedAt, &c.AcceptedAt); err != nil {
		return domain.Connection{}, err
	}
	c.Status = domain.ConnectionStatus(status)
	return c, nil
}

// lockUsers блокирует профили пары в порядке id, чтобы встречные переходы не взаимоблокировались.
func lockUsers(ctx context.Context, tx pgx.Tx, a, b string) error {
	ids := []string{a, b}
	sort.Strings(ids)
	start := time.Now()
	rows, err := tx.Query(ctx, `SELECT id FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	metrics.ObserveNetworkRequest("postgres", "users_lock_pair", "users", start, err)
	if err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	locked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	if len(locked) != 2 {
		return domain.ErrUserNotFound
	}
	return nil
}

func findBetweenTx(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, a, b string) (domain.Connection, bool, error) {
	start := time.Now()
	c, err := scanConnection(q.QueryRow(ctx, `
SELECT `+connectionColumns+` FROM connections
WHERE LEAST(sender_id, receiver_id) = LEAST($1::text, $2::text)
  AND GREATEST(sender_id, receiver_id) = GREATEST($1::text, $2::text)
`, a, b))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "connections_find_pair", "connections", start, nil)
		return domain.Connection{}, false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "connections_find_pair", "connections", start, err)
	if err != nil {
		return domain.Connection{}, false, fmt.Errorf("find connection: %w", err)
	}
	return c, true, nil
}

// CreateRequest записывает заявку и списки обоих профилей в одной транзакции.
func (p *Postgres) CreateRequest(ctx context.Context, senderID, receiverID string) (domain.Connection, error) {
	if senderID == receiverID {
		return domain.Connection{}, domain.ErrSelfConnection
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "connections", start, err)
	if err != nil {
		return domain.Connection{}, err
	}
	defer tx.Rollback(ctx)

	if err := lockUsers(ctx, tx, senderID, receiverID); err != nil {
		return domain.Connection{}, err
	}
	existing, found, err := findBetweenTx(ctx, tx, senderID, receiverID)
	if err != nil {
		return domain.Connection{}, err
	}
	if found {
		if existing.Status == domain.ConnectionAccepted {
			return domain.Connection{}, domain.ErrAlreadyConnected
		}
		return domain.Connection{}, domain.ErrRequestExists
	}

	start = time.Now()
	conn, err := scanConnection(tx.QueryRow(ctx, `
INSERT INTO connections (id, sender_id, receiver_id, status)
VALUES ($1, $2, $3, $4)
RETURNING `+connectionColumns, uuid.NewString(), senderID, receiverID, string(domain.ConnectionPending)))
	metrics.ObserveNetworkRequest("postgres", "connections_insert", "connections", start, err)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgUniqueViolation {
			return domain.Connection{}, domain.ErrRequestExists
		}
		return domain.Connection{}, fmt.Errorf("insert connection: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE users SET sent_requests = array_append(array_remove(sent_requests, $2::text), $2::text), updated_at=now()
WHERE id=$1
`, senderID, receiverID)
	metrics.ObserveNetworkRequest("postgres", "users_add_sent_request", "users", start, err)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("update sender: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE users SET pending_requests = array_append(array_remove(pending_requests, $2::text), $2::text), updated_at=now()
WHERE id=$1
`, receiverID, senderID)
	metrics.ObserveNetworkRequest("postgres", "users_add_pending_request", "users", start, err)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("update receiver: %w", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "connections", start, err)
	if err != nil {
		return domain.Connection{}, err
	}
	return conn, nil
}

// AcceptRequest принимает входящую заявку requesterID к userID в одной транзакции.
func (p *Postgres) AcceptRequest(ctx context.Context, userID, requesterID string) (domain.Connection, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "connections", start, err)
	if err != nil {
		return domain.Connection{}, err
	}
	defer tx.Rollback(ctx)

	if err := lockUsers(ctx, tx, userID, requesterID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Connection{}, domain.ErrRequestNotFound
		}
		return domain.Connection{}, err
	}

	start = time.Now()
	conn, err := scanConnection(tx.QueryRow(ctx, `
UPDATE connections SET status=$3, accepted_at=now()
WHERE sender_id=$1 AND receiver_id=$2 AND status=$4
RETURNING `+connectionColumns, requesterID, userID, string(domain.ConnectionAccepted), string(domain.ConnectionPending)))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "connections_accept", "connections", start, nil)
		return domain.Connection{}, domain.ErrRequestNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "connections_accept", "connections", start, err)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("accept connection: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE users SET
    connections      = array_append(array_remove(connections, $2::text), $2::text),
    pending_requests = array_remove(pending_requests, $2::text),
    updated_at       = now()
WHERE id=$1
`, userID, requesterID)
	metrics.ObserveNetworkRequest("postgres", "users_accept_incoming", "users", start, err)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("update receiver: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE users SET
    connections   = array_append(array_remove(connections, $2::text), $2::text),
    sent_requests = array_remove(sent_requests, $2::text),
    updated_at    = now()
WHERE id=$1
`, requesterID, userID)
	metrics.ObserveNetworkRequest("postgres", "users_accept_outgoing", "users", start, err)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("update sender: %w", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "connections", start, err)
	if err != nil {
		return domain.Connection{}, err
	}
	return conn, nil
}

// RejectRequest удаляет входящую заявку и чистит списки в одной транзакции.
func (p *Postgres) RejectRequest(ctx context.Context, userID, requesterID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "connections", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	tag, err := tx.Exec(ctx, `
DELETE FROM connections WHERE sender_id=$1 AND receiver_id=$2 AND status=$3
`, requesterID, userID, string(domain.ConnectionPending))
	metrics.ObserveNetworkRequest("postgres", "connections_reject", "connections", start, err)
	if err != nil {
		return fmt.Errorf("reject connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE users SET pending_requests = array_remove(pending_requests, $2::text), updated_at=now() WHERE id=$1
`, userID, requesterID)
	metrics.ObserveNetworkRequest("postgres", "users_drop_pending_request", "users", start, err)
	if err != nil {
		return fmt.Errorf("update receiver: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE users SET sent_requests = array_remove(sent_requests, $2::text), updated_at=now() WHERE id=$1
`, requesterID, userID)
	metrics.ObserveNetworkRequest("postgres", "users_drop_sent_request", "users", start, err)
	if err != nil {
		return fmt.Errorf("update sender: %w", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "connections", start, err)
	return err
}

// FindBetween реализует domain.ConnectionRepo.
func (p *Postgres) FindBetween(ctx context.Context, a, b string) (domain.Connection, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	return findBetweenTx(ctx, p.pool, a, b)
}

// ListConnections реализует domain.ConnectionRepo.
func (p *Postgres) ListConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+connectionColumns+` FROM connections
WHERE sender_id=$1 OR receiver_id=$1
ORDER BY created_at, id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "connections_list", "connections", start, err)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()
	var out []domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
