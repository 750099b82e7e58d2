package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"relink/internal/domain"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo       = (*Postgres)(nil)
	_ domain.PostRepo       = (*Postgres)(nil)
	_ domain.ConnectionRepo = (*Postgres)(nil)
	_ domain.LinkRepo       = (*Postgres)(nil)
	_ domain.ActivityRepo   = (*Postgres)(nil)
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	queryTimeout          = 5 * time.Second
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// validID отсекает строки, которые не являются UUID, до похода в БД.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
