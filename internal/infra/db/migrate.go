package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate применяет встроенные миграции схемы.
func Migrate(pool *pgxpool.Pool, logger zerolog.Logger) error {
	m, err := newMigrator(pool)
	if err != nil {
		return err
	}

	migrateErr := m.Up()
	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		logger.Warn().Err(versionErr).Msg("db: не удалось получить версию схемы")
	}
	if migrateErr != nil {
		if !errors.Is(migrateErr, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", migrateErr)
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("db: миграций для применения нет")
		return nil
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("db: схема обновлена")
	return nil
}

// MigrateDown откатывает миграции на steps шагов.
func MigrateDown(pool *pgxpool.Pool, steps int) error {
	if steps <= 0 {
		return errors.New("steps must be positive")
	}
	m, err := newMigrator(pool)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

func newMigrator(pool *pgxpool.Pool) (*migrate.Migrate, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	dbInstance, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("create db instance: %w", err)
	}
	srcInstance, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create source instance: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcInstance, "pgx5", dbInstance)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}
