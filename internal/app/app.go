// Package app собирает сервисы ReLink из конфигурации. Общая сборка для cmd/*.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"relink/internal/adapters/memstore"
	"relink/internal/adapters/metadata"
	"relink/internal/adapters/repo"
	"relink/internal/domain"
	"relink/internal/infra/cache"
	"relink/internal/infra/config"
	"relink/internal/infra/db"
	"relink/internal/infra/queue"
	"relink/internal/usecase/connections"
	"relink/internal/usecase/events"
	"relink/internal/usecase/feed"
	"relink/internal/usecase/posting"
	"relink/internal/usecase/profile"
	"relink/internal/usecase/reconcile"
	"relink/internal/usecase/vault"
)

// Драйверы хранилища, кэша и очереди.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverNATS     = "nats"
	DriverNone     = "none"
)

// Store объединяет репозитории одного хранилища.
type Store interface {
	domain.UserRepo
	domain.PostRepo
	domain.ConnectionRepo
	domain.LinkRepo
	domain.ActivityRepo
}

// App: собранные сервисы и их ресурсы.
type App struct {
	Config config.AppConfig
	Log    zerolog.Logger

	Pool        *pgxpool.Pool
	Store       Store
	Cache       domain.Cache
	Queue       domain.EventQueue
	Publisher   domain.EventPublisher
	Metadata    domain.MetadataFetcher
	Invalidator *feed.Invalidator

	Gate        *posting.Gate
	Posts       *posting.Service
	Feed        *feed.Service
	Profiles    *profile.Service
	Connections *connections.Service
	Vault       *vault.Service
	Reconcile   *reconcile.Service
	Processor   *events.Processor

	closers []func()
}

// New подключает хранилище, кэш и очередь и собирает сервисы.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}
	if err := a.openCache(redisClient); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openQueue(redisClient); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Storage.Driver {
	case DriverMemory:
		a.Store = memstore.New(nil)
		a.Log.Warn().Msg("app: данные хранятся в памяти процесса")
		return nil
	case DriverPostgres, "":
		if a.Config.Storage.PGDSN == "" {
			return errors.New("PG_DSN is required for postgres storage")
		}
		pool, err := db.Connect(a.Config.Storage.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		if err := ctx.Err(); err != nil {
			return err
		}
		a.Store = repo.NewPostgres(pool)
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", a.Config.Storage.Driver)
}

func (a *App) openCache(client *redis.Client) error {
	switch a.Config.Cache.Driver {
	case DriverMemory, "":
		a.Cache = cache.NewMemory(a.Config.Cache.MaxEntries, time.Now)
		return nil
	case DriverRedis:
		if client == nil {
			return errors.New("REDIS_ADDR is required for redis cache")
		}
		a.Cache = cache.NewRedis(client)
		return nil
	case DriverNone:
		return nil
	}
	return fmt.Errorf("unknown cache driver %q", a.Config.Cache.Driver)
}

func (a *App) openQueue(client *redis.Client) error {
	cfg := a.Config.Queue
	switch cfg.Driver {
	case DriverNone, "":
		return nil
	case DriverMemory:
		a.Queue = queue.NewMemoryEventQueue(1024)
	case DriverRabbitMQ:
		q, err := queue.NewRabbitEventQueue(cfg.RabbitURL, cfg.Events)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		a.Queue = q
	case DriverNATS:
		q, err := queue.NewNATSEventQueue(cfg.NATSURL, cfg.Events, a.Log.With().Str("component", "nats").Logger())
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		a.Queue = q
	case DriverRedis:
		if client == nil {
			return errors.New("REDIS_ADDR is required for redis queue")
		}
		a.Queue = queue.NewRedisEventQueue(client, cfg.Events)
	default:
		return fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
	q := a.Queue
	a.closers = append(a.closers, func() { _ = q.Close() })
	return nil
}

func (a *App) wire() error {
	unit, err := domain.ParsePeriodUnit(a.Config.Feed.Period)
	if err != nil {
		return err
	}
	ttl := a.Config.Cache.FeedTTL
	if ttl <= 0 {
		ttl = unit.DefaultCacheTTL()
	}
	calendar := domain.NewPeriodCalendar(unit, a.Config.Location())
	component := func(name string) zerolog.Logger {
		return a.Log.With().Str("component", name).Logger()
	}

	a.Metadata = a.metadataChain()
	a.Invalidator = feed.NewInvalidator(a.Cache, component("feed"))
	a.Profiles = profile.NewService(a.Store, a.Store, a.Invalidator, time.Now, component("profile"))
	a.Processor = events.NewProcessor(vault.NewEnricher(a.Store, a.Metadata, component("vault")), a.Profiles, a.Invalidator, component("events"))

	if a.Queue != nil {
		a.Publisher = a.Queue
	} else {
		a.Publisher = events.NewInline(a.Processor, component("events"))
	}

	a.Gate = posting.NewGate(a.Store, a.Store, calendar, time.Now, component("posting"))
	a.Posts = posting.NewService(a.Store, a.Store, a.Gate, a.Invalidator, a.Publisher, component("posting"))
	a.Feed = feed.NewService(a.Store, a.Store, a.Gate, a.Cache, ttl, a.Config.Feed.PageSize, component("feed"))
	a.Connections = connections.NewService(a.Store, a.Store, a.Publisher, time.Now, component("connections"))
	a.Vault = vault.NewService(a.Store, a.Metadata, a.Gate, a.Publisher, time.Now, component("vault"))
	a.Reconcile = reconcile.NewService(a.Store, a.Store, a.Gate, component("reconcile"))

	a.Log.Info().
		Str("storage", a.Config.Storage.Driver).
		Str("cache", a.Config.Cache.Driver).
		Str("queue", a.Config.Queue.Driver).
		Str("period", string(unit)).
		Dur("feed_ttl", ttl).
		Msg("app: сервисы собраны")
	return nil
}

func (a *App) metadataChain() domain.MetadataFetcher {
	cfg := a.Config.Metadata
	var preview domain.MetadataFetcher
	if cfg.LinkPreviewKey != "" {
		preview = metadata.NewLinkPreview(cfg.LinkPreviewKey, cfg.LinkPreviewURL, cfg.Timeout)
	}
	return metadata.NewChain(preview, metadata.NewScraper(cfg.Timeout))
}

// Migrate применяет миграции, если хранилище Postgres.
func (a *App) Migrate() error {
	if a.Pool == nil {
		return nil
	}
	return db.Migrate(a.Pool, a.Log.With().Str("component", "db").Logger())
}

// NewWorker создаёт воркер событий; nil, если очередь не настроена.
func (a *App) NewWorker() *events.Worker {
	if a.Queue == nil {
		return nil
	}
	return events.NewWorker(a.Queue, a.Processor, a.Log.With().Str("component", "worker").Logger())
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
