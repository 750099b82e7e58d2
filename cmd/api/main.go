package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"relink/internal/adapters/httpapi"
	"relink/internal/app"
	"relink/internal/infra/config"
	httpinfra "relink/internal/infra/http"
	applog "relink/internal/infra/log"
	"relink/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("api: не указан секрет JWT (AUTH_JWT_SECRET)")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось собрать сервисы")
	}
	defer a.Close()

	if err := a.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("api: миграции не применены")
	}

	// memory-очередь живёт в этом процессе, поэтому воркер тоже здесь
	if cfg.Queue.Driver == app.DriverMemory {
		if worker := a.NewWorker(); worker != nil {
			go worker.Run(ctx)
		}
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	httpapi.New(httpapi.Deps{
		Profiles:    a.Profiles,
		Posts:       a.Posts,
		Feed:        a.Feed,
		Connections: a.Connections,
		Vault:       a.Vault,
		Metadata:    a.Metadata,
		AdminIDs:    cfg.Auth.AdminUserID,
		Logger:      logger.With().Str("component", "httpapi").Logger(),
	}).Mount(server.Router, httpinfra.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))

	go func() {
		logger.Info().Msg("api: старт")
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка при остановке сервера")
	}
}
