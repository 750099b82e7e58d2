package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"relink/internal/app"
	"relink/internal/infra/config"
	applog "relink/internal/infra/log"
	"relink/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	switch cfg.Queue.Driver {
	case app.DriverRabbitMQ, app.DriverNATS, app.DriverRedis:
	default:
		logger.Fatal().Str("driver", cfg.Queue.Driver).Msg("worker: нужен внешний брокер (QUEUE_DRIVER=rabbitmq|nats|redis)")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось собрать сервисы")
	}
	defer a.Close()

	worker := a.NewWorker()
	if worker == nil {
		logger.Fatal().Msg("worker: очередь событий не настроена")
	}

	logger.Info().Str("queue", cfg.Queue.Driver).Msg("worker: старт")
	worker.Run(ctx)
	logger.Info().Msg("worker: остановка")
}
