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
	"relink/internal/usecase/reconcile"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать сервисы")
	}
	defer a.Close()

	sched := reconcile.NewScheduler(ctx, a.Reconcile, cfg.Reconcile.Spec, cfg.Location(), cfg.Reconcile.Timeout,
		logger.With().Str("component", "scheduler").Logger())
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Reconcile.Spec).Msg("scheduler: неверное расписание")
	}

	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка")
	sched.Stop()
}
