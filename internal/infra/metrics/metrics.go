package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PostsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relink_posts_created_total",
		Help: "Опубликованные ReLink",
	})
	PostsDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relink_posts_deleted_total",
		Help: "Удалённые ReLink",
	}, []string{"mode"})
	FeedCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relink_feed_cache_requests_total",
		Help: "Обращения к кэшу ленты",
	}, []string{"result"})
	PointerRepairs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relink_pointer_repairs_total",
		Help: "Исправления указателя текущего поста в профиле",
	}, []string{"action"})
	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relink_events_processed_total",
		Help: "Обработанные воркером события",
	}, []string{"type", "status"})
	ReconcileFixes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relink_reconcile_fixes_total",
		Help: "Исправления, сделанные проходом согласования",
	}, []string{"kind"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostsCreated,
		PostsDeleted,
		FeedCacheRequests,
		PointerRepairs,
		EventsProcessed,
		ReconcileFixes,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFeedCache учитывает попадание или промах кэша ленты.
func ObserveFeedCache(result string) {
	FeedCacheRequests.WithLabelValues(result).Inc()
}

// ObservePointerRepair учитывает исправление указателя текущего поста.
func ObservePointerRepair(action string) {
	PointerRepairs.WithLabelValues(action).Inc()
}

// ObserveEvent учитывает обработку события воркером.
func ObserveEvent(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsProcessed.WithLabelValues(eventType, status).Inc()
}
