package reconcile

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSpec: проход согласования раз в час.
const DefaultSpec = "0 * * * *"

// Scheduler запускает проходы согласования по cron-расписанию.
type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	service *Service
	spec    string
	timeout time.Duration
	log     zerolog.Logger
}

// NewScheduler создаёт планировщик. Пустой spec означает DefaultSpec.
func NewScheduler(ctx context.Context, service *Service, spec string, loc *time.Location, timeout time.Duration, logger zerolog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{ctx: ctx, cron: c, service: service, spec: spec, timeout: timeout, log: logger}
}

// Start регистрирует задачу и запускает cron.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("scheduler: согласование запланировано")
	return nil
}

// Stop останавливает cron и ждёт завершения текущего прохода.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce выполняет оба прохода согласования.
func (s *Scheduler) RunOnce() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
	}
	if ctx.Err() != nil {
		s.log.Info().Err(ctx.Err()).Msg("scheduler: контекст завершён, пропускаем проход")
		return
	}
	if _, err := s.service.ReconcilePointers(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduler: ошибка согласования указателей")
	}
	if _, err := s.service.ReconcileConnections(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduler: ошибка согласования связей")
	}
}
