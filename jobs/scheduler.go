package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	config "github.com/anjiri1684/tutor_marketplace/configs"
	"github.com/anjiri1684/tutor_marketplace/services"
)

// Job is one sweep. It returns how many items it processed.
type Job func(ctx context.Context) (int, error)

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler runs background sweeps on cron specs. A run that is still going
// when its next tick fires is skipped, and panics are logged.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(logger *zap.Logger, timeout time.Duration) *Scheduler {
	logger = logger.Named("jobs")
	l := cronLogger{s: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Add(name, spec string, job Job) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() { s.run(name, job) })
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job(ctx)
	log := s.logger.With(zap.String("job", name), zap.Duration("took", time.Since(start)))
	switch {
	case err != nil:
		log.Error("job failed", zap.Int("processed", n), zap.Error(err))
	case n > 0:
		log.Info("job finished", zap.Int("processed", n))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Register schedules lesson completion, payment reconciliation and outbox
// relaying.
func Register(s *Scheduler, cfg config.JobsConfig, bookings *services.BookingService, relay *OutboxRelay) error {
	entries := []struct {
		name string
		spec string
		job  Job
	}{
		{"complete_lessons", cfg.CompleteLessons, bookings.CompleteElapsed},
		{"reconcile_payments", cfg.ReconcilePayment, bookings.ReconcilePending},
		{"relay_outbox", cfg.RelayOutbox, relay.Run},
	}
	for _, e := range entries {
		if _, err := s.Add(e.name, e.spec, e.job); err != nil {
			return err
		}
		s.logger.Info("job scheduled", zap.String("job", e.name), zap.String("spec", e.spec))
	}
	return nil
}
