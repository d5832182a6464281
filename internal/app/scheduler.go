package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/service"
)

type SchedulerConfig struct {
	SweepInterval     time.Duration
	ExpansionInterval time.Duration
	ExpansionDays     int
}

// Scheduler runs the sweeper and rule expansion on tickers.
type Scheduler struct {
	sweeper *service.Sweeper
	slots   *service.SlotService
	locker  Locker
	cfg     SchedulerConfig
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewScheduler creates the scheduler. A nil locker means this is the only replica.
func NewScheduler(sweeper *service.Sweeper, slots *service.SlotService, locker Locker, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		slots:   slots,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start launches both jobs; each runs once immediately. They stop when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Duration("expansion_interval", s.cfg.ExpansionInterval),
	)

	s.wg.Add(2)
	go s.loop(ctx, "sweep", s.cfg.SweepInterval, s.RunSweep)
	go s.loop(ctx, "expand-rules", s.cfg.ExpansionInterval, s.RunExpansion)
}

// Wait blocks until both loops have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, job func(context.Context) error) {
	defer s.wg.Done()

	s.runLocked(ctx, name, every, job)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runLocked(ctx, name, every, job)
		case <-ctx.Done():
			s.logger.Info("Background job stopped", zap.String("job", name))
			return
		}
	}
}

func (s *Scheduler) runLocked(ctx context.Context, name string, ttl time.Duration, job func(context.Context) error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, name, ttl)
		if err != nil {
			s.logger.Warn("Job lock unavailable", zap.String("job", name), zap.Error(err))
			return
		}
		if !ok {
			s.logger.Debug("Job running elsewhere", zap.String("job", name))
			return
		}
		defer release()
	}

	if err := job(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Background job failed", zap.String("job", name), zap.Error(err))
	}
}

// RunSweep makes one sweeper pass.
func (s *Scheduler) RunSweep(ctx context.Context) error {
	_, err := s.sweeper.Run(ctx)
	return err
}

// RunExpansion materializes slots for every active rule.
func (s *Scheduler) RunExpansion(ctx context.Context) error {
	created, err := s.slots.GenerateSlotsForAllRules(ctx, s.cfg.ExpansionDays)
	if err != nil {
		return err
	}
	s.logger.Info("Rule expansion finished", zap.Int("slots_created", created))
	return nil
}
