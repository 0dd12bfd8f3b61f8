// Package scheduler runs the sync pipeline on a cron cadence inside the
// server process.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is the unit of scheduled work.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner around a single job.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	logger *zap.Logger
}

// New prepares a scheduler for the given five-field cron spec.
func New(spec string, job Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:   spec,
		job:    job,
		logger: logger,
	}
}

// Start registers the job and begins ticking. The job runs with a fresh
// background context per invocation; a tick that fires while the previous
// run is still going is skipped rather than stacked.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.logger.Info("scheduled sync triggered", zap.String("cron", s.spec))
		s.job(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("cron", s.spec))
	return nil
}

// Stop halts the ticker and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
