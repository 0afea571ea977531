package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs SyncAll on a cron schedule.
type Scheduler struct {
	mu      sync.Mutex
	syncer  *Syncer
	spec    string
	timeout time.Duration
	logger  *slog.Logger
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// NewScheduler validates spec (standard five field syntax, or descriptors
// such as "@every 30m").
func NewScheduler(syncer *Syncer, spec string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse sync schedule %q: %w", spec, err)
	}
	return &Scheduler{
		syncer:  syncer,
		spec:    spec,
		timeout: 10 * time.Minute,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(loc)),
	}, nil
}

// Start schedules the sync job. Runs that overlap a still running one are
// skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, s.cancel = context.WithCancel(ctx)

	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		s.logger.Debug("calendar sync run")
		s.syncer.SyncAll(runCtx)
	}))
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	s.cron.Start()
	s.logger.Info("calendar sync scheduled", "spec", s.spec)
	return nil
}

// Stop cancels a running sync and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
}
