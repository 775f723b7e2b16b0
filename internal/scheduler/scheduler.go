package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultRenewSpec = "@every 30m"
	DefaultSyncSpec  = "@every 15m"
)

type Renewer interface {
	RenewAll(context.Context) error
}

type Sweeper interface {
	SyncAll(context.Context) error
}

// Scheduler renews watch channels and sweeps every linked owner with an
// incremental sync. Overlapping runs of the same job are skipped.
type Scheduler struct {
	logger  *zap.Logger
	cron    *cron.Cron
	renewer Renewer
	sweeper Sweeper

	RenewSpec string
	SyncSpec  string
	// JobTimeout bounds a single run. Zero means no bound.
	JobTimeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *zap.Logger, location *time.Location, renewer Renewer, sweeper Sweeper) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	clog := cronLogger{logger.Sugar()}
	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		renewer:   renewer,
		sweeper:   sweeper,
		RenewSpec: DefaultRenewSpec,
		SyncSpec:  DefaultSyncSpec,
	}
}

// Start registers the jobs and starts the cron loop. Jobs run with a context
// derived from ctx. An empty spec disables its job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.RenewSpec != "" && s.renewer != nil {
		if _, err := s.cron.AddFunc(s.RenewSpec, s.renew); err != nil {
			return fmt.Errorf("scheduler: adding renew job: %w", err)
		}
	}
	if s.SyncSpec != "" && s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.SyncSpec, s.sweep); err != nil {
			return fmt.Errorf("scheduler: adding sync job: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("renew", s.RenewSpec),
		zap.String("sync", s.SyncSpec),
		zap.Stringer("location", s.cron.Location()),
	)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) renew() {
	ctx, cancel := s.jobContext()
	defer cancel()

	start := time.Now()
	if err := s.renewer.RenewAll(ctx); err != nil {
		s.logger.Warn("renewing watch channels failed", zap.Error(err))
		return
	}
	s.logger.Debug("watch channels renewed", zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) sweep() {
	ctx, cancel := s.jobContext()
	defer cancel()

	start := time.Now()
	if err := s.sweeper.SyncAll(ctx); err != nil {
		s.logger.Warn("sync sweep failed", zap.Error(err))
		return
	}
	s.logger.Debug("sync sweep done", zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.JobTimeout > 0 {
		return context.WithTimeout(ctx, s.JobTimeout)
	}
	return context.WithCancel(ctx)
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
