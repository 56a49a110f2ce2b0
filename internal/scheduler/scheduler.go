// internal/scheduler/scheduler.go

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"magnet/internal/domain/research"
)

// Refresher re-analyzes the items stored since a point in time
type Refresher interface {
	Refresh(ctx context.Context, since time.Time) (*research.Refresh, error)
}

// Config holds the refresh job settings
type Config struct {
	Schedule string
	Lookback time.Duration
	Timeout  time.Duration
}

// Scheduler runs the periodic trend refresh
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	config    Config
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
	entryID   cron.EntryID
}

// New creates a scheduler and registers the refresh job. The schedule is a
// standard five-field cron expression.
func New(refresher Refresher, config Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Lookback <= 0 {
		return nil, fmt.Errorf("refresh lookback must be positive, got %s", config.Lookback)
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		refresher: refresher,
		config:    config,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}

	entryID, err := s.cron.AddFunc(config.Schedule, s.RunOnce)
	if err != nil {
		return nil, fmt.Errorf("adding cron entry %q: %w", config.Schedule, err)
	}
	s.entryID = entryID

	s.logger.Info("refresh scheduled", "cron", config.Schedule, "lookback", config.Lookback)
	return s, nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next time the refresh job fires
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// RunOnce performs one refresh. Errors are logged and never propagate.
// Overlapping invocations are skipped.
func (s *Scheduler) RunOnce() {
	if !s.mu.TryLock() {
		s.logger.Warn("refresh still running, skipping")
		return
	}
	defer s.mu.Unlock()

	ctx := context.Background()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	since := s.now().Add(-s.config.Lookback)
	refresh, err := s.refresher.Refresh(ctx, since)
	if err != nil {
		s.logger.Error("refresh failed", "since", since, "error", err)
		return
	}

	s.logger.Info("refresh finished",
		"refresh_id", refresh.ID,
		"items", refresh.Items,
		"clusters", len(refresh.Trends),
	)
}
