// internal/service/research/service.go

// Package research runs scoring and trend analysis over a batch, persists the
// result and announces it to downstream consumers.
package research

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/research"
	"magnet/internal/domain/trend"
	"magnet/internal/service/scoring"
	"magnet/internal/service/trending"
)

// RunStore defines storage for runs
type RunStore interface {
	SaveRun(ctx context.Context, run research.Run) error
	GetRun(ctx context.Context, id string) (*research.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]research.RunSummary, error)
	LatestRun(ctx context.Context) (*research.Run, error)
	ListItemsSince(ctx context.Context, since time.Time) ([]problem.EnrichedItem, error)
}

// Service orchestrates runs
type Service struct {
	scorer      *scoring.Scorer
	analyzer    *trending.Analyzer
	store       RunStore
	publisher   trend.Publisher
	logger      *slog.Logger
	now         func() time.Time
	mu          sync.RWMutex
	runHandlers []func(research.Run) error
}

// NewService creates a new research service. A nil publisher disables events.
func NewService(
	scorer *scoring.Scorer,
	analyzer *trending.Analyzer,
	store RunStore,
	publisher trend.Publisher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		scorer:    scorer,
		analyzer:  analyzer,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "research"),
		now:       time.Now,
	}
}

// Score ranks items without persisting anything
func (s *Service) Score(items []problem.EnrichedItem, top int) ([]problem.ScoredItem, error) {
	return s.scorer.Run(items, scoring.RunOptions{Top: top, Now: s.now()})
}

// Trends classifies clusters without persisting anything
func (s *Service) Trends(items []problem.EnrichedItem, meta []trend.ClusterMeta) ([]trend.ClusterTrendReport, error) {
	if err := problem.ValidateAll(items); err != nil {
		return nil, err
	}
	return s.analyzer.Run(items, meta), nil
}

// Run scores and analyzes a batch, stores the run and publishes its events.
// A failure to publish is logged; the stored run is still returned.
func (s *Service) Run(ctx context.Context, batch research.Batch) (*research.Run, error) {
	started := s.now()

	ranked, err := s.scorer.Run(batch.Items, scoring.RunOptions{Now: started})
	if err != nil {
		return nil, err
	}

	run := research.Run{
		ID:         uuid.New().String(),
		StartedAt:  started.UTC(),
		TotalItems: len(batch.Items),
		Settings:   s.settings(),
		Ranked:     ranked,
		Trends:     s.analyzer.Run(batch.Items, batch.Clusters),
	}
	run.CompletedAt = s.now().UTC()

	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("error saving run: %w", err)
	}

	s.logger.Info("run completed",
		"run_id", run.ID,
		"items", run.TotalItems,
		"clusters", len(run.Trends),
		"duration", run.CompletedAt.Sub(run.StartedAt),
	)

	s.publish(ctx, run.ID, run.TotalItems, run.Trends)
	s.callRunHandlers(run)

	return &run, nil
}

// GetRun returns a stored run
func (s *Service) GetRun(ctx context.Context, id string) (*research.Run, error) {
	return s.store.GetRun(ctx, id)
}

// ListRuns returns stored run summaries, newest first
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]research.RunSummary, error) {
	return s.store.ListRuns(ctx, limit, offset)
}

// LatestRun returns the most recently completed run
func (s *Service) LatestRun(ctx context.Context) (*research.Run, error) {
	return s.store.LatestRun(ctx)
}

// ExportRun writes a stored run to w in the given format
func (s *Service) ExportRun(ctx context.Context, id string, format research.ExportFormat, w io.Writer) error {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	return WriteExport(w, *run, format)
}

// Refresh re-analyzes the items stored since the given time and publishes
// the resulting trends. Nothing is persisted.
func (s *Service) Refresh(ctx context.Context, since time.Time) (*research.Refresh, error) {
	items, err := s.store.ListItemsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("error loading items: %w", err)
	}

	refresh := &research.Refresh{
		ID:     uuid.New().String(),
		Since:  since.UTC(),
		Items:  len(items),
		Trends: s.analyzer.Run(items, nil),
	}

	s.logger.Info("refresh completed",
		"refresh_id", refresh.ID,
		"items", refresh.Items,
		"clusters", len(refresh.Trends),
	)

	s.publish(ctx, refresh.ID, refresh.Items, refresh.Trends)

	return refresh, nil
}

// RegisterRunHandler registers a callback invoked after every stored run
func (s *Service) RegisterRunHandler(handler func(research.Run) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runHandlers = append(s.runHandlers, handler)
}

func (s *Service) settings() research.Settings {
	sc := s.scorer.Config()
	tc := s.analyzer.Config()
	return research.Settings{
		Weights:          sc.Weights(),
		HalfLifeHours:    sc.HalfLife().Hours(),
		DensityNorm:      sc.DensityNorm(),
		BucketHours:      tc.Bucket().Hours(),
		WindowShortHours: tc.ShortWindow().Hours(),
		WindowLongHours:  tc.LongWindow().Hours(),
		TrendDelta:       tc.TrendDelta(),
		MinSupport:       tc.MinSupport(),
	}
}

func (s *Service) publish(ctx context.Context, id string, totalItems int, reports []trend.ClusterTrendReport) {
	if s.publisher == nil {
		return
	}

	for _, report := range reports {
		if err := s.publisher.PublishTrend(ctx, id, report); err != nil {
			s.logger.Error("error publishing trend event", "id", id, "cluster_id", report.ClusterID, "error", err)
		}
	}

	if err := s.publisher.PublishRunCompleted(ctx, id, totalItems, len(reports)); err != nil {
		s.logger.Error("error publishing run event", "id", id, "error", err)
	}
}

func (s *Service) callRunHandlers(run research.Run) {
	s.mu.RLock()
	handlers := make([]func(research.Run) error, len(s.runHandlers))
	copy(handlers, s.runHandlers)
	s.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(run); err != nil {
			s.logger.Error("error in run handler", "run_id", run.ID, "error", err)
		}
	}
}
