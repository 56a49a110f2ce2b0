// Package scoring ranks enriched items by Problem Score, an interpretable
// weighted sum of six sub-signals: engagement z-score, negative sentiment,
// question form, pain markers, cluster density and freshness.
package scoring

import (
	"log/slog"
	"sort"
	"time"

	"magnet/internal/domain/problem"
)

// RunOptions tunes a single scoring run
type RunOptions struct {
	// Top truncates the ranked output; zero or negative keeps every item
	Top int

	// Now is the reference instant for freshness; zero means the scorer clock
	Now time.Time
}

// Scorer computes and ranks Problem Scores. It holds no mutable state and is
// safe for concurrent use.
type Scorer struct {
	config Config
	clock  func() time.Time
	logger *slog.Logger
}

// NewScorer creates a new scorer
func NewScorer(config Config, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		config: config,
		clock:  time.Now,
		logger: logger.With("component", "scorer"),
	}
}

// Config returns the configuration the scorer was built with
func (s *Scorer) Config() Config {
	return s.config
}

// Run scores every item and returns them ranked by descending Problem Score.
// Ties fall back to descending engagement, then to input order. Input items
// are never modified.
func (s *Scorer) Run(items []problem.EnrichedItem, opts RunOptions) ([]problem.ScoredItem, error) {
	if len(items) == 0 {
		return []problem.ScoredItem{}, nil
	}

	if err := problem.ValidateAll(items); err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = s.clock()
	}

	stats := collectStats(items)
	weights := s.config.Weights()

	scored := make([]problem.ScoredItem, len(items))
	for idx, item := range items {
		raw := item.Engagement()
		why := problem.Why{
			EngagementRaw:  raw,
			EngagementZ:    stats.engagementZ(raw),
			NegSentiment:   negativeSentiment(item),
			IsQuestion:     float64(item.IsQuestion),
			PainMarkers:    float64(item.PainMarkers),
			ClusterDensity: stats.density(item, s.config.DensityNorm()),
			TimeDecay:      timeDecay(item, now, s.config.HalfLife()),
			Weights:        weights,
		}
		scored[idx] = problem.ScoredItem{
			EnrichedItem: item.Clone(),
			ProblemScore: why.Score(),
			Why:          why,
		}
	}

	order := make([]int, len(scored))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		x, y := scored[order[a]], scored[order[b]]
		if x.ProblemScore != y.ProblemScore {
			return x.ProblemScore > y.ProblemScore
		}
		if x.Why.EngagementRaw != y.Why.EngagementRaw {
			return x.Why.EngagementRaw > y.Why.EngagementRaw
		}
		return order[a] < order[b]
	})

	limit := len(order)
	if opts.Top > 0 && opts.Top < limit {
		limit = opts.Top
	}

	ranked := make([]problem.ScoredItem, limit)
	for i := 0; i < limit; i++ {
		ranked[i] = scored[order[i]]
	}

	s.logger.Debug("ranked items",
		"items", len(items),
		"returned", limit,
		"engagement_mean", stats.engagementMean,
		"engagement_std", stats.engagementStd,
	)

	return ranked, nil
}
