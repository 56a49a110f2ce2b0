// internal/service/trending/analyzer.go

package trending

import (
	"log/slog"
	"sort"
	"sync"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/trend"
)

// Analyzer implements the trend.Analyzer interface
type Analyzer struct {
	config Config
	logger *slog.Logger
}

var _ trend.Analyzer = (*Analyzer)(nil)

// NewAnalyzer creates a new analyzer
func NewAnalyzer(config Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		config: config,
		logger: logger.With("component", "trend_analyzer"),
	}
}

// Config returns the configuration the analyzer was built with
func (a *Analyzer) Config() Config {
	return a.config
}

// clusterGroup is the slice of a batch that belongs to one cluster
type clusterGroup struct {
	id    int
	items []problem.EnrichedItem
}

// Run classifies every cluster that has at least min_support items. Clusters
// come back ordered by short average, then size, then id.
func (a *Analyzer) Run(items []problem.EnrichedItem, meta []trend.ClusterMeta) []trend.ClusterTrendReport {
	if len(items) == 0 {
		return []trend.ClusterTrendReport{}
	}

	groups := a.partition(items)

	metaByID := make(map[int]trend.ClusterMeta, len(meta))
	for _, m := range meta {
		metaByID[m.ClusterID] = m
	}

	results := make([]*trend.ClusterTrendReport, len(groups))
	sem := make(chan struct{}, a.config.MaxConcurrent())
	var wg sync.WaitGroup

	for idx := range groups {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = a.analyzeCluster(groups[idx], metaByID)
		}(idx)
	}
	wg.Wait()

	reports := make([]trend.ClusterTrendReport, 0, len(results))
	for _, r := range results {
		if r != nil {
			reports = append(reports, *r)
		}
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].SMAShort != reports[j].SMAShort {
			return reports[i].SMAShort > reports[j].SMAShort
		}
		if reports[i].Size != reports[j].Size {
			return reports[i].Size > reports[j].Size
		}
		return reports[i].ClusterID < reports[j].ClusterID
	})

	a.logger.Debug("analyzed clusters",
		"items", len(items),
		"clusters", len(groups),
		"reported", len(reports),
	)

	return reports
}

// RunScored analyzes scored items; the scores themselves are ignored
func (a *Analyzer) RunScored(items []problem.ScoredItem, meta []trend.ClusterMeta) []trend.ClusterTrendReport {
	return a.Run(problem.Items(items), meta)
}

// Series returns the bucketed history of one cluster's items
func (a *Analyzer) Series(clusterID int, items []problem.EnrichedItem) (trend.ClusterSeries, bool) {
	return buildSeries(clusterID, items, a.config)
}

// partition groups clustered items and drops clusters below min_support
func (a *Analyzer) partition(items []problem.EnrichedItem) []clusterGroup {
	byID := make(map[int][]problem.EnrichedItem)
	for _, item := range items {
		id, ok := item.Cluster()
		if !ok {
			continue
		}
		byID[id] = append(byID[id], item)
	}

	groups := make([]clusterGroup, 0, len(byID))
	for id, members := range byID {
		if len(members) < a.config.MinSupport() {
			a.logger.Debug("insufficient data for cluster",
				"cluster_id", id,
				"size", len(members),
				"min_support", a.config.MinSupport(),
			)
			continue
		}
		groups = append(groups, clusterGroup{id: id, items: members})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].id < groups[j].id })
	return groups
}

func (a *Analyzer) analyzeCluster(group clusterGroup, meta map[int]trend.ClusterMeta) *trend.ClusterTrendReport {
	series, ok := buildSeries(group.id, group.items, a.config)
	if !ok {
		return nil
	}

	short := movingAverage(series.Buckets, a.config.windowBuckets(a.config.ShortWindow()))
	long := movingAverage(series.Buckets, a.config.windowBuckets(a.config.LongWindow()))

	report := &trend.ClusterTrendReport{
		ClusterID:  group.id,
		Trend:      classify(short, long, a.config.TrendDelta()),
		LastCount:  series.Last(),
		SMAShort:   short,
		SMALong:    long,
		SeriesTail: series.Tail(a.config.TailBuckets()),
		Size:       len(group.items),
	}
	if m, ok := meta[group.id]; ok {
		report.TopKeywords = m.TopKeywords
		report.Representatives = m.Representatives
	}

	return report
}
