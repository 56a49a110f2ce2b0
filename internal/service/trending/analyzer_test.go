package trending

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/trend"
)

const latestTS = 1_700_000_000.0

func hoursAgo(h float64) *float64 {
	v := latestTS - h*3600
	return &v
}

func clusterItem(id string, clusterID int, ago float64) problem.EnrichedItem {
	c := clusterID
	return problem.EnrichedItem{ID: id, ClusterID: &c, CreatedUTC: hoursAgo(ago)}
}

// burst puts n items of a cluster into bucket k (k=0 is the newest bucket)
func burst(clusterID, k, n int) []problem.EnrichedItem {
	items := make([]problem.EnrichedItem, 0, n)
	for i := 0; i < n; i++ {
		ago := float64(6*k) + float64(i)*0.25
		items = append(items, clusterItem(fmt.Sprintf("c%d-k%d-%d", clusterID, k, i), clusterID, ago))
	}
	return items
}

// pattern builds a cluster from per-bucket counts given oldest bucket first
func pattern(clusterID int, counts ...int) []problem.EnrichedItem {
	var items []problem.EnrichedItem
	for i, n := range counts {
		k := len(counts) - 1 - i
		items = append(items, burst(clusterID, k, n)...)
	}
	return items
}

func newAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	cfg, err := NewConfig(opts...)
	require.NoError(t, err)
	return NewAnalyzer(cfg, nil)
}

func counts(buckets []trend.BucketCount) []int {
	out := make([]int, len(buckets))
	for i, b := range buckets {
		out[i] = b.Count
	}
	return out
}

func TestRunEmptyInput(t *testing.T) {
	assert.Empty(t, newAnalyzer(t).Run(nil, nil))
}

func TestClusterBelowMinSupportIsOmitted(t *testing.T) {
	items := append(pattern(1, 1, 1), pattern(2, 1, 1, 1)...)

	reports := newAnalyzer(t).Run(items, nil)

	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].ClusterID)
}

func TestUnclusteredItemsAreIgnored(t *testing.T) {
	noise := clusterItem("noise", -1, 0)
	loose := problem.EnrichedItem{ID: "loose", CreatedUTC: hoursAgo(0)}
	items := append(pattern(3, 2, 2), noise, loose, noise, loose)

	reports := newAnalyzer(t, WithMinSupport(1)).Run(items, nil)

	require.Len(t, reports, 1)
	assert.Equal(t, 3, reports[0].ClusterID)
	assert.Equal(t, 4, reports[0].Size)
}

func TestConstantSeriesIsFlat(t *testing.T) {
	items := pattern(1, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2)

	reports := newAnalyzer(t).Run(items, nil)

	require.Len(t, reports, 1)
	assert.Equal(t, trend.Flat, reports[0].Trend)
	assert.Equal(t, 2.0, reports[0].SMAShort)
	assert.Equal(t, 2.0, reports[0].SMALong)
}

func TestBurstIsRising(t *testing.T) {
	// 12 buckets summing to 24 (long mean 2), last four 0,0,8,10
	items := pattern(1, 1, 0, 0, 1, 1, 1, 1, 1, 0, 0, 8, 10)

	reports := newAnalyzer(t).Run(items, nil)

	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, trend.Rising, r.Trend)
	assert.InDelta(t, 4.5, r.SMAShort, 1e-12)
	assert.InDelta(t, 2.0, r.SMALong, 1e-12)
	assert.Equal(t, 10, r.LastCount)
	assert.Equal(t, 24, r.Size)
}

func TestFadingClusterIsFalling(t *testing.T) {
	items := pattern(1, 3, 3, 3, 3, 3, 3, 3, 3, 0, 0, 0, 1)

	reports := newAnalyzer(t).Run(items, nil)

	require.Len(t, reports, 1)
	assert.Equal(t, trend.Falling, reports[0].Trend)
	assert.InDelta(t, 0.25, reports[0].SMAShort, 1e-12)
	assert.InDelta(t, 25.0/12.0, reports[0].SMALong, 1e-12)
}

func TestBoundaryInstantBelongsToEarlierBucket(t *testing.T) {
	items := []problem.EnrichedItem{
		clusterItem("newest", 1, 0),
		clusterItem("edge-1", 1, 6),
		clusterItem("edge-2", 1, 6),
		clusterItem("inside", 1, 5.99),
	}

	series, ok := newAnalyzer(t).Series(1, items)

	require.True(t, ok)
	assert.Equal(t, []int{2, 2}, counts(series.Buckets))
	assert.Equal(t, int64(latestTS-6*3600), series.Buckets[1].Start)
	assert.Equal(t, int64(latestTS-12*3600), series.Buckets[0].Start)
	// the edge items sit exactly on the upper edge Start+w of the older bucket
	assert.Equal(t, int64(latestTS-6*3600), series.Buckets[0].Start+int64(6*3600))
}

func TestSeriesStartsAtFirstItemBucket(t *testing.T) {
	items := pattern(4, 3, 1, 2)

	a := newAnalyzer(t)
	series, ok := a.Series(4, items)
	require.True(t, ok)
	assert.Equal(t, []int{3, 1, 2}, counts(series.Buckets))

	reports := a.Run(items, nil)
	require.Len(t, reports, 1)
	// the long window only sees the three buckets that exist
	assert.InDelta(t, 2.0, reports[0].SMALong, 1e-12)
	assert.InDelta(t, 2.0, reports[0].SMAShort, 1e-12)
	assert.Equal(t, trend.Flat, reports[0].Trend)
}

func TestSeriesIsGapFreeAndBoundedByLongWindow(t *testing.T) {
	items := []problem.EnrichedItem{
		clusterItem("now", 1, 0),
		clusterItem("day-ago", 1, 25),
		clusterItem("ancient", 1, 100),
	}

	series, ok := newAnalyzer(t).Series(1, items)

	require.True(t, ok)
	assert.Equal(t, []int{1, 0, 0, 0, 1}, counts(series.Buckets))
	for i := 1; i < len(series.Buckets); i++ {
		assert.Equal(t, int64(6*3600), series.Buckets[i].Start-series.Buckets[i-1].Start)
	}
}

func TestMissingTimestampsCountTowardSizeOnly(t *testing.T) {
	c := 8
	items := append(pattern(8, 1, 1), problem.EnrichedItem{ID: "undated", ClusterID: &c})

	reports := newAnalyzer(t).Run(items, nil)

	require.Len(t, reports, 1)
	assert.Equal(t, 3, reports[0].Size)
	assert.Equal(t, []int{1, 1}, counts(reports[0].SeriesTail))
}

func TestClusterWithoutTimestampsIsSkipped(t *testing.T) {
	c := 2
	undated := problem.EnrichedItem{ClusterID: &c}

	reports := newAnalyzer(t).Run([]problem.EnrichedItem{undated, undated, undated}, nil)

	assert.Empty(t, reports)
}

func TestReportOrdering(t *testing.T) {
	c7 := 7
	var items []problem.EnrichedItem
	items = append(items, pattern(5, 1, 1, 1)...)
	items = append(items, pattern(2, 1, 1, 1)...)
	items = append(items, pattern(7, 1, 1, 1)...)
	items = append(items, problem.EnrichedItem{ClusterID: &c7})
	items = append(items, pattern(9, 4, 4, 4)...)

	reports := newAnalyzer(t).Run(items, nil)

	ids := make([]int, len(reports))
	for i, r := range reports {
		ids[i] = r.ClusterID
	}
	assert.Equal(t, []int{9, 7, 2, 5}, ids)
}

func TestMetadataIsForwarded(t *testing.T) {
	meta := []trend.ClusterMeta{
		{ClusterID: 1, TopKeywords: []string{"invoice", "export"}, Representatives: []string{"How do I export invoices?"}},
		{ClusterID: 99, TopKeywords: []string{"unused"}},
	}

	reports := newAnalyzer(t).Run(pattern(1, 1, 2), meta)

	require.Len(t, reports, 1)
	assert.Equal(t, []string{"invoice", "export"}, reports[0].TopKeywords)
	assert.Equal(t, []string{"How do I export invoices?"}, reports[0].Representatives)
}

func TestSeriesTailLength(t *testing.T) {
	items := pattern(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)

	reports := newAnalyzer(t).Run(items, nil)
	require.Len(t, reports, 1)
	assert.Len(t, reports[0].SeriesTail, DefaultTailBuckets)

	short := newAnalyzer(t, WithTailBuckets(3)).Run(items, nil)
	require.Len(t, short, 1)
	assert.Len(t, short[0].SeriesTail, 3)
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	var items []problem.EnrichedItem
	for id := 0; id < 12; id++ {
		items = append(items, pattern(id, id%3, 1, (id*5)%4+1)...)
	}

	serial := newAnalyzer(t, WithMaxConcurrent(1), WithMinSupport(1)).Run(items, nil)
	parallel := newAnalyzer(t, WithMaxConcurrent(8), WithMinSupport(1)).Run(items, nil)

	assert.Equal(t, serial, parallel)
}

func TestRunScoredIgnoresScoresAndOrder(t *testing.T) {
	items := append(pattern(1, 1, 0, 0, 1, 1, 1, 1, 1, 0, 0, 8, 10), pattern(2, 3, 3, 3)...)

	scored := make([]problem.ScoredItem, len(items))
	for i, item := range items {
		// reverse the order and assign unrelated scores
		scored[len(items)-1-i] = problem.ScoredItem{EnrichedItem: item, ProblemScore: float64(i % 7)}
	}

	a := newAnalyzer(t)
	assert.Equal(t, a.Run(items, nil), a.RunScored(scored, nil))
}

func TestFarApartTimestampsAreNotBucketed(t *testing.T) {
	far := 1e300
	c := 3
	items := append(pattern(3, 1, 1), problem.EnrichedItem{ID: "far", ClusterID: &c, CreatedUTC: &far})

	series, ok := newAnalyzer(t).Series(3, items)

	require.True(t, ok)
	assert.Equal(t, []int{1}, counts(series.Buckets))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, trend.Rising, classify(1, 0, 0.15))
	assert.Equal(t, trend.Flat, classify(0, 0, 0.15))
	assert.Equal(t, trend.Rising, classify(1.16, 1, 0.15))
	assert.Equal(t, trend.Flat, classify(1.15, 1, 0.15))
	assert.Equal(t, trend.Flat, classify(0.85, 1, 0.15))
	assert.Equal(t, trend.Falling, classify(0.84, 1, 0.15))
}

func TestNewConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 6*time.Hour, cfg.Bucket())
	assert.Equal(t, 24*time.Hour, cfg.ShortWindow())
	assert.Equal(t, 72*time.Hour, cfg.LongWindow())
	assert.Equal(t, 0.15, cfg.TrendDelta())
	assert.Equal(t, 3, cfg.MinSupport())
	assert.Equal(t, DefaultTailBuckets, cfg.TailBuckets())
	assert.Equal(t, DefaultMaxConcurrent, cfg.MaxConcurrent())

	custom, err := NewConfig(WithBucket(time.Hour), WithTailBuckets(2), WithMaxConcurrent(1))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, custom.Bucket())
	assert.Equal(t, 2, custom.TailBuckets())
	assert.Equal(t, 1, custom.MaxConcurrent())

	cases := map[string][]Option{
		"bucket_hours":       {WithBucket(0)},
		"window_short_hours": {WithShortWindow(-time.Hour)},
		"window_long_hours":  {WithLongWindow(0)},
		"trend_delta":        {WithTrendDelta(-0.1)},
		"min_support":        {WithMinSupport(-1)},
	}
	for field, opts := range cases {
		_, err := NewConfig(opts...)
		var cerr *problem.ConfigurationError
		require.True(t, errors.As(err, &cerr), "field %s", field)
		assert.Equal(t, field, cerr.Field)
	}
}
