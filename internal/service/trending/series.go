package trending

import (
	"math"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/trend"
)

// buildSeries buckets the timestamped items of one cluster. Buckets are
// anchored on the latest timestamp L: bucket k (0 = newest) holds the
// instants in (L-(k+1)w, L-kw], so a boundary instant falls into the earlier
// bucket. The series starts at the bucket of the oldest item inside the long
// window. It reports false when no item carries a timestamp.
func buildSeries(clusterID int, items []problem.EnrichedItem, cfg Config) (trend.ClusterSeries, bool) {
	stamps := make([]float64, 0, len(items))
	latest := math.Inf(-1)
	for _, item := range items {
		if item.CreatedUTC == nil {
			continue
		}
		ts := *item.CreatedUTC
		stamps = append(stamps, ts)
		if ts > latest {
			latest = ts
		}
	}
	if len(stamps) == 0 {
		return trend.ClusterSeries{}, false
	}

	width := cfg.bucket.Seconds()
	span := cfg.spanBuckets()

	counts := make([]int, span)
	oldest := 0
	for _, ts := range stamps {
		pos := math.Floor((latest - ts) / width)
		if pos >= float64(span) {
			continue
		}
		k := int(pos)
		counts[k]++
		if k > oldest {
			oldest = k
		}
	}

	n := oldest + 1
	buckets := make([]trend.BucketCount, n)
	for k := 0; k < n; k++ {
		buckets[n-1-k] = trend.BucketCount{
			Start: int64(math.Floor(latest - float64(k+1)*width)),
			Count: counts[k],
		}
	}

	return trend.ClusterSeries{ClusterID: clusterID, Buckets: buckets}, true
}

// movingAverage is the mean count of the last n buckets, or of every bucket
// when fewer exist
func movingAverage(buckets []trend.BucketCount, n int) float64 {
	if len(buckets) == 0 {
		return 0
	}
	if n > len(buckets) {
		n = len(buckets)
	}
	var total int
	for _, b := range buckets[len(buckets)-n:] {
		total += b.Count
	}
	return float64(total) / float64(n)
}

func classify(short, long, delta float64) trend.Classification {
	if long == 0 {
		if short > 0 {
			return trend.Rising
		}
		return trend.Flat
	}
	switch {
	case short > long*(1+delta):
		return trend.Rising
	case short < long*(1-delta):
		return trend.Falling
	default:
		return trend.Flat
	}
}
