package scoring

import (
	"math"
	"time"

	"magnet/internal/domain/problem"
)

// neutralDecay is used when an item's age is unknown rather than known-stale
const neutralDecay = 0.5

// batchStats is the batch-wide snapshot every per-item computation reads.
// It is built once, before any item is scored.
type batchStats struct {
	engagementMean float64
	engagementStd  float64
	clusterSizes   map[int]int
}

func collectStats(items []problem.EnrichedItem) batchStats {
	stats := batchStats{clusterSizes: make(map[int]int)}
	if len(items) == 0 {
		return stats
	}

	first := items[0].Engagement()
	identical := true
	var sum float64
	for _, item := range items {
		e := item.Engagement()
		if e != first {
			identical = false
		}
		sum += float64(e)
		if id, ok := item.Cluster(); ok {
			stats.clusterSizes[id]++
		}
	}
	stats.engagementMean = sum / float64(len(items))

	// Identical engagement short-circuits to zero spread so rounding in the
	// mean cannot produce a tiny non-zero std.
	if identical {
		return stats
	}

	var sq float64
	for _, item := range items {
		d := float64(item.Engagement()) - stats.engagementMean
		sq += d * d
	}
	stats.engagementStd = math.Sqrt(sq / float64(len(items)))
	return stats
}

func (b batchStats) engagementZ(raw int64) float64 {
	if b.engagementStd <= 0 {
		return 0
	}
	return (float64(raw) - b.engagementMean) / b.engagementStd
}

func (b batchStats) density(item problem.EnrichedItem, norm float64) float64 {
	id, ok := item.Cluster()
	if !ok {
		return 0
	}
	return math.Min(1, float64(b.clusterSizes[id])/norm)
}

func negativeSentiment(item problem.EnrichedItem) float64 {
	return math.Max(0, -item.SentimentValue())
}

// timeDecay halves every halfLife. Future timestamps clamp to 1.
func timeDecay(item problem.EnrichedItem, now time.Time, halfLife time.Duration) float64 {
	if item.CreatedUTC == nil {
		return neutralDecay
	}
	// float seconds; time.Duration saturates for timestamps far from now
	nowSec := float64(now.Unix()) + float64(now.Nanosecond())/float64(time.Second)
	age := (nowSec - *item.CreatedUTC) / 3600
	if age <= 0 {
		return 1
	}
	return math.Pow(2, -age/halfLife.Hours())
}
