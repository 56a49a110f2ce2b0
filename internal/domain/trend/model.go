package trend

// Classification is the trajectory label of a cluster
type Classification string

const (
	Rising  Classification = "rising"
	Falling Classification = "falling"
	Flat    Classification = "flat"
)

// BucketCount is one fixed-width time bucket of a cluster series. Buckets are
// right-aligned on the latest timestamp L, so bucket k covers (L-(k+1)w, L-kw]
// for width w. Start is the exclusive lower edge L-(k+1)w in Unix seconds; the
// bucket holds the items with Start < created_utc <= Start+w.
type BucketCount struct {
	Start int64 `json:"bucket_start"`
	Count int   `json:"count"`
}

// ClusterSeries is the gap-free bucketed item count of one cluster, oldest
// bucket first. Empty buckets are present with a zero count.
type ClusterSeries struct {
	ClusterID int           `json:"cluster_id"`
	Buckets   []BucketCount `json:"buckets"`
}

// Last returns the count of the most recent bucket
func (s ClusterSeries) Last() int {
	if len(s.Buckets) == 0 {
		return 0
	}
	return s.Buckets[len(s.Buckets)-1].Count
}

// Tail returns up to n of the most recent buckets
func (s ClusterSeries) Tail(n int) []BucketCount {
	if n <= 0 || len(s.Buckets) == 0 {
		return []BucketCount{}
	}
	if n > len(s.Buckets) {
		n = len(s.Buckets)
	}
	tail := make([]BucketCount, n)
	copy(tail, s.Buckets[len(s.Buckets)-n:])
	return tail
}

// ClusterMeta is descriptive metadata produced by the clustering collaborator.
// It is forwarded into reports unchanged.
type ClusterMeta struct {
	ClusterID       int      `json:"cluster_id"`
	TopKeywords     []string `json:"top_keywords"`
	Representatives []string `json:"representatives"`
}

// ClusterTrendReport describes the current trajectory of one cluster
type ClusterTrendReport struct {
	ClusterID       int            `json:"cluster_id"`
	Trend           Classification `json:"trend"`
	LastCount       int            `json:"last_count"`
	SMAShort        float64        `json:"sma_short"`
	SMALong         float64        `json:"sma_long"`
	SeriesTail      []BucketCount  `json:"series_tail"`
	Size            int            `json:"size"`
	TopKeywords     []string       `json:"top_keywords,omitempty"`
	Representatives []string       `json:"representatives,omitempty"`
}
