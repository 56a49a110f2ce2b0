// internal/domain/problem/model.go

package problem

import (
	"encoding/json"
	"math"
	"time"
)

// EnrichedItem is a post or article as delivered by the enrichment and
// clustering collaborators. Optional numeric fields are pointers so that an
// absent value can be told apart from an explicit zero.
type EnrichedItem struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Title       string   `json:"title"`
	Body        string   `json:"body,omitempty"`
	Score       *int64   `json:"score,omitempty"`
	NumComments *int64   `json:"num_comments,omitempty"`
	Sentiment   *float64 `json:"sentiment,omitempty"`
	IsQuestion  Flag     `json:"is_question"`
	PainMarkers Flag     `json:"pain_markers"`
	ClusterID   *int     `json:"cluster_id"`
	CreatedUTC  *float64 `json:"created_utc,omitempty"`
}

// Engagement returns score + num_comments with absent fields counted as zero
func (i EnrichedItem) Engagement() int64 {
	var total int64
	if i.Score != nil {
		total += *i.Score
	}
	if i.NumComments != nil {
		total += *i.NumComments
	}
	return total
}

// SentimentValue returns the sentiment or 0 when it is absent
func (i EnrichedItem) SentimentValue() float64 {
	if i.Sentiment == nil {
		return 0
	}
	return *i.Sentiment
}

// Cluster returns the cluster id and whether the item belongs to a cluster.
// Negative ids are the noise label of density-based clusterers.
func (i EnrichedItem) Cluster() (int, bool) {
	if i.ClusterID == nil || *i.ClusterID < 0 {
		return 0, false
	}
	return *i.ClusterID, true
}

// maxEpochSeconds bounds the seconds that convert to int64 without overflow
const maxEpochSeconds = float64(math.MaxInt64 / 2)

// CreatedAt returns the creation time and whether it is known. Timestamps
// beyond the range of time.Time report false.
func (i EnrichedItem) CreatedAt() (time.Time, bool) {
	if i.CreatedUTC == nil || *i.CreatedUTC >= maxEpochSeconds {
		return time.Time{}, false
	}
	sec := *i.CreatedUTC
	whole := int64(sec)
	nanos := int64((sec - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nanos).UTC(), true
}

// Clone returns a deep copy so callers can hand out items without aliasing
// the caller's pointers.
func (i EnrichedItem) Clone() EnrichedItem {
	out := i
	if i.Score != nil {
		v := *i.Score
		out.Score = &v
	}
	if i.NumComments != nil {
		v := *i.NumComments
		out.NumComments = &v
	}
	if i.Sentiment != nil {
		v := *i.Sentiment
		out.Sentiment = &v
	}
	if i.ClusterID != nil {
		v := *i.ClusterID
		out.ClusterID = &v
	}
	if i.CreatedUTC != nil {
		v := *i.CreatedUTC
		out.CreatedUTC = &v
	}
	return out
}

// Flag is a 0/1 signal. Upstream enrichers emit it either as a number or as
// a JSON boolean.
type Flag int

// UnmarshalJSON accepts true/false as well as integer values
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*f = 1
		return nil
	case "false", "null":
		*f = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = Flag(n)
	return nil
}

// Weights is the weight vector of the Problem Score formula
type Weights struct {
	Engagement float64 `json:"W_E" yaml:"W_E"`
	Negativity float64 `json:"W_N" yaml:"W_N"`
	Question   float64 `json:"W_Q" yaml:"W_Q"`
	Pain       float64 `json:"W_P" yaml:"W_P"`
	Density    float64 `json:"W_D" yaml:"W_D"`
	Freshness  float64 `json:"W_T" yaml:"W_T"`
}

// Why holds every raw sub-signal of a Problem Score together with the weights
// used, so the score can be rebuilt from the breakdown alone.
type Why struct {
	EngagementRaw  int64   `json:"engagement_raw"`
	EngagementZ    float64 `json:"engagement_z"`
	NegSentiment   float64 `json:"neg_sentiment"`
	IsQuestion     float64 `json:"is_question"`
	PainMarkers    float64 `json:"pain_markers"`
	ClusterDensity float64 `json:"cluster_density"`
	TimeDecay      float64 `json:"time_decay"`
	Weights        Weights `json:"weights"`
}

// Score recombines the breakdown into a Problem Score
func (w Why) Score() float64 {
	return w.Weights.Engagement*w.EngagementZ +
		w.Weights.Negativity*w.NegSentiment +
		w.Weights.Question*w.IsQuestion +
		w.Weights.Pain*w.PainMarkers +
		w.Weights.Density*w.ClusterDensity +
		w.Weights.Freshness*w.TimeDecay
}

// ScoredItem is an EnrichedItem with its Problem Score and breakdown
type ScoredItem struct {
	EnrichedItem
	ProblemScore float64 `json:"problem_score"`
	Why          Why     `json:"why"`
}

// Items unwraps scored items back into enriched items
func Items(scored []ScoredItem) []EnrichedItem {
	items := make([]EnrichedItem, len(scored))
	for i := range scored {
		items[i] = scored[i].EnrichedItem
	}
	return items
}
