// internal/domain/research/model.go

package research

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/trend"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

// Batch is one request to score and analyze a set of enriched items
type Batch struct {
	Items    []problem.EnrichedItem `json:"items"`
	Clusters []trend.ClusterMeta    `json:"clusters"`
	Top      int                    `json:"top"`
}

// Settings records the parameters a run was computed with
type Settings struct {
	Weights          problem.Weights `json:"weights"`
	HalfLifeHours    float64         `json:"half_life_hours"`
	DensityNorm      float64         `json:"density_norm"`
	BucketHours      float64         `json:"bucket_hours"`
	WindowShortHours float64         `json:"window_short_hours"`
	WindowLongHours  float64         `json:"window_long_hours"`
	TrendDelta       float64         `json:"trend_delta"`
	MinSupport       int             `json:"min_support"`
}

// Run is one persisted execution of scoring and trend analysis over a batch.
// Ranked always holds the full ranking.
type Run struct {
	ID          string                     `json:"id"`
	StartedAt   time.Time                  `json:"started_at"`
	CompletedAt time.Time                  `json:"completed_at"`
	TotalItems  int                        `json:"total_items"`
	Settings    Settings                   `json:"settings"`
	Ranked      []problem.ScoredItem       `json:"ranked"`
	Trends      []trend.ClusterTrendReport `json:"trends"`
}

// TopRanked returns the first n ranked items, or all of them when n <= 0
func (r Run) TopRanked(n int) []problem.ScoredItem {
	if n <= 0 || n >= len(r.Ranked) {
		return r.Ranked
	}
	return r.Ranked[:n]
}

// RunSummary is the listing view of a stored run
type RunSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	TotalItems  int       `json:"total_items"`
	Clusters    int       `json:"clusters"`
}

// Summary returns the listing view of the run
func (r Run) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		TotalItems:  r.TotalItems,
		Clusters:    len(r.Trends),
	}
}

// ExportFormat names a run export encoding
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportCSV      ExportFormat = "csv"
	ExportMarkdown ExportFormat = "markdown"
)

// ErrUnknownFormat is returned for an export format that is not supported
var ErrUnknownFormat = errors.New("unknown export format")

// ParseExportFormat resolves a format name. An empty name means JSON.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(name)); f {
	case "":
		return ExportJSON, nil
	case ExportJSON, ExportCSV, ExportMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// ContentType returns the media type of the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportCSV:
		return "text/csv"
	case ExportMarkdown:
		return "text/markdown"
	default:
		return "application/json"
	}
}

// Extension returns the file extension used for downloads
func (f ExportFormat) Extension() string {
	if f == ExportMarkdown {
		return "md"
	}
	return string(f)
}

// Refresh is the outcome of re-analyzing stored items
type Refresh struct {
	ID     string                     `json:"id"`
	Since  time.Time                  `json:"since"`
	Items  int                        `json:"total_items"`
	Trends []trend.ClusterTrendReport `json:"trends"`
}
