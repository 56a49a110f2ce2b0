// internal/domain/trend/detector.go

package trend

import (
	"context"

	"magnet/internal/domain/problem"
)

// Analyzer classifies the trajectory of every qualifying cluster in a batch
type Analyzer interface {
	// Run returns one report per cluster with enough support, most active first
	Run(items []problem.EnrichedItem, meta []ClusterMeta) []ClusterTrendReport
}

// Publisher delivers trend reports to downstream consumers
type Publisher interface {
	// PublishTrend announces the classification of one cluster
	PublishTrend(ctx context.Context, runID string, report ClusterTrendReport) error

	// PublishRunCompleted announces that a run finished
	PublishRunCompleted(ctx context.Context, runID string, totalItems int, clusters int) error
}
