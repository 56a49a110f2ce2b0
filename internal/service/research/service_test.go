package research

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/research"
	"magnet/internal/domain/trend"
	"magnet/internal/service/scoring"
	"magnet/internal/service/trending"
)

type memoryStore struct {
	mu      sync.Mutex
	runs    map[string]research.Run
	items   []problem.EnrichedItem
	since   time.Time
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{runs: make(map[string]research.Run)}
}

func (m *memoryStore) SaveRun(_ context.Context, run research.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.runs[run.ID] = run
	return nil
}

func (m *memoryStore) GetRun(_ context.Context, id string) (*research.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, research.ErrNotFound
	}
	return &run, nil
}

func (m *memoryStore) ListRuns(_ context.Context, limit, offset int) ([]research.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summaries := make([]research.RunSummary, 0, len(m.runs))
	for _, run := range m.runs {
		summaries = append(summaries, run.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CompletedAt.Equal(summaries[j].CompletedAt) {
			return summaries[i].CompletedAt.After(summaries[j].CompletedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	if offset >= len(summaries) {
		return []research.RunSummary{}, nil
	}
	summaries = summaries[offset:]
	if limit < len(summaries) {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (m *memoryStore) LatestRun(ctx context.Context) (*research.Run, error) {
	latest, err := m.ListRuns(ctx, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, research.ErrNotFound
	}
	return m.GetRun(ctx, latest[0].ID)
}

func (m *memoryStore) ListItemsSince(_ context.Context, since time.Time) ([]problem.EnrichedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	return m.items, nil
}

type recordingPublisher struct {
	trends    []string
	completed []int
	err       error
}

func (p *recordingPublisher) PublishTrend(_ context.Context, runID string, report trend.ClusterTrendReport) error {
	p.trends = append(p.trends, fmt.Sprintf("%s/%d/%s", runID, report.ClusterID, report.Trend))
	return p.err
}

func (p *recordingPublisher) PublishRunCompleted(_ context.Context, _ string, totalItems int, clusters int) error {
	p.completed = append(p.completed, totalItems, clusters)
	return p.err
}

var fixedNow = time.Unix(1_700_000_000, 0)

func newService(store RunStore, publisher trend.Publisher) *Service {
	svc := NewService(
		scoring.NewScorer(scoring.DefaultConfig(), nil),
		trending.NewAnalyzer(trending.DefaultConfig(), nil),
		store,
		publisher,
		nil,
	)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func clusteredBatch(clusterID, n int) []problem.EnrichedItem {
	items := make([]problem.EnrichedItem, 0, n)
	for i := 0; i < n; i++ {
		c := clusterID
		score := int64(i * 3)
		created := float64(fixedNow.Unix() - int64(i)*3600)
		items = append(items, problem.EnrichedItem{
			ID:         fmt.Sprintf("c%d-%d", clusterID, i),
			Score:      &score,
			ClusterID:  &c,
			CreatedUTC: &created,
		})
	}
	return items
}

func TestRunStoresAndPublishes(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{}
	svc := newService(store, pub)

	var handled []string
	svc.RegisterRunHandler(func(run research.Run) error {
		handled = append(handled, run.ID)
		return nil
	})

	batch := research.Batch{
		Items:    append(clusteredBatch(1, 4), clusteredBatch(2, 2)...),
		Clusters: []trend.ClusterMeta{{ClusterID: 1, TopKeywords: []string{"billing"}}},
		Top:      2,
	}

	run, err := svc.Run(context.Background(), batch)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 6, run.TotalItems)
	assert.Len(t, run.Ranked, 6)
	assert.Len(t, run.TopRanked(batch.Top), 2)
	require.Len(t, run.Trends, 1)
	assert.Equal(t, []string{"billing"}, run.Trends[0].TopKeywords)
	assert.Equal(t, 6.0, run.Settings.BucketHours)
	assert.Equal(t, 0.35, run.Settings.Weights.Engagement)

	stored, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, stored.ID)

	assert.Len(t, pub.trends, 1)
	assert.Equal(t, []int{6, 1}, pub.completed)
	assert.Equal(t, []string{run.ID}, handled)
}

func TestRunRejectsInvalidBatch(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{}
	svc := newService(store, pub)

	bad := 2.0
	_, err := svc.Run(context.Background(), research.Batch{
		Items: []problem.EnrichedItem{{ID: "ok"}, {ID: "bad", Sentiment: &bad}},
	})

	var verr *problem.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 1, verr.Index)
	assert.Empty(t, store.runs)
	assert.Empty(t, pub.completed)
}

func TestRunStoreFailureIsReturned(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = errors.New("database down")
	pub := &recordingPublisher{}

	_, err := newService(store, pub).Run(context.Background(), research.Batch{Items: clusteredBatch(1, 3)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, store.saveErr))
	assert.Empty(t, pub.completed)
}

func TestRunSurvivesPublishFailure(t *testing.T) {
	store := newMemoryStore()
	pub := &recordingPublisher{err: errors.New("nats down")}

	run, err := newService(store, pub).Run(context.Background(), research.Batch{Items: clusteredBatch(1, 3)})

	require.NoError(t, err)
	assert.Contains(t, store.runs, run.ID)
}

func TestRunWithoutPublisher(t *testing.T) {
	store := newMemoryStore()

	_, err := newService(store, nil).Run(context.Background(), research.Batch{Items: clusteredBatch(1, 3)})

	assert.NoError(t, err)
}

func TestRefreshAnalyzesStoredItems(t *testing.T) {
	store := newMemoryStore()
	store.items = clusteredBatch(5, 4)
	pub := &recordingPublisher{}
	svc := newService(store, pub)

	since := fixedNow.Add(-72 * time.Hour)
	refresh, err := svc.Refresh(context.Background(), since)
	require.NoError(t, err)

	assert.True(t, since.Equal(store.since))
	assert.Equal(t, 4, refresh.Items)
	require.Len(t, refresh.Trends, 1)
	assert.Equal(t, 5, refresh.Trends[0].ClusterID)
	assert.Equal(t, []int{4, 1}, pub.completed)
}

func TestScoreAndTrendsDoNotPersist(t *testing.T) {
	store := newMemoryStore()
	svc := newService(store, nil)

	ranked, err := svc.Score(clusteredBatch(1, 5), 3)
	require.NoError(t, err)
	assert.Len(t, ranked, 3)

	reports, err := svc.Trends(clusteredBatch(1, 5), nil)
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	assert.Empty(t, store.runs)
}

func TestTrendsValidatesItems(t *testing.T) {
	neg := int64(-3)
	_, err := newService(newMemoryStore(), nil).Trends([]problem.EnrichedItem{{ID: "x", NumComments: &neg}}, nil)

	var verr *problem.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "num_comments", verr.Field)
}

func TestListRunsAndLatest(t *testing.T) {
	store := newMemoryStore()
	svc := newService(store, nil)
	ctx := context.Background()

	_, err := svc.LatestRun(ctx)
	assert.True(t, errors.Is(err, research.ErrNotFound))

	var ids []string
	for i := 0; i < 3; i++ {
		svc.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Minute) }
		run, err := svc.Run(ctx, research.Batch{Items: clusteredBatch(1, 3)})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	latest, err := svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)

	page, err := svc.ListRuns(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[0], page[1].ID)
	assert.Equal(t, 3, page[0].TotalItems)
	assert.Equal(t, 1, page[0].Clusters)
}

func TestExportRunCSV(t *testing.T) {
	store := newMemoryStore()
	svc := newService(store, nil)
	ctx := context.Background()

	run, err := svc.Run(ctx, research.Batch{Items: clusteredBatch(1, 3)})
	require.NoError(t, err)
	run.Ranked[0].Title = "Export, with \"quotes\""
	store.runs[run.ID] = *run

	var buf bytes.Buffer
	require.NoError(t, svc.ExportRun(ctx, run.ID, research.ExportCSV, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, run.Ranked[0].ID, records[1][1])
	assert.Equal(t, "Export, with \"quotes\"", records[1][3])
	assert.Equal(t, "1", records[1][12])
}

func TestExportRunFormats(t *testing.T) {
	store := newMemoryStore()
	svc := newService(store, nil)
	ctx := context.Background()

	run, err := svc.Run(ctx, research.Batch{
		Items:    clusteredBatch(1, 3),
		Clusters: []trend.ClusterMeta{{ClusterID: 1, TopKeywords: []string{"billing"}}},
	})
	require.NoError(t, err)

	var js bytes.Buffer
	require.NoError(t, svc.ExportRun(ctx, run.ID, research.ExportJSON, &js))
	assert.Contains(t, js.String(), `"id": "`+run.ID+`"`)

	var md bytes.Buffer
	require.NoError(t, svc.ExportRun(ctx, run.ID, research.ExportMarkdown, &md))
	assert.True(t, strings.HasPrefix(md.String(), "# Research Results - Run "+run.ID))
	assert.Contains(t, md.String(), "Keywords: billing")

	err = svc.ExportRun(ctx, run.ID, research.ExportFormat("xml"), &bytes.Buffer{})
	assert.True(t, errors.Is(err, research.ErrUnknownFormat))

	err = svc.ExportRun(ctx, "missing", research.ExportCSV, &bytes.Buffer{})
	assert.True(t, errors.Is(err, research.ErrNotFound))
}
