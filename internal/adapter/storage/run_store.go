// internal/adapter/storage/run_store.go

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/research"
	"magnet/internal/domain/trend"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = research.ErrNotFound

// RunStore persists runs in Postgres
type RunStore struct {
	db *pgxpool.Pool
}

// NewRunStore creates a new run store
func NewRunStore(db *pgxpool.Pool) *RunStore {
	return &RunStore{
		db: db,
	}
}

// SaveRun writes a run with its ranked items and trend reports in one transaction
func (s *RunStore) SaveRun(ctx context.Context, run research.Run) error {
	settingsJSON, err := json.Marshal(run.Settings)
	if err != nil {
		return fmt.Errorf("error marshaling run settings: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, started_at, completed_at, total_items, config)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.StartedAt, run.CompletedAt, run.TotalItems, settingsJSON)
	if err != nil {
		return fmt.Errorf("error inserting run: %w", err)
	}

	batch := &pgx.Batch{}

	for rank, item := range run.Ranked {
		whyJSON, err := json.Marshal(item.Why)
		if err != nil {
			return fmt.Errorf("error marshaling why for item %s: %w", item.ID, err)
		}
		batch.Queue(`
			INSERT INTO scored_items (
				run_id, rank, item_id, source, title, body,
				score, num_comments, sentiment, is_question, pain_markers,
				cluster_id, created_utc, problem_score, why
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			run.ID, rank, item.ID, item.Source, item.Title, item.Body,
			item.Score, item.NumComments, item.Sentiment, int(item.IsQuestion), int(item.PainMarkers),
			item.ClusterID, item.CreatedUTC, item.ProblemScore, whyJSON,
		)
	}

	for pos, report := range run.Trends {
		tailJSON, err := json.Marshal(report.SeriesTail)
		if err != nil {
			return fmt.Errorf("error marshaling series tail for cluster %d: %w", report.ClusterID, err)
		}
		batch.Queue(`
			INSERT INTO cluster_trends (
				run_id, position, cluster_id, trend, sma_short, sma_long,
				last_count, size, series_tail, keywords, representatives
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			run.ID, pos, report.ClusterID, string(report.Trend), report.SMAShort, report.SMALong,
			report.LastCount, report.Size, tailJSON, report.TopKeywords, report.Representatives,
		)
	}

	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("error inserting run rows: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("error closing batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *RunStore) GetRun(ctx context.Context, id string) (*research.Run, error) {
	var run research.Run
	var settingsJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT id::text, started_at, completed_at, total_items, config
		FROM runs
		WHERE id::text = $1
	`, id).Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.TotalItems, &settingsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying run: %w", err)
	}

	if err := json.Unmarshal(settingsJSON, &run.Settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling run settings: %w", err)
	}

	if run.Ranked, err = s.rankedItems(ctx, id); err != nil {
		return nil, err
	}
	if run.Trends, err = s.clusterTrends(ctx, id); err != nil {
		return nil, err
	}

	return &run, nil
}

// ListRuns returns run summaries, newest first
func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]research.RunSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT
			r.id::text, r.started_at, r.completed_at, r.total_items,
			(SELECT count(*) FROM cluster_trends ct WHERE ct.run_id = r.id)
		FROM runs r
		ORDER BY r.completed_at DESC, r.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	runs := []research.RunSummary{}
	for rows.Next() {
		var r research.RunSummary
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &r.TotalItems, &r.Clusters); err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// LatestRun returns the most recently completed run
func (s *RunStore) LatestRun(ctx context.Context) (*research.Run, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT id::text FROM runs ORDER BY completed_at DESC, id LIMIT 1
	`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying latest run: %w", err)
	}

	return s.GetRun(ctx, id)
}

// ListItemsSince returns the items created at or after since across all runs,
// plus the undated items of runs completed at or after since. An item stored
// by several runs is returned once, as the newest run saw it.
func (s *RunStore) ListItemsSince(ctx context.Context, since time.Time) ([]problem.EnrichedItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (si.item_id)
			si.item_id, si.source, si.title, si.body,
			si.score, si.num_comments, si.sentiment, si.is_question, si.pain_markers,
			si.cluster_id, si.created_utc
		FROM scored_items si
		JOIN runs r ON r.id = si.run_id
		WHERE si.item_id <> ''
			AND (si.created_utc >= $1 OR (si.created_utc IS NULL AND r.completed_at >= $2))
		ORDER BY si.item_id, r.completed_at DESC
	`, float64(since.Unix()), since)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var items []problem.EnrichedItem
	for rows.Next() {
		var item problem.EnrichedItem
		var isQuestion, pain int

		err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.Title,
			&item.Body,
			&item.Score,
			&item.NumComments,
			&item.Sentiment,
			&isQuestion,
			&pain,
			&item.ClusterID,
			&item.CreatedUTC,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning item: %w", err)
		}

		item.IsQuestion = problem.Flag(isQuestion)
		item.PainMarkers = problem.Flag(pain)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

func (s *RunStore) rankedItems(ctx context.Context, runID string) ([]problem.ScoredItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT
			item_id, source, title, body,
			score, num_comments, sentiment, is_question, pain_markers,
			cluster_id, created_utc, problem_score, why
		FROM scored_items
		WHERE run_id::text = $1
		ORDER BY rank
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("error querying scored items: %w", err)
	}
	defer rows.Close()

	ranked := []problem.ScoredItem{}
	for rows.Next() {
		var item problem.ScoredItem
		var isQuestion, pain int
		var whyJSON []byte

		err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.Title,
			&item.Body,
			&item.Score,
			&item.NumComments,
			&item.Sentiment,
			&isQuestion,
			&pain,
			&item.ClusterID,
			&item.CreatedUTC,
			&item.ProblemScore,
			&whyJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning scored item: %w", err)
		}

		item.IsQuestion = problem.Flag(isQuestion)
		item.PainMarkers = problem.Flag(pain)
		if err := json.Unmarshal(whyJSON, &item.Why); err != nil {
			return nil, fmt.Errorf("error unmarshaling why: %w", err)
		}

		ranked = append(ranked, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scored items: %w", err)
	}

	return ranked, nil
}

func (s *RunStore) clusterTrends(ctx context.Context, runID string) ([]trend.ClusterTrendReport, error) {
	rows, err := s.db.Query(ctx, `
		SELECT
			cluster_id, trend, sma_short, sma_long, last_count, size,
			series_tail, keywords, representatives
		FROM cluster_trends
		WHERE run_id::text = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("error querying cluster trends: %w", err)
	}
	defer rows.Close()

	reports := []trend.ClusterTrendReport{}
	for rows.Next() {
		var r trend.ClusterTrendReport
		var label string
		var tailJSON []byte

		err := rows.Scan(
			&r.ClusterID,
			&label,
			&r.SMAShort,
			&r.SMALong,
			&r.LastCount,
			&r.Size,
			&tailJSON,
			&r.TopKeywords,
			&r.Representatives,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning cluster trend: %w", err)
		}

		r.Trend = trend.Classification(label)
		if err := json.Unmarshal(tailJSON, &r.SeriesTail); err != nil {
			return nil, fmt.Errorf("error unmarshaling series tail: %w", err)
		}

		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cluster trends: %w", err)
	}

	return reports, nil
}
