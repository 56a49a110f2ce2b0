// internal/adapter/storage/schema.go

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		total_items INTEGER NOT NULL,
		config JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scored_items (
		run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		rank INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		score BIGINT,
		num_comments BIGINT,
		sentiment DOUBLE PRECISION,
		is_question SMALLINT NOT NULL DEFAULT 0,
		pain_markers SMALLINT NOT NULL DEFAULT 0,
		cluster_id INTEGER,
		created_utc DOUBLE PRECISION,
		problem_score DOUBLE PRECISION NOT NULL,
		why JSONB NOT NULL,
		PRIMARY KEY (run_id, rank)
	)`,
	`CREATE INDEX IF NOT EXISTS scored_items_created_idx ON scored_items (created_utc)`,
	`CREATE TABLE IF NOT EXISTS cluster_trends (
		run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		cluster_id INTEGER NOT NULL,
		trend TEXT NOT NULL,
		sma_short DOUBLE PRECISION NOT NULL,
		sma_long DOUBLE PRECISION NOT NULL,
		last_count INTEGER NOT NULL,
		size INTEGER NOT NULL,
		series_tail JSONB NOT NULL,
		keywords TEXT[],
		representatives TEXT[],
		PRIMARY KEY (run_id, cluster_id)
	)`,
}

// Migrate creates the run tables if they do not exist
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	return nil
}
