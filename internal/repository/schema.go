package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL bootstraps every table the pipeline touches. Statements are
// idempotent so EnsureSchema can run on every startup.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS resume_jobs (
		id                UUID PRIMARY KEY,
		owner_id          TEXT NOT NULL,
		document_ref      TEXT NOT NULL,
		file_name         TEXT NOT NULL DEFAULT '',
		extracted_text    TEXT,
		status            TEXT NOT NULL DEFAULT 'PENDING',
		score             INT,
		optimized_content TEXT,
		error_message     TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_resume_jobs_owner ON resume_jobs (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_resume_jobs_status ON resume_jobs (status)`,

	`CREATE TABLE IF NOT EXISTS candidate_profiles (
		job_id              UUID PRIMARY KEY REFERENCES resume_jobs (id) ON DELETE CASCADE,
		full_name           TEXT NOT NULL,
		email               TEXT NOT NULL DEFAULT '',
		phone               TEXT,
		location            TEXT,
		skills              TEXT[] NOT NULL DEFAULT '{}',
		years_of_experience INT,
		current_title       TEXT,
		education           TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS suggestions (
		id          BIGSERIAL PRIMARY KEY,
		job_id      UUID NOT NULL REFERENCES resume_jobs (id) ON DELETE CASCADE,
		position    INT NOT NULL,
		category    TEXT NOT NULL,
		description TEXT NOT NULL,
		priority    INT NOT NULL CHECK (priority BETWEEN 1 AND 5)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_job ON suggestions (job_id)`,

	`CREATE TABLE IF NOT EXISTS queue_messages (
		id             BIGSERIAL PRIMARY KEY,
		payload        JSONB NOT NULL,
		delivery_count INT NOT NULL DEFAULT 0,
		visible_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		enqueued_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_messages_visible ON queue_messages (visible_at)`,

	`CREATE TABLE IF NOT EXISTS poison_messages (
		id         BIGSERIAL PRIMARY KEY,
		record     JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	for _, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Error("schema bootstrap failed", "error", err)
			return err
		}
	}
	logger.Debug("schema bootstrap complete")
	return nil
}
