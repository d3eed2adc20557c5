package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"reportserver/src/config"
)

func SetupDB(cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.Databases.SQL.ConnectionString
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			cfg.Databases.SQL.Host,
			cfg.Databases.SQL.Username,
			cfg.Databases.SQL.Password,
			cfg.Databases.SQL.Database,
			cfg.Databases.SQL.Port)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}
	return pool, nil
}

// EnsureSchema creates the scheduler tables if they do not exist. It is
// idempotent and safe to call on every process start, so no process-global
// "tables ready" flag is needed. Deployments that run goose migrations get
// the same DDL; this covers tests and fresh local databases.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_report_schedules (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			report_key TEXT NOT NULL,
			org_id TEXT,
			cadence TEXT NOT NULL,
			time_of_day TEXT NOT NULL DEFAULT '08:00',
			day_of_week INT,
			day_of_month INT,
			format TEXT NOT NULL DEFAULT 'csv',
			recipients JSONB NOT NULL DEFAULT '[]'::jsonb,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			next_run_at TIMESTAMPTZ,
			last_run_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_by TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_report_schedules_due
			ON scheduled_report_schedules (next_run_at, id)
			WHERE enabled = TRUE`,
		`CREATE TABLE IF NOT EXISTS scheduled_report_runs (
			id BIGSERIAL PRIMARY KEY,
			schedule_id BIGINT NOT NULL REFERENCES scheduled_report_schedules(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'queued',
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			error TEXT,
			output_filename TEXT,
			output_content_type TEXT,
			output_encoding TEXT,
			output_bytes BYTEA,
			output_size_bytes BIGINT,
			download_token_hash TEXT,
			download_expires_at TIMESTAMPTZ,
			delivered_to JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_report_runs_schedule
			ON scheduled_report_runs (schedule_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
