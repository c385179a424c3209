package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS qbo_tokens (
		company_id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		prospect_id BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ NOT NULL,
		refresh_expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS prospects (
		id BIGINT PRIMARY KEY,
		company_name TEXT NOT NULL DEFAULT '',
		contact_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		industry TEXT NOT NULL DEFAULT '',
		qb_company_id TEXT NOT NULL DEFAULT '',
		workflow_stage TEXT NOT NULL DEFAULT 'needs_prospect_info',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prospects_qb_company_id ON prospects (qb_company_id)`,
	`CREATE TABLE IF NOT EXISTS financial_snapshots (
		id BIGINT PRIMARY KEY,
		company_id TEXT NOT NULL,
		revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
		expenses DOUBLE PRECISION NOT NULL DEFAULT 0,
		net_income DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_assets DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_liabilities DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
		debt_to_equity DOUBLE PRECISION NOT NULL DEFAULT 0,
		operating_margin DOUBLE PRECISION NOT NULL DEFAULT 0,
		gross_margin DOUBLE PRECISION NOT NULL DEFAULT 0,
		revenue_growth_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_company_created ON financial_snapshots (company_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS call_transcripts (
		id BIGINT PRIMARY KEY,
		prospect_id BIGINT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		call_date TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcripts_prospect ON call_transcripts (prospect_id)`,
	`CREATE TABLE IF NOT EXISTS ai_analyses (
		id BIGINT PRIMARY KEY,
		prospect_id BIGINT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		closeability_score INT NOT NULL DEFAULT 0,
		financial_health_score INT NOT NULL DEFAULT 0,
		insights JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_prospect_created ON ai_analyses (prospect_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS generated_reports (
		id BIGINT PRIMARY KEY,
		prospect_id BIGINT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables QuickScope needs when they do not exist.
// Statements are idempotent so startup stays safe across restarts.
func EnsureSchema(pool *pgxpool.Pool, logger *zap.Logger) error {
	ctx := context.Background()
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info("database schema ensured")
	return nil
}
