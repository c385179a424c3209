package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Staxx7/quickscope-sub003/internal/domain"
)

// Compile-time interface assertions.
var (
	_ TokenRepository      = (*PostgresTokenRepo)(nil)
	_ ProspectRepository   = (*PostgresProspectRepo)(nil)
	_ SnapshotRepository   = (*PostgresSnapshotRepo)(nil)
	_ TranscriptRepository = (*PostgresTranscriptRepo)(nil)
	_ AnalysisRepository   = (*PostgresAnalysisRepo)(nil)
	_ ReportRepository     = (*PostgresReportRepo)(nil)
	_ Disconnector         = (*PostgresDisconnector)(nil)
)

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

const upsertTokenSQL = `INSERT INTO qbo_tokens (company_id, company_name, access_token, refresh_token, prospect_id, expires_at, refresh_expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT (company_id) DO UPDATE SET
    company_name = EXCLUDED.company_name,
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    prospect_id = EXCLUDED.prospect_id,
    expires_at = EXCLUDED.expires_at,
    refresh_expires_at = EXCLUDED.refresh_expires_at,
    updated_at = now()
RETURNING company_id, company_name, access_token, refresh_token, prospect_id, expires_at, refresh_expires_at, created_at, updated_at`

func (r *PostgresTokenRepo) Upsert(ctx context.Context, record domain.TokenRecord) (domain.TokenRecord, error) {
	row := r.db.QueryRow(ctx, upsertTokenSQL,
		record.CompanyID,
		record.CompanyName,
		record.AccessToken,
		record.RefreshToken,
		record.ProspectID,
		record.ExpiresAt,
		record.RefreshExpiresAt,
	)
	stored, err := scanToken(row)
	if err != nil {
		return domain.TokenRecord{}, &domain.StoreError{Op: "upsert token", Err: err}
	}
	return stored, nil
}

const getTokenSQL = `SELECT company_id, company_name, access_token, refresh_token, prospect_id, expires_at, refresh_expires_at, created_at, updated_at
FROM qbo_tokens WHERE company_id = $1`

func (r *PostgresTokenRepo) Get(ctx context.Context, companyID string) (domain.TokenRecord, error) {
	record, err := scanToken(r.db.QueryRow(ctx, getTokenSQL, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TokenRecord{}, domain.ErrNotConnected
		}
		return domain.TokenRecord{}, fmt.Errorf("get token: %w", err)
	}
	return record, nil
}

func (r *PostgresTokenRepo) Delete(ctx context.Context, companyID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM qbo_tokens WHERE company_id = $1`, companyID); err != nil {
		return &domain.StoreError{Op: "delete token", Err: err}
	}
	return nil
}

func (r *PostgresTokenRepo) List(ctx context.Context) ([]domain.TokenRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT company_id, company_name, access_token, refresh_token, prospect_id, expires_at, refresh_expires_at, created_at, updated_at
FROM qbo_tokens ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var records []domain.TokenRecord
	for rows.Next() {
		record, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanToken(row pgx.Row) (domain.TokenRecord, error) {
	var record domain.TokenRecord
	err := row.Scan(
		&record.CompanyID,
		&record.CompanyName,
		&record.AccessToken,
		&record.RefreshToken,
		&record.ProspectID,
		&record.ExpiresAt,
		&record.RefreshExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	return record, err
}

// PostgresProspectRepo implements ProspectRepository.
type PostgresProspectRepo struct {
	db *pgxpool.Pool
}

func NewPostgresProspectRepo(pool *pgxpool.Pool) *PostgresProspectRepo {
	return &PostgresProspectRepo{db: pool}
}

const upsertProspectSQL = `INSERT INTO prospects (id, company_name, contact_name, email, phone, industry, qb_company_id, workflow_stage, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
ON CONFLICT (email) DO UPDATE SET
    company_name = EXCLUDED.company_name,
    contact_name = EXCLUDED.contact_name,
    phone = EXCLUDED.phone,
    industry = EXCLUDED.industry,
    qb_company_id = CASE WHEN EXCLUDED.qb_company_id <> '' THEN EXCLUDED.qb_company_id ELSE prospects.qb_company_id END,
    updated_at = now()
RETURNING id, company_name, contact_name, email, phone, industry, qb_company_id, workflow_stage, created_at, updated_at`

func (r *PostgresProspectRepo) UpsertByEmail(ctx context.Context, prospect domain.Prospect) (domain.Prospect, error) {
	row := r.db.QueryRow(ctx, upsertProspectSQL,
		prospect.ID,
		prospect.CompanyName,
		prospect.ContactName,
		prospect.Email,
		prospect.Phone,
		prospect.Industry,
		prospect.QBCompanyID,
		prospect.WorkflowStage,
	)
	stored, err := scanProspect(row)
	if err != nil {
		return domain.Prospect{}, &domain.StoreError{Op: "upsert prospect", Err: err}
	}
	return stored, nil
}

const selectProspectSQL = `SELECT id, company_name, contact_name, email, phone, industry, qb_company_id, workflow_stage, created_at, updated_at FROM prospects`

func (r *PostgresProspectRepo) GetByID(ctx context.Context, id int64) (domain.Prospect, error) {
	prospect, err := scanProspect(r.db.QueryRow(ctx, selectProspectSQL+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prospect{}, domain.ErrProspectNotFound
		}
		return domain.Prospect{}, fmt.Errorf("get prospect: %w", err)
	}
	return prospect, nil
}

func (r *PostgresProspectRepo) GetByCompanyID(ctx context.Context, companyID string) (domain.Prospect, error) {
	prospect, err := scanProspect(r.db.QueryRow(ctx, selectProspectSQL+` WHERE qb_company_id = $1`, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prospect{}, domain.ErrProspectNotFound
		}
		return domain.Prospect{}, fmt.Errorf("get prospect by company: %w", err)
	}
	return prospect, nil
}

func (r *PostgresProspectRepo) List(ctx context.Context) ([]domain.Prospect, error) {
	rows, err := r.db.Query(ctx, selectProspectSQL+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list prospects: %w", err)
	}
	defer rows.Close()

	var prospects []domain.Prospect
	for rows.Next() {
		prospect, err := scanProspect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prospect: %w", err)
		}
		prospects = append(prospects, prospect)
	}
	return prospects, rows.Err()
}

func (r *PostgresProspectRepo) UpdateWorkflowStage(ctx context.Context, prospectID int64, stage domain.WorkflowStage) error {
	tag, err := r.db.Exec(ctx, `UPDATE prospects SET workflow_stage = $2, updated_at = now() WHERE id = $1`, prospectID, stage)
	if err != nil {
		return &domain.StoreError{Op: "update workflow stage", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProspectNotFound
	}
	return nil
}

func scanProspect(row pgx.Row) (domain.Prospect, error) {
	var prospect domain.Prospect
	err := row.Scan(
		&prospect.ID,
		&prospect.CompanyName,
		&prospect.ContactName,
		&prospect.Email,
		&prospect.Phone,
		&prospect.Industry,
		&prospect.QBCompanyID,
		&prospect.WorkflowStage,
		&prospect.CreatedAt,
		&prospect.UpdatedAt,
	)
	return prospect, err
}

// PostgresSnapshotRepo implements SnapshotRepository.
type PostgresSnapshotRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSnapshotRepo(pool *pgxpool.Pool) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: pool}
}

const insertSnapshotSQL = `INSERT INTO financial_snapshots (id, company_id, revenue, expenses, net_income, total_assets, total_liabilities, current_ratio, debt_to_equity, operating_margin, gross_margin, revenue_growth_rate, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
RETURNING id, company_id, revenue, expenses, net_income, total_assets, total_liabilities, current_ratio, debt_to_equity, operating_margin, gross_margin, revenue_growth_rate, created_at`

func (r *PostgresSnapshotRepo) Insert(ctx context.Context, snapshot domain.FinancialSnapshot) (domain.FinancialSnapshot, error) {
	row := r.db.QueryRow(ctx, insertSnapshotSQL,
		snapshot.ID,
		snapshot.CompanyID,
		snapshot.Revenue,
		snapshot.Expenses,
		snapshot.NetIncome,
		snapshot.TotalAssets,
		snapshot.TotalLiabilities,
		snapshot.CurrentRatio,
		snapshot.DebtToEquity,
		snapshot.OperatingMargin,
		snapshot.GrossMargin,
		snapshot.RevenueGrowthRate,
	)
	stored, err := scanSnapshot(row)
	if err != nil {
		return domain.FinancialSnapshot{}, &domain.StoreError{Op: "insert snapshot", Err: err}
	}
	return stored, nil
}

const latestSnapshotSQL = `SELECT id, company_id, revenue, expenses, net_income, total_assets, total_liabilities, current_ratio, debt_to_equity, operating_margin, gross_margin, revenue_growth_rate, created_at
FROM financial_snapshots WHERE company_id = $1 ORDER BY created_at DESC LIMIT 1`

func (r *PostgresSnapshotRepo) LatestByCompany(ctx context.Context, companyID string) (domain.FinancialSnapshot, error) {
	snapshot, err := scanSnapshot(r.db.QueryRow(ctx, latestSnapshotSQL, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FinancialSnapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.FinancialSnapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *PostgresSnapshotRepo) CountByCompany(ctx context.Context, companyID string) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM financial_snapshots WHERE company_id = $1`, companyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

func scanSnapshot(row pgx.Row) (domain.FinancialSnapshot, error) {
	var snapshot domain.FinancialSnapshot
	err := row.Scan(
		&snapshot.ID,
		&snapshot.CompanyID,
		&snapshot.Revenue,
		&snapshot.Expenses,
		&snapshot.NetIncome,
		&snapshot.TotalAssets,
		&snapshot.TotalLiabilities,
		&snapshot.CurrentRatio,
		&snapshot.DebtToEquity,
		&snapshot.OperatingMargin,
		&snapshot.GrossMargin,
		&snapshot.RevenueGrowthRate,
		&snapshot.CreatedAt,
	)
	return snapshot, err
}

// PostgresTranscriptRepo implements TranscriptRepository.
type PostgresTranscriptRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTranscriptRepo(pool *pgxpool.Pool) *PostgresTranscriptRepo {
	return &PostgresTranscriptRepo{db: pool}
}

const insertTranscriptSQL = `INSERT INTO call_transcripts (id, prospect_id, company_id, content, call_date, created_at)
VALUES ($1, $2, $3, $4, $5, now())
RETURNING id, prospect_id, company_id, content, call_date, created_at`

func (r *PostgresTranscriptRepo) Insert(ctx context.Context, transcript domain.CallTranscript) (domain.CallTranscript, error) {
	row := r.db.QueryRow(ctx, insertTranscriptSQL,
		transcript.ID,
		transcript.ProspectID,
		transcript.CompanyID,
		transcript.Content,
		transcript.CallDate,
	)
	var stored domain.CallTranscript
	if err := row.Scan(&stored.ID, &stored.ProspectID, &stored.CompanyID, &stored.Content, &stored.CallDate, &stored.CreatedAt); err != nil {
		return domain.CallTranscript{}, &domain.StoreError{Op: "insert transcript", Err: err}
	}
	return stored, nil
}

func (r *PostgresTranscriptRepo) CountByProspect(ctx context.Context, prospectID int64) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM call_transcripts WHERE prospect_id = $1`, prospectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transcripts: %w", err)
	}
	return count, nil
}

func (r *PostgresTranscriptRepo) ListByProspect(ctx context.Context, prospectID int64) ([]domain.CallTranscript, error) {
	rows, err := r.db.Query(ctx, `SELECT id, prospect_id, company_id, content, call_date, created_at
FROM call_transcripts WHERE prospect_id = $1 ORDER BY created_at DESC`, prospectID)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var transcripts []domain.CallTranscript
	for rows.Next() {
		var t domain.CallTranscript
		if err := rows.Scan(&t.ID, &t.ProspectID, &t.CompanyID, &t.Content, &t.CallDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, rows.Err()
}

// PostgresAnalysisRepo implements AnalysisRepository.
type PostgresAnalysisRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAnalysisRepo(pool *pgxpool.Pool) *PostgresAnalysisRepo {
	return &PostgresAnalysisRepo{db: pool}
}

const insertAnalysisSQL = `INSERT INTO ai_analyses (id, prospect_id, company_id, closeability_score, financial_health_score, insights, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING id, prospect_id, company_id, closeability_score, financial_health_score, insights, created_at`

func (r *PostgresAnalysisRepo) Insert(ctx context.Context, analysis domain.AIAnalysis) (domain.AIAnalysis, error) {
	stored, err := scanAnalysis(r.db.QueryRow(ctx, insertAnalysisSQL,
		analysis.ID,
		analysis.ProspectID,
		analysis.CompanyID,
		analysis.CloseabilityScore,
		analysis.FinancialHealthScore,
		analysis.Insights,
	))
	if err != nil {
		return domain.AIAnalysis{}, &domain.StoreError{Op: "insert analysis", Err: err}
	}
	return stored, nil
}

const latestAnalysisSQL = `SELECT id, prospect_id, company_id, closeability_score, financial_health_score, insights, created_at
FROM ai_analyses WHERE prospect_id = $1 ORDER BY created_at DESC LIMIT 1`

func (r *PostgresAnalysisRepo) LatestByProspect(ctx context.Context, prospectID int64) (domain.AIAnalysis, error) {
	analysis, err := scanAnalysis(r.db.QueryRow(ctx, latestAnalysisSQL, prospectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AIAnalysis{}, pgx.ErrNoRows
		}
		return domain.AIAnalysis{}, fmt.Errorf("latest analysis: %w", err)
	}
	return analysis, nil
}

func (r *PostgresAnalysisRepo) CountByProspect(ctx context.Context, prospectID int64) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM ai_analyses WHERE prospect_id = $1`, prospectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return count, nil
}

func scanAnalysis(row pgx.Row) (domain.AIAnalysis, error) {
	var analysis domain.AIAnalysis
	err := row.Scan(
		&analysis.ID,
		&analysis.ProspectID,
		&analysis.CompanyID,
		&analysis.CloseabilityScore,
		&analysis.FinancialHealthScore,
		&analysis.Insights,
		&analysis.CreatedAt,
	)
	return analysis, err
}

// PostgresReportRepo implements ReportRepository.
type PostgresReportRepo struct {
	db *pgxpool.Pool
}

func NewPostgresReportRepo(pool *pgxpool.Pool) *PostgresReportRepo {
	return &PostgresReportRepo{db: pool}
}

const insertReportSQL = `INSERT INTO generated_reports (id, prospect_id, company_id, title, payload, created_at)
VALUES ($1, $2, $3, $4, $5, now())
RETURNING id, prospect_id, company_id, title, payload, created_at`

func (r *PostgresReportRepo) Insert(ctx context.Context, report domain.GeneratedReport) (domain.GeneratedReport, error) {
	row := r.db.QueryRow(ctx, insertReportSQL,
		report.ID,
		report.ProspectID,
		report.CompanyID,
		report.Title,
		report.Payload,
	)
	var stored domain.GeneratedReport
	if err := row.Scan(&stored.ID, &stored.ProspectID, &stored.CompanyID, &stored.Title, &stored.Payload, &stored.CreatedAt); err != nil {
		return domain.GeneratedReport{}, &domain.StoreError{Op: "insert report", Err: err}
	}
	return stored, nil
}

func (r *PostgresReportRepo) ListByProspect(ctx context.Context, prospectID int64) ([]domain.GeneratedReport, error) {
	rows, err := r.db.Query(ctx, `SELECT id, prospect_id, company_id, title, payload, created_at
FROM generated_reports WHERE prospect_id = $1 ORDER BY created_at DESC`, prospectID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.GeneratedReport
	for rows.Next() {
		var report domain.GeneratedReport
		if err := rows.Scan(&report.ID, &report.ProspectID, &report.CompanyID, &report.Title, &report.Payload, &report.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// PostgresDisconnector implements Disconnector with a single transaction.
type PostgresDisconnector struct {
	db *pgxpool.Pool
}

func NewPostgresDisconnector(pool *pgxpool.Pool) *PostgresDisconnector {
	return &PostgresDisconnector{db: pool}
}

// DisconnectCompany removes snapshots, analyses, transcripts, and the token
// row for a company, and detaches any linked prospect, all-or-nothing.
func (d *PostgresDisconnector) DisconnectCompany(ctx context.Context, companyID string, detachedStage domain.WorkflowStage) error {
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return &domain.StoreError{Op: "begin disconnect", Err: err}
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`DELETE FROM financial_snapshots WHERE company_id = $1`,
		`DELETE FROM ai_analyses WHERE company_id = $1`,
		`DELETE FROM call_transcripts WHERE company_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, companyID); err != nil {
			return &domain.StoreError{Op: "disconnect cleanup", Err: err}
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE prospects SET qb_company_id = '', workflow_stage = $2, updated_at = now() WHERE qb_company_id = $1`, companyID, detachedStage); err != nil {
		return &domain.StoreError{Op: "detach prospect", Err: err}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM qbo_tokens WHERE company_id = $1`, companyID); err != nil {
		return &domain.StoreError{Op: "delete token", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.StoreError{Op: "commit disconnect", Err: err}
	}
	return nil
}
