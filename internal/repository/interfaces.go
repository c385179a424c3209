package repository

import (
	"context"
	"time"

	"github.com/Staxx7/quickscope-sub003/internal/domain"
)

// TokenRepository is the durable mapping from company id to the latest OAuth
// credential set. Upsert is last-writer-wins; no optimistic concurrency.
type TokenRepository interface {
	Upsert(ctx context.Context, record domain.TokenRecord) (domain.TokenRecord, error)
	Get(ctx context.Context, companyID string) (domain.TokenRecord, error)
	Delete(ctx context.Context, companyID string) error
	List(ctx context.Context) ([]domain.TokenRecord, error)
}

// ProspectRepository exposes persistence for sales leads.
type ProspectRepository interface {
	UpsertByEmail(ctx context.Context, prospect domain.Prospect) (domain.Prospect, error)
	GetByID(ctx context.Context, id int64) (domain.Prospect, error)
	GetByCompanyID(ctx context.Context, companyID string) (domain.Prospect, error)
	List(ctx context.Context) ([]domain.Prospect, error)
	UpdateWorkflowStage(ctx context.Context, prospectID int64, stage domain.WorkflowStage) error
}

// SnapshotRepository stores append-only financial snapshots.
type SnapshotRepository interface {
	Insert(ctx context.Context, snapshot domain.FinancialSnapshot) (domain.FinancialSnapshot, error)
	LatestByCompany(ctx context.Context, companyID string) (domain.FinancialSnapshot, error)
	CountByCompany(ctx context.Context, companyID string) (int, error)
}

// TranscriptRepository stores discovery-call transcripts.
type TranscriptRepository interface {
	Insert(ctx context.Context, transcript domain.CallTranscript) (domain.CallTranscript, error)
	CountByProspect(ctx context.Context, prospectID int64) (int, error)
	ListByProspect(ctx context.Context, prospectID int64) ([]domain.CallTranscript, error)
}

// AnalysisRepository stores append-only AI analyses.
type AnalysisRepository interface {
	Insert(ctx context.Context, analysis domain.AIAnalysis) (domain.AIAnalysis, error)
	LatestByProspect(ctx context.Context, prospectID int64) (domain.AIAnalysis, error)
	CountByProspect(ctx context.Context, prospectID int64) (int, error)
}

// ReportRepository stores generated audit decks.
type ReportRepository interface {
	Insert(ctx context.Context, report domain.GeneratedReport) (domain.GeneratedReport, error)
	ListByProspect(ctx context.Context, prospectID int64) ([]domain.GeneratedReport, error)
}

// Disconnector removes every row tied to a company inside one transaction, so
// a partial failure never leaves orphaned snapshots or analyses behind.
type Disconnector interface {
	DisconnectCompany(ctx context.Context, companyID string, detachedStage domain.WorkflowStage) error
}

// ConnectState is the CSRF state payload persisted between the connect
// redirect and the provider callback.
type ConnectState struct {
	State       string    `json:"state"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// ConnectStateStore persists short-lived connect-state values.
type ConnectStateStore interface {
	SaveState(ctx context.Context, key string, data ConnectState, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*ConnectState, error)
	DeleteState(ctx context.Context, key string) error
}
