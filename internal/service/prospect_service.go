package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/Staxx7/quickscope-sub003/internal/adapter/llm"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
	"github.com/Staxx7/quickscope-sub003/internal/repository"
)

// ProspectInput is the contact-form payload for creating or updating a lead.
type ProspectInput struct {
	CompanyName string `json:"company_name"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Industry    string `json:"industry"`
	CompanyID   string `json:"company_id"`
}

// ProspectService owns lead records, transcript ingestion, and AI analysis.
type ProspectService struct {
	prospects   repository.ProspectRepository
	transcripts repository.TranscriptRepository
	snapshots   repository.SnapshotRepository
	analyses    repository.AnalysisRepository
	reports     repository.ReportRepository
	analyzer    llm.Analyzer
	workflow    *WorkflowService
	node        *snowflake.Node
	logger      *zap.Logger
}

// NewProspectService wires lead management.
func NewProspectService(
	prospects repository.ProspectRepository,
	transcripts repository.TranscriptRepository,
	snapshots repository.SnapshotRepository,
	analyses repository.AnalysisRepository,
	reports repository.ReportRepository,
	analyzer llm.Analyzer,
	workflow *WorkflowService,
	node *snowflake.Node,
	logger *zap.Logger,
) *ProspectService {
	return &ProspectService{
		prospects:   prospects,
		transcripts: transcripts,
		snapshots:   snapshots,
		analyses:    analyses,
		reports:     reports,
		analyzer:    analyzer,
		workflow:    workflow,
		node:        node,
		logger:      logger,
	}
}

// Upsert validates and stores a prospect, keyed by email. Repeat submissions
// update the existing row.
func (s *ProspectService) Upsert(ctx context.Context, in ProspectInput) (domain.Prospect, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return domain.Prospect{}, &domain.ValidationError{Field: "email", Message: "email is required"}
	}
	if !strings.Contains(email, "@") {
		return domain.Prospect{}, &domain.ValidationError{Field: "email", Message: "email is not valid"}
	}
	if strings.TrimSpace(in.CompanyName) == "" {
		return domain.Prospect{}, &domain.ValidationError{Field: "company_name", Message: "company name is required"}
	}

	prospect := domain.Prospect{
		ID:            s.node.Generate().Int64(),
		CompanyName:   strings.TrimSpace(in.CompanyName),
		ContactName:   strings.TrimSpace(in.ContactName),
		Email:         email,
		Phone:         strings.TrimSpace(in.Phone),
		Industry:      strings.TrimSpace(in.Industry),
		QBCompanyID:   strings.TrimSpace(in.CompanyID),
		WorkflowStage: domain.StageNeedsProspectInfo,
	}
	stored, err := s.prospects.UpsertByEmail(ctx, prospect)
	if err != nil {
		return domain.Prospect{}, err
	}

	if stage, err := s.workflow.Recompute(ctx, stored.ID); err == nil {
		stored.WorkflowStage = stage
	}
	return stored, nil
}

// Get returns one prospect by id.
func (s *ProspectService) Get(ctx context.Context, id int64) (domain.Prospect, error) {
	return s.prospects.GetByID(ctx, id)
}

// List returns all prospects, newest first.
func (s *ProspectService) List(ctx context.Context) ([]domain.Prospect, error) {
	return s.prospects.List(ctx)
}

// IngestTranscript stores the call transcript, runs the analyzer, appends an
// AIAnalysis, and recomputes the prospect's stage. Analyzer failure keeps the
// transcript but reports the error.
func (s *ProspectService) IngestTranscript(ctx context.Context, prospectID int64, content string, callDate time.Time) (domain.CallTranscript, *domain.AIAnalysis, error) {
	if strings.TrimSpace(content) == "" {
		return domain.CallTranscript{}, nil, &domain.ValidationError{Field: "content", Message: "transcript content is required"}
	}

	prospect, err := s.prospects.GetByID(ctx, prospectID)
	if err != nil {
		return domain.CallTranscript{}, nil, err
	}

	if callDate.IsZero() {
		callDate = time.Now()
	}
	transcript, err := s.transcripts.Insert(ctx, domain.CallTranscript{
		ID:         s.node.Generate().Int64(),
		ProspectID: prospect.ID,
		CompanyID:  prospect.QBCompanyID,
		Content:    content,
		CallDate:   callDate,
	})
	if err != nil {
		return domain.CallTranscript{}, nil, err
	}

	analysis, analyzeErr := s.analyzeTranscript(ctx, prospect, content)

	if _, err := s.workflow.Recompute(ctx, prospect.ID); err != nil {
		s.log().Warn("stage recompute after transcript failed", zap.Error(err))
	}

	if analyzeErr != nil {
		s.log().Warn("transcript analysis failed",
			zap.Int64("prospect_id", prospect.ID),
			zap.Error(analyzeErr),
		)
		return transcript, nil, nil
	}
	return transcript, analysis, nil
}

func (s *ProspectService) analyzeTranscript(ctx context.Context, prospect domain.Prospect, content string) (*domain.AIAnalysis, error) {
	companyContext := prospect.CompanyName
	healthScore := 0
	if prospect.QBCompanyID != "" {
		if snapshot, err := s.snapshots.LatestByCompany(ctx, prospect.QBCompanyID); err == nil {
			healthScore = ComputeHealthScore(HealthInputsFromSnapshot(snapshot)).Overall
			companyContext = fmt.Sprintf("%s (revenue %.0f, net income %.0f)", prospect.CompanyName, snapshot.Revenue, snapshot.NetIncome)
		} else if !errors.Is(err, domain.ErrSnapshotNotFound) {
			return nil, err
		}
	}

	insights, err := s.analyzer.Analyze(ctx, content, companyContext)
	if err != nil {
		return nil, err
	}

	analysis, err := s.analyses.Insert(ctx, domain.AIAnalysis{
		ID:                   s.node.Generate().Int64(),
		ProspectID:           prospect.ID,
		CompanyID:            prospect.QBCompanyID,
		CloseabilityScore:    insights.Closeability,
		FinancialHealthScore: healthScore,
		Insights:             *insights,
	})
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// GenerateReport assembles an audit deck payload from the latest analysis and
// snapshot and records it. The prospect must be ready_for_report.
func (s *ProspectService) GenerateReport(ctx context.Context, prospectID int64) (domain.GeneratedReport, error) {
	prospect, err := s.prospects.GetByID(ctx, prospectID)
	if err != nil {
		return domain.GeneratedReport{}, err
	}

	stage, _, _, err := s.workflow.Status(ctx, prospectID)
	if err != nil {
		return domain.GeneratedReport{}, err
	}
	if stage != domain.StageReadyForReport {
		return domain.GeneratedReport{}, &domain.ValidationError{
			Field:   "workflow_stage",
			Message: fmt.Sprintf("prospect is at %s; analysis must complete before report generation", stage),
		}
	}

	analysis, err := s.workflow.LatestAnalysis(ctx, prospectID)
	if err != nil {
		return domain.GeneratedReport{}, err
	}

	content := map[string]any{
		"company_name": prospect.CompanyName,
		"generated_at": time.Now().UTC(),
	}
	if analysis != nil {
		content["closeability_score"] = analysis.CloseabilityScore
		content["financial_health_score"] = analysis.FinancialHealthScore
		content["insights"] = analysis.Insights
	}
	if prospect.QBCompanyID != "" {
		if snapshot, err := s.snapshots.LatestByCompany(ctx, prospect.QBCompanyID); err == nil {
			content["health_score"] = ComputeHealthScore(HealthInputsFromSnapshot(snapshot))
			content["snapshot"] = snapshot
		}
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return domain.GeneratedReport{}, fmt.Errorf("encode report payload: %w", err)
	}

	report, err := s.reports.Insert(ctx, domain.GeneratedReport{
		ID:         s.node.Generate().Int64(),
		ProspectID: prospect.ID,
		CompanyID:  prospect.QBCompanyID,
		Title:      fmt.Sprintf("Financial Audit: %s", prospect.CompanyName),
		Payload:    payload,
	})
	if err != nil {
		return domain.GeneratedReport{}, err
	}

	s.log().Info("report generated",
		zap.Int64("prospect_id", prospect.ID),
		zap.Int64("report_id", report.ID),
	)
	return report, nil
}

func (s *ProspectService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
