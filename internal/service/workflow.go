package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Staxx7/quickscope-sub003/internal/domain"
	"github.com/Staxx7/quickscope-sub003/internal/repository"
)

// ResolveStage derives the pipeline stage from existence facts. It is a
// forward-only scan, not a transition table: the stage is recomputed fresh
// every time, so deleting a dependent record drops the prospect back to the
// matching earlier stage on the next recompute.
func ResolveStage(facts domain.StageFacts) domain.WorkflowStage {
	stage := domain.StageNeedsProspectInfo
	if facts.HasProspectRecord {
		stage = domain.StageNeedsTranscript
	}
	if facts.TranscriptCount > 0 {
		stage = domain.StageNeedsAnalysis
	}
	if facts.HasAIAnalysis {
		stage = domain.StageReadyForReport
	}
	return stage
}

// NextAction maps each stage to the recommended next step. Total over all
// known stages; unknown input falls back to the initial-stage action.
func NextAction(stage domain.WorkflowStage) string {
	switch stage {
	case domain.StageNeedsTranscript:
		return "Upload discovery call transcript"
	case domain.StageNeedsAnalysis:
		return "Run AI analysis on the call transcript"
	case domain.StageReadyForReport:
		return "Generate the audit report"
	default:
		return "Complete prospect contact details"
	}
}

// WorkflowService is the single authoritative writer of
// prospects.workflow_stage. Every trigger point (callback, sync, transcript
// upload, analysis, disconnect) goes through Recompute instead of persisting
// an inline stage of its own.
type WorkflowService struct {
	prospects   repository.ProspectRepository
	transcripts repository.TranscriptRepository
	snapshots   repository.SnapshotRepository
	analyses    repository.AnalysisRepository
	logger      *zap.Logger
}

// NewWorkflowService wires the stage recompute path.
func NewWorkflowService(
	prospects repository.ProspectRepository,
	transcripts repository.TranscriptRepository,
	snapshots repository.SnapshotRepository,
	analyses repository.AnalysisRepository,
	logger *zap.Logger,
) *WorkflowService {
	return &WorkflowService{
		prospects:   prospects,
		transcripts: transcripts,
		snapshots:   snapshots,
		analyses:    analyses,
		logger:      logger,
	}
}

// Facts gathers the existence facts for a prospect.
func (s *WorkflowService) Facts(ctx context.Context, prospect domain.Prospect) (domain.StageFacts, error) {
	facts := domain.StageFacts{HasProspectRecord: true}

	transcriptCount, err := s.transcripts.CountByProspect(ctx, prospect.ID)
	if err != nil {
		return facts, fmt.Errorf("count transcripts: %w", err)
	}
	facts.TranscriptCount = transcriptCount

	if prospect.QBCompanyID != "" {
		snapshotCount, err := s.snapshots.CountByCompany(ctx, prospect.QBCompanyID)
		if err != nil {
			return facts, fmt.Errorf("count snapshots: %w", err)
		}
		facts.HasFinancialSnapshot = snapshotCount > 0
	}

	analysisCount, err := s.analyses.CountByProspect(ctx, prospect.ID)
	if err != nil {
		return facts, fmt.Errorf("count analyses: %w", err)
	}
	facts.HasAIAnalysis = analysisCount > 0

	return facts, nil
}

// Recompute resolves the stage from current facts and persists it when it
// differs from the stored value. Returns the resolved stage.
func (s *WorkflowService) Recompute(ctx context.Context, prospectID int64) (domain.WorkflowStage, error) {
	prospect, err := s.prospects.GetByID(ctx, prospectID)
	if err != nil {
		return "", err
	}

	facts, err := s.Facts(ctx, prospect)
	if err != nil {
		return "", err
	}

	stage := ResolveStage(facts)
	if stage == prospect.WorkflowStage {
		return stage, nil
	}

	if err := s.prospects.UpdateWorkflowStage(ctx, prospectID, stage); err != nil {
		return "", err
	}
	s.log().Info("workflow stage updated",
		zap.Int64("prospect_id", prospectID),
		zap.String("from", string(prospect.WorkflowStage)),
		zap.String("to", string(stage)),
	)
	return stage, nil
}

// Status reports the current stage, facts, and next action for a prospect.
func (s *WorkflowService) Status(ctx context.Context, prospectID int64) (domain.WorkflowStage, domain.StageFacts, string, error) {
	prospect, err := s.prospects.GetByID(ctx, prospectID)
	if err != nil {
		return "", domain.StageFacts{}, "", err
	}
	facts, err := s.Facts(ctx, prospect)
	if err != nil {
		return "", domain.StageFacts{}, "", err
	}
	stage := ResolveStage(facts)
	return stage, facts, NextAction(stage), nil
}

// LatestAnalysis exposes the newest analysis or nil when none exists.
func (s *WorkflowService) LatestAnalysis(ctx context.Context, prospectID int64) (*domain.AIAnalysis, error) {
	analysis, err := s.analyses.LatestByProspect(ctx, prospectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &analysis, nil
}

func (s *WorkflowService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
