package domain

// WorkflowStage is the discrete pipeline position of a prospect, derived from
// data completeness rather than stored transitions.
type WorkflowStage string

const (
	StageNeedsProspectInfo WorkflowStage = "needs_prospect_info"
	StageNeedsTranscript   WorkflowStage = "needs_transcript"
	StageNeedsAnalysis     WorkflowStage = "needs_analysis"
	StageReadyForReport    WorkflowStage = "ready_for_report"
)

// StageFacts are the existence/count facts a stage is resolved from.
type StageFacts struct {
	HasProspectRecord    bool
	TranscriptCount      int
	HasFinancialSnapshot bool
	HasAIAnalysis        bool
}

// Valid reports whether s is one of the known stages.
func (s WorkflowStage) Valid() bool {
	switch s {
	case StageNeedsProspectInfo, StageNeedsTranscript, StageNeedsAnalysis, StageReadyForReport:
		return true
	}
	return false
}
