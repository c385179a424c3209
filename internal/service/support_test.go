package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Staxx7/quickscope-sub003/internal/adapter/qbo"
	"github.com/Staxx7/quickscope-sub003/internal/config"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
	"github.com/Staxx7/quickscope-sub003/internal/repository"
)

// ---- Test harness and fakes ----

type testHarness struct {
	tokens      *memTokenRepo
	prospects   *memProspectRepo
	snapshots   *memSnapshotRepo
	transcripts *memTranscriptRepo
	analyses    *memAnalysisRepo
	reports     *memReportRepo
	stateStore  *memStateStore
	provider    *fakeProvider
	analyzer    *fakeAnalyzer
	workflow    *WorkflowService
	connections *ConnectionService
	sync        *SyncService
	leads       *ProspectService
}

func newTestHarness(t interface{ Fatalf(string, ...any) }) *testHarness {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	h := &testHarness{
		tokens:      newMemTokenRepo(),
		prospects:   newMemProspectRepo(),
		snapshots:   newMemSnapshotRepo(),
		transcripts: newMemTranscriptRepo(),
		analyses:    newMemAnalysisRepo(),
		reports:     newMemReportRepo(),
		stateStore:  newMemStateStore(),
		provider:    &fakeProvider{},
		analyzer:    &fakeAnalyzer{},
	}

	cfg := config.Config{
		QBOClientID:        "client",
		QBOClientSecret:    "secret",
		QBORedirectURI:     "https://app.quickscope.dev/oauth/callback",
		QBOAuthURL:         "https://appcenter.intuit.com/connect/oauth2",
		QBORefreshTokenTTL: 100 * 24 * time.Hour,
		OAuthStateTTL:      10 * time.Minute,
		AppBaseURL:         "https://app.quickscope.dev",
	}

	logger := zap.NewNop()
	h.workflow = NewWorkflowService(h.prospects, h.transcripts, h.snapshots, h.analyses, logger)
	disconnector := &memDisconnector{h: h}
	h.connections = NewConnectionService(h.tokens, h.prospects, disconnector, h.stateStore, h.provider, h.workflow, node, cfg, logger)
	h.sync = NewSyncService(h.connections, h.provider, h.snapshots, h.prospects, h.workflow, node, logger)
	h.leads = NewProspectService(h.prospects, h.transcripts, h.snapshots, h.analyses, h.reports, h.analyzer, h.workflow, node, logger)
	return h
}

type memTokenRepo struct {
	mu      sync.Mutex
	records map[string]domain.TokenRecord
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{records: make(map[string]domain.TokenRecord)}
}

func (r *memTokenRepo) Upsert(_ context.Context, record domain.TokenRecord) (domain.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if prior, ok := r.records[record.CompanyID]; ok {
		record.CreatedAt = prior.CreatedAt
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	r.records[record.CompanyID] = record
	return record, nil
}

func (r *memTokenRepo) Get(_ context.Context, companyID string) (domain.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[companyID]
	if !ok {
		return domain.TokenRecord{}, domain.ErrNotConnected
	}
	return record, nil
}

func (r *memTokenRepo) Delete(_ context.Context, companyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, companyID)
	return nil
}

func (r *memTokenRepo) List(_ context.Context) ([]domain.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]domain.TokenRecord, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	return records, nil
}

func (r *memTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type memProspectRepo struct {
	mu      sync.Mutex
	byID    map[int64]domain.Prospect
	byEmail map[string]int64
}

func newMemProspectRepo() *memProspectRepo {
	return &memProspectRepo{byID: make(map[int64]domain.Prospect), byEmail: make(map[string]int64)}
}

func (r *memProspectRepo) UpsertByEmail(_ context.Context, prospect domain.Prospect) (domain.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if id, ok := r.byEmail[prospect.Email]; ok {
		existing := r.byID[id]
		existing.CompanyName = prospect.CompanyName
		existing.ContactName = prospect.ContactName
		existing.Phone = prospect.Phone
		existing.Industry = prospect.Industry
		if prospect.QBCompanyID != "" {
			existing.QBCompanyID = prospect.QBCompanyID
		}
		existing.UpdatedAt = now
		r.byID[id] = existing
		return existing, nil
	}
	prospect.CreatedAt = now
	prospect.UpdatedAt = now
	r.byID[prospect.ID] = prospect
	r.byEmail[prospect.Email] = prospect.ID
	return prospect, nil
}

func (r *memProspectRepo) GetByID(_ context.Context, id int64) (domain.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prospect, ok := r.byID[id]
	if !ok {
		return domain.Prospect{}, domain.ErrProspectNotFound
	}
	return prospect, nil
}

func (r *memProspectRepo) GetByCompanyID(_ context.Context, companyID string) (domain.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, prospect := range r.byID {
		if prospect.QBCompanyID == companyID && companyID != "" {
			return prospect, nil
		}
	}
	return domain.Prospect{}, domain.ErrProspectNotFound
}

func (r *memProspectRepo) List(_ context.Context) ([]domain.Prospect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prospects := make([]domain.Prospect, 0, len(r.byID))
	for _, prospect := range r.byID {
		prospects = append(prospects, prospect)
	}
	return prospects, nil
}

func (r *memProspectRepo) UpdateWorkflowStage(_ context.Context, prospectID int64, stage domain.WorkflowStage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prospect, ok := r.byID[prospectID]
	if !ok {
		return domain.ErrProspectNotFound
	}
	prospect.WorkflowStage = stage
	prospect.UpdatedAt = time.Now()
	r.byID[prospectID] = prospect
	return nil
}

type memSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []domain.FinancialSnapshot
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{}
}

func (r *memSnapshotRepo) Insert(_ context.Context, snapshot domain.FinancialSnapshot) (domain.FinancialSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot.CreatedAt = time.Now()
	r.snapshots = append(r.snapshots, snapshot)
	return snapshot, nil
}

func (r *memSnapshotRepo) LatestByCompany(_ context.Context, companyID string) (domain.FinancialSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].CompanyID == companyID {
			return r.snapshots[i], nil
		}
	}
	return domain.FinancialSnapshot{}, domain.ErrSnapshotNotFound
}

func (r *memSnapshotRepo) CountByCompany(_ context.Context, companyID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, snapshot := range r.snapshots {
		if snapshot.CompanyID == companyID {
			count++
		}
	}
	return count, nil
}

func (r *memSnapshotRepo) deleteByCompany(companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.snapshots[:0]
	for _, snapshot := range r.snapshots {
		if snapshot.CompanyID != companyID {
			kept = append(kept, snapshot)
		}
	}
	r.snapshots = kept
}

type memTranscriptRepo struct {
	mu          sync.Mutex
	transcripts []domain.CallTranscript
}

func newMemTranscriptRepo() *memTranscriptRepo {
	return &memTranscriptRepo{}
}

func (r *memTranscriptRepo) Insert(_ context.Context, transcript domain.CallTranscript) (domain.CallTranscript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transcript.CreatedAt = time.Now()
	r.transcripts = append(r.transcripts, transcript)
	return transcript, nil
}

func (r *memTranscriptRepo) CountByProspect(_ context.Context, prospectID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, transcript := range r.transcripts {
		if transcript.ProspectID == prospectID {
			count++
		}
	}
	return count, nil
}

func (r *memTranscriptRepo) ListByProspect(_ context.Context, prospectID int64) ([]domain.CallTranscript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CallTranscript
	for _, transcript := range r.transcripts {
		if transcript.ProspectID == prospectID {
			out = append(out, transcript)
		}
	}
	return out, nil
}

type memAnalysisRepo struct {
	mu       sync.Mutex
	analyses []domain.AIAnalysis
}

func newMemAnalysisRepo() *memAnalysisRepo {
	return &memAnalysisRepo{}
}

func (r *memAnalysisRepo) Insert(_ context.Context, analysis domain.AIAnalysis) (domain.AIAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis.CreatedAt = time.Now()
	r.analyses = append(r.analyses, analysis)
	return analysis, nil
}

func (r *memAnalysisRepo) LatestByProspect(_ context.Context, prospectID int64) (domain.AIAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.analyses) - 1; i >= 0; i-- {
		if r.analyses[i].ProspectID == prospectID {
			return r.analyses[i], nil
		}
	}
	return domain.AIAnalysis{}, pgx.ErrNoRows
}

func (r *memAnalysisRepo) CountByProspect(_ context.Context, prospectID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, analysis := range r.analyses {
		if analysis.ProspectID == prospectID {
			count++
		}
	}
	return count, nil
}

func (r *memAnalysisRepo) deleteByProspect(prospectID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.analyses[:0]
	for _, analysis := range r.analyses {
		if analysis.ProspectID != prospectID {
			kept = append(kept, analysis)
		}
	}
	r.analyses = kept
}

type memReportRepo struct {
	mu      sync.Mutex
	reports []domain.GeneratedReport
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{}
}

func (r *memReportRepo) Insert(_ context.Context, report domain.GeneratedReport) (domain.GeneratedReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report.CreatedAt = time.Now()
	r.reports = append(r.reports, report)
	return report, nil
}

func (r *memReportRepo) ListByProspect(_ context.Context, prospectID int64) ([]domain.GeneratedReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.GeneratedReport
	for _, report := range r.reports {
		if report.ProspectID == prospectID {
			out = append(out, report)
		}
	}
	return out, nil
}

type memStateStore struct {
	mu   sync.RWMutex
	data map[string]repository.ConnectState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{data: make(map[string]repository.ConnectState)}
}

func (s *memStateStore) SaveState(_ context.Context, key string, data repository.ConnectState, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = data
	return nil
}

func (s *memStateStore) GetState(_ context.Context, key string) (*repository.ConnectState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	copied := state
	return &copied, nil
}

func (s *memStateStore) DeleteState(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// memDisconnector mirrors the transactional cleanup against the in-memory
// repos.
type memDisconnector struct {
	h *testHarness
}

func (d *memDisconnector) DisconnectCompany(ctx context.Context, companyID string, detachedStage domain.WorkflowStage) error {
	d.h.snapshots.deleteByCompany(companyID)
	if prospect, err := d.h.prospects.GetByCompanyID(ctx, companyID); err == nil {
		d.h.analyses.deleteByProspect(prospect.ID)
		d.h.prospects.mu.Lock()
		prospect.QBCompanyID = ""
		prospect.WorkflowStage = detachedStage
		d.h.prospects.byID[prospect.ID] = prospect
		d.h.prospects.mu.Unlock()
	}
	return d.h.tokens.Delete(ctx, companyID)
}

// fakeProvider counts outbound calls and returns scripted responses.
type fakeProvider struct {
	mu sync.Mutex

	exchangeCalls int
	refreshCalls  int
	revokeCalls   int

	exchangeResp *qbo.TokenResponse
	exchangeErr  error
	refreshResp  *qbo.TokenResponse
	refreshErr   error
	revokeErr    error
	refreshDelay time.Duration

	companyInfo *qbo.CompanyInfo
	pnl         *qbo.Report
	balance     *qbo.Report
}

func (f *fakeProvider) ExchangeCode(context.Context, string) (*qbo.TokenResponse, error) {
	f.mu.Lock()
	f.exchangeCalls++
	resp, err := f.exchangeResp, f.exchangeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("no exchange response scripted")
	}
	copied := *resp
	return &copied, nil
}

func (f *fakeProvider) RefreshToken(context.Context, string) (*qbo.TokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	resp, err, delay := f.refreshResp, f.refreshErr, f.refreshDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("no refresh response scripted")
	}
	copied := *resp
	return &copied, nil
}

func (f *fakeProvider) RevokeToken(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeCalls++
	return f.revokeErr
}

func (f *fakeProvider) FetchCompanyInfo(context.Context, string, string) (*qbo.CompanyInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.companyInfo == nil {
		return nil, fmt.Errorf("no company info scripted")
	}
	copied := *f.companyInfo
	return &copied, nil
}

func (f *fakeProvider) FetchProfitAndLoss(context.Context, string, string) (*qbo.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pnl == nil {
		return nil, fmt.Errorf("no pnl scripted")
	}
	return f.pnl, nil
}

func (f *fakeProvider) FetchBalanceSheet(context.Context, string, string) (*qbo.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance == nil {
		return nil, fmt.Errorf("no balance sheet scripted")
	}
	return f.balance, nil
}

func (f *fakeProvider) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls + f.refreshCalls
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    int
	insights *domain.SalesInsights
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, string, string) (*domain.SalesInsights, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.insights == nil {
		return &domain.SalesInsights{Closeability: 50}, nil
	}
	copied := *f.insights
	return &copied, nil
}
