package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/Staxx7/quickscope-sub003/internal/adapter/qbo"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
	"github.com/Staxx7/quickscope-sub003/internal/repository"
)

// SyncService pulls financial reports for a connected company and appends a
// snapshot. Every pull goes through EnsureFresh so an expired access token is
// refreshed transparently.
type SyncService struct {
	connections *ConnectionService
	provider    qbo.ProviderClient
	snapshots   repository.SnapshotRepository
	prospects   repository.ProspectRepository
	workflow    *WorkflowService
	node        *snowflake.Node
	logger      *zap.Logger
}

// NewSyncService wires the financial sync path.
func NewSyncService(
	connections *ConnectionService,
	provider qbo.ProviderClient,
	snapshots repository.SnapshotRepository,
	prospects repository.ProspectRepository,
	workflow *WorkflowService,
	node *snowflake.Node,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		connections: connections,
		provider:    provider,
		snapshots:   snapshots,
		prospects:   prospects,
		workflow:    workflow,
		node:        node,
		logger:      logger,
	}
}

// SyncCompany fetches P&L and balance sheet, normalizes them into one
// snapshot, stores it, and recomputes the linked prospect's stage.
func (s *SyncService) SyncCompany(ctx context.Context, companyID string) (domain.FinancialSnapshot, error) {
	record, err := s.connections.EnsureFresh(ctx, companyID)
	if err != nil {
		return domain.FinancialSnapshot{}, err
	}

	pnl, err := s.provider.FetchProfitAndLoss(ctx, record.AccessToken, companyID)
	if err != nil {
		return domain.FinancialSnapshot{}, err
	}
	balance, err := s.provider.FetchBalanceSheet(ctx, record.AccessToken, companyID)
	if err != nil {
		return domain.FinancialSnapshot{}, err
	}

	var prior *domain.FinancialSnapshot
	if previous, err := s.snapshots.LatestByCompany(ctx, companyID); err == nil {
		prior = &previous
	} else if !errors.Is(err, domain.ErrSnapshotNotFound) {
		return domain.FinancialSnapshot{}, err
	}

	snapshot := qbo.BuildSnapshot(companyID, pnl, balance, prior)
	snapshot.ID = s.node.Generate().Int64()

	stored, err := s.snapshots.Insert(ctx, snapshot)
	if err != nil {
		return domain.FinancialSnapshot{}, err
	}

	if prospect, err := s.prospects.GetByCompanyID(ctx, companyID); err == nil {
		if _, err := s.workflow.Recompute(ctx, prospect.ID); err != nil {
			s.log().Warn("stage recompute after sync failed", zap.Error(err))
		}
	}

	s.log().Info("financial snapshot stored",
		zap.String("company_id", companyID),
		zap.Float64("revenue", stored.Revenue),
	)
	return stored, nil
}

// HealthScore computes the composite score over the latest snapshot.
func (s *SyncService) HealthScore(ctx context.Context, companyID string) (HealthScore, error) {
	snapshot, err := s.snapshots.LatestByCompany(ctx, companyID)
	if err != nil {
		return HealthScore{}, err
	}
	return ComputeHealthScore(HealthInputsFromSnapshot(snapshot)), nil
}

func (s *SyncService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
