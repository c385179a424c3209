package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/Staxx7/quickscope-sub003/internal/adapter/qbo"
	"github.com/Staxx7/quickscope-sub003/internal/config"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
	"github.com/Staxx7/quickscope-sub003/internal/repository"
)

const (
	statePrefix = "qbo:state:"

	// Applied when the provider omits x_refresh_token_expires_in.
	defaultRefreshWindow = 100 * 24 * time.Hour
)

// ConnectionService owns the OAuth credential lifecycle: authorization-URL
// construction, code exchange, transparent refresh, revocation, and
// disconnect cleanup.
type ConnectionService struct {
	tokens       repository.TokenRepository
	prospects    repository.ProspectRepository
	disconnector repository.Disconnector
	stateStore   repository.ConnectStateStore
	provider     qbo.ProviderClient
	workflow     *WorkflowService
	node         *snowflake.Node
	cfg          config.Config
	logger       *zap.Logger

	// Serializes the check-refresh-write sequence per company so two
	// concurrent requests never both burn the single-use refresh token.
	refreshMu sync.Mutex
	refreshes map[string]*sync.Mutex
}

// NewConnectionService wires the token lifecycle manager.
func NewConnectionService(
	tokens repository.TokenRepository,
	prospects repository.ProspectRepository,
	disconnector repository.Disconnector,
	stateStore repository.ConnectStateStore,
	provider qbo.ProviderClient,
	workflow *WorkflowService,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *ConnectionService {
	return &ConnectionService{
		tokens:       tokens,
		prospects:    prospects,
		disconnector: disconnector,
		stateStore:   stateStore,
		provider:     provider,
		workflow:     workflow,
		node:         node,
		cfg:          cfg,
		logger:       logger,
		refreshes:    make(map[string]*sync.Mutex),
	}
}

// ConnectURL builds the provider authorization URL and persists the CSRF
// state for the callback to check.
func (s *ConnectionService) ConnectURL(ctx context.Context, redirectURI string) (string, string, error) {
	state, err := secureRandomString(32)
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}

	target := strings.TrimSpace(redirectURI)
	if target == "" {
		target = s.cfg.QBORedirectURI
	}

	authURL, err := url.Parse(s.cfg.QBOAuthURL)
	if err != nil {
		return "", "", fmt.Errorf("parse auth url: %w", err)
	}
	params := authURL.Query()
	params.Set("client_id", s.cfg.QBOClientID)
	params.Set("response_type", "code")
	params.Set("scope", "com.intuit.quickbooks.accounting")
	params.Set("redirect_uri", target)
	params.Set("state", state)
	authURL.RawQuery = params.Encode()

	payload := repository.ConnectState{
		State:       state,
		RedirectURI: target,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.stateStore.SaveState(ctx, statePrefix+state, payload, s.cfg.OAuthStateTTL); err != nil {
		return "", "", fmt.Errorf("persist state: %w", err)
	}

	return authURL.String(), state, nil
}

// HandleCallback validates the state, exchanges the authorization code, and
// persists the connection. Returns the stored record.
func (s *ConnectionService) HandleCallback(ctx context.Context, code, state, realmID string) (domain.TokenRecord, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(realmID) == "" {
		return domain.TokenRecord{}, domain.ErrMissingOAuthParams
	}
	if strings.TrimSpace(state) == "" {
		return domain.TokenRecord{}, domain.ErrInvalidState
	}

	stateKey := statePrefix + state
	stored, err := s.stateStore.GetState(ctx, stateKey)
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("load state: %w", err)
	}
	if stored == nil {
		return domain.TokenRecord{}, domain.ErrInvalidState
	}
	defer func() {
		if err := s.stateStore.DeleteState(ctx, stateKey); err != nil {
			s.log().Warn("failed to delete oauth state", zap.Error(err))
		}
	}()

	return s.Exchange(ctx, code, realmID)
}

// Exchange performs the authorization-code grant and upserts the resulting
// TokenRecord, overwriting any prior record for the same company.
func (s *ConnectionService) Exchange(ctx context.Context, code, realmID string) (domain.TokenRecord, error) {
	tokenResp, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return domain.TokenRecord{}, err
	}

	record := s.recordFromResponse(realmID, tokenResp)

	if name, err := s.lookupCompanyName(ctx, record); err == nil && name != "" {
		record.CompanyName = name
	}

	prospect, err := s.ensureProspect(ctx, record)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	record.ProspectID = prospect.ID

	stored, err := s.tokens.Upsert(ctx, record)
	if err != nil {
		return domain.TokenRecord{}, err
	}

	if _, err := s.workflow.Recompute(ctx, prospect.ID); err != nil {
		s.log().Warn("stage recompute after connect failed", zap.Error(err))
	}

	s.log().Info("company connected",
		zap.String("company_id", stored.CompanyID),
		zap.Time("expires_at", stored.ExpiresAt),
	)
	return stored, nil
}

// EnsureFresh returns a record whose access token is valid, refreshing it
// through the provider when expired. The common path is a no-network return
// of the stored record. Refresh failure yields a RefreshError and leaves the
// stale record in place for diagnostics.
func (s *ConnectionService) EnsureFresh(ctx context.Context, companyID string) (domain.TokenRecord, error) {
	record, err := s.tokens.Get(ctx, companyID)
	if err != nil {
		return domain.TokenRecord{}, err
	}

	now := time.Now()
	if !record.AccessExpired(now) {
		return record, nil
	}

	mu := s.companyLock(companyID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: a concurrent refresher may have already
	// replaced the token while this request waited.
	record, err = s.tokens.Get(ctx, companyID)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	now = time.Now()
	if !record.AccessExpired(now) {
		return record, nil
	}

	if record.RefreshExpired(now) {
		return domain.TokenRecord{}, &domain.RefreshError{CompanyID: companyID, Err: fmt.Errorf("refresh token window elapsed")}
	}

	tokenResp, err := s.provider.RefreshToken(ctx, record.RefreshToken)
	if err != nil {
		return domain.TokenRecord{}, &domain.RefreshError{CompanyID: companyID, Err: err}
	}

	refreshed := s.recordFromResponse(companyID, tokenResp)
	refreshed.CompanyName = record.CompanyName
	refreshed.ProspectID = record.ProspectID

	stored, err := s.tokens.Upsert(ctx, refreshed)
	if err != nil {
		return domain.TokenRecord{}, err
	}

	s.log().Info("access token refreshed",
		zap.String("company_id", companyID),
		zap.Time("expires_at", stored.ExpiresAt),
	)
	return stored, nil
}

// Revoke makes best-effort revoke calls for both stored tokens. Failures are
// logged and swallowed; local cleanup matters more than provider-side
// guarantees.
func (s *ConnectionService) Revoke(ctx context.Context, record domain.TokenRecord) {
	for _, token := range []string{record.RefreshToken, record.AccessToken} {
		if strings.TrimSpace(token) == "" {
			continue
		}
		if err := s.provider.RevokeToken(ctx, token); err != nil {
			s.log().Warn("token revoke failed",
				zap.String("company_id", record.CompanyID),
				zap.Error(err),
			)
		}
	}
}

// Disconnect revokes the tokens best-effort, then removes the token record
// and every dependent row in one transaction. Revocation failure never
// blocks the local cleanup.
func (s *ConnectionService) Disconnect(ctx context.Context, companyID string) error {
	record, err := s.tokens.Get(ctx, companyID)
	if err != nil {
		return err
	}

	s.Revoke(ctx, record)

	if err := s.disconnector.DisconnectCompany(ctx, companyID, domain.StageNeedsProspectInfo); err != nil {
		return err
	}

	s.log().Info("company disconnected", zap.String("company_id", companyID))
	return nil
}

// Connection is one connected account as reported to clients.
type Connection struct {
	CompanyID         string    `json:"company_id"`
	CompanyName       string    `json:"company_name"`
	ProspectID        int64     `json:"prospect_id,omitempty"`
	ConnectedAt       time.Time `json:"connected_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	RefreshExpiresAt  time.Time `json:"refresh_expires_at"`
	AccessExpired     bool      `json:"access_expired"`
	ReconnectRequired bool      `json:"reconnect_required"`
	ReconnectSoon     bool      `json:"reconnect_soon"`
}

// ListConnections reports all connected accounts, flagging those whose
// refresh token is dead or dies within two weeks.
func (s *ConnectionService) ListConnections(ctx context.Context) ([]Connection, error) {
	records, err := s.tokens.List(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	connections := make([]Connection, 0, len(records))
	for _, record := range records {
		connections = append(connections, Connection{
			CompanyID:         record.CompanyID,
			CompanyName:       record.DisplayName(),
			ProspectID:        record.ProspectID,
			ConnectedAt:       record.CreatedAt,
			ExpiresAt:         record.ExpiresAt,
			RefreshExpiresAt:  record.RefreshExpiresAt,
			AccessExpired:     record.AccessExpired(now),
			ReconnectRequired: record.RefreshExpired(now),
			ReconnectSoon:     !record.RefreshExpired(now) && record.RefreshExpiresAt.Sub(now) < 14*24*time.Hour,
		})
	}
	return connections, nil
}

func (s *ConnectionService) recordFromResponse(companyID string, resp *qbo.TokenResponse) domain.TokenRecord {
	now := time.Now()
	refreshWindow := s.cfg.QBORefreshTokenTTL
	if refreshWindow <= 0 {
		refreshWindow = defaultRefreshWindow
	}
	if resp.RefreshTokenExpiresIn > 0 {
		refreshWindow = time.Duration(resp.RefreshTokenExpiresIn) * time.Second
	}
	return domain.TokenRecord{
		CompanyID:        companyID,
		AccessToken:      resp.AccessToken,
		RefreshToken:     resp.RefreshToken,
		ExpiresAt:        now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		RefreshExpiresAt: now.Add(refreshWindow),
	}
}

func (s *ConnectionService) lookupCompanyName(ctx context.Context, record domain.TokenRecord) (string, error) {
	info, err := s.provider.FetchCompanyInfo(ctx, record.AccessToken, record.CompanyID)
	if err != nil {
		s.log().Warn("company info lookup failed",
			zap.String("company_id", record.CompanyID),
			zap.Error(err),
		)
		return "", err
	}
	name := strings.TrimSpace(info.CompanyName)
	if name == "" {
		name = strings.TrimSpace(info.LegalName)
	}
	return name, nil
}

// ensureProspect links the connection to an existing prospect by company id,
// or creates a placeholder so the pipeline has a row to track.
func (s *ConnectionService) ensureProspect(ctx context.Context, record domain.TokenRecord) (domain.Prospect, error) {
	prospect, err := s.prospects.GetByCompanyID(ctx, record.CompanyID)
	if err == nil {
		return prospect, nil
	}
	if !errors.Is(err, domain.ErrProspectNotFound) {
		return domain.Prospect{}, err
	}

	placeholder := domain.Prospect{
		ID:            s.node.Generate().Int64(),
		CompanyName:   record.DisplayName(),
		Email:         fmt.Sprintf("pending+%s@quickscope.local", record.CompanyID),
		QBCompanyID:   record.CompanyID,
		WorkflowStage: domain.StageNeedsProspectInfo,
	}
	created, err := s.prospects.UpsertByEmail(ctx, placeholder)
	if err != nil {
		return domain.Prospect{}, err
	}
	return created, nil
}

func (s *ConnectionService) companyLock(companyID string) *sync.Mutex {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	mu, ok := s.refreshes[companyID]
	if !ok {
		mu = &sync.Mutex{}
		s.refreshes[companyID] = mu
	}
	return mu
}

func (s *ConnectionService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
