package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Staxx7/quickscope-sub003/internal/adapter/qbo"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
)

func TestConnectURLPersistsState(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	authURL, state, err := h.connections.ConnectURL(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "com.intuit.quickbooks.accounting", q.Get("scope"))
	assert.Equal(t, state, q.Get("state"))

	stored, err := h.stateStore.GetState(ctx, "qbo:state:"+state)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, state, stored.State)
}

func TestHandleCallbackRejectsMissingParams(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.connections.HandleCallback(ctx, "", "state", "realm-1")
	assert.ErrorIs(t, err, domain.ErrMissingOAuthParams)

	_, err = h.connections.HandleCallback(ctx, "code", "state", "")
	assert.ErrorIs(t, err, domain.ErrMissingOAuthParams)

	_, err = h.connections.HandleCallback(ctx, "code", "", "realm-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestHandleCallbackRejectsUnknownState(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.connections.HandleCallback(context.Background(), "code", "never-issued", "realm-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Zero(t, h.provider.networkCalls())
}

func TestHandleCallbackConsumesState(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.provider.exchangeResp = &qbo.TokenResponse{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}
	h.provider.companyInfo = &qbo.CompanyInfo{CompanyName: "Acme Plumbing"}

	_, state, err := h.connections.ConnectURL(ctx, "")
	require.NoError(t, err)

	record, err := h.connections.HandleCallback(ctx, "auth-code", state, "realm-1")
	require.NoError(t, err)
	assert.Equal(t, "realm-1", record.CompanyID)
	assert.Equal(t, "Acme Plumbing", record.CompanyName)

	// The state is single-use.
	_, err = h.connections.HandleCallback(ctx, "auth-code", state, "realm-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestExchangeOverwritesPriorRecord(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.provider.companyInfo = &qbo.CompanyInfo{CompanyName: "Acme Plumbing"}

	h.provider.exchangeResp = &qbo.TokenResponse{AccessToken: "at-old", RefreshToken: "rt-old", ExpiresIn: 3600}
	first, err := h.connections.Exchange(ctx, "code-1", "realm-1")
	require.NoError(t, err)

	h.provider.exchangeResp = &qbo.TokenResponse{AccessToken: "at-new", RefreshToken: "rt-new", ExpiresIn: 3600}
	second, err := h.connections.Exchange(ctx, "code-2", "realm-1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.tokens.count())
	stored, err := h.tokens.Get(ctx, "realm-1")
	require.NoError(t, err)
	assert.Equal(t, "at-new", stored.AccessToken)
	assert.Equal(t, "rt-new", stored.RefreshToken)

	// Both exchanges link the same prospect.
	assert.Equal(t, first.ProspectID, second.ProspectID)
}

func TestExchangeCreatesPlaceholderProspect(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.provider.exchangeResp = &qbo.TokenResponse{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}
	h.provider.companyInfo = &qbo.CompanyInfo{CompanyName: "Acme Plumbing"}

	record, err := h.connections.Exchange(ctx, "code-1", "realm-9")
	require.NoError(t, err)
	require.NotZero(t, record.ProspectID)

	prospect, err := h.prospects.GetByCompanyID(ctx, "realm-9")
	require.NoError(t, err)
	assert.Equal(t, record.ProspectID, prospect.ID)
	assert.True(t, strings.HasPrefix(prospect.Email, "pending+realm-9@"))
	assert.Equal(t, "Acme Plumbing", prospect.CompanyName)
}

func TestExchangeLinksExistingProspect(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	existing, err := h.leads.Upsert(ctx, ProspectInput{
		CompanyName: "Acme Plumbing",
		Email:       "sam@acmeplumbing.com",
		CompanyID:   "realm-1",
	})
	require.NoError(t, err)

	h.provider.exchangeResp = &qbo.TokenResponse{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}
	h.provider.companyInfo = &qbo.CompanyInfo{CompanyName: "Acme Plumbing LLC"}

	record, err := h.connections.Exchange(ctx, "code-1", "realm-1")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, record.ProspectID)
}

func TestExchangePropagatesProviderError(t *testing.T) {
	h := newTestHarness(t)
	h.provider.exchangeErr = &domain.ExchangeError{Status: 400, Body: `{"error":"invalid_grant"}`}

	_, err := h.connections.Exchange(context.Background(), "bad-code", "realm-1")
	var exchangeErr *domain.ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, 400, exchangeErr.Status)
	assert.Zero(t, h.tokens.count())
}

func TestEnsureFreshNoNetworkWhenValid(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.tokens.Upsert(ctx, domain.TokenRecord{
		CompanyID:        "realm-1",
		AccessToken:      "at-valid",
		RefreshToken:     "rt-valid",
		ExpiresAt:        time.Now().Add(30 * time.Minute),
		RefreshExpiresAt: time.Now().Add(90 * 24 * time.Hour),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		record, err := h.connections.EnsureFresh(ctx, "realm-1")
		require.NoError(t, err)
		assert.Equal(t, "at-valid", record.AccessToken)
	}
	assert.Zero(t, h.provider.networkCalls())
}

func TestEnsureFreshRefreshesExpiredToken(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.tokens.Upsert(ctx, domain.TokenRecord{
		CompanyID:        "realm-1",
		CompanyName:      "Acme Plumbing",
		ProspectID:       42,
		AccessToken:      "at-stale",
		RefreshToken:     "rt-current",
		ExpiresAt:        time.Now().Add(-time.Minute),
		RefreshExpiresAt: time.Now().Add(90 * 24 * time.Hour),
	})
	require.NoError(t, err)

	h.provider.refreshResp = &qbo.TokenResponse{AccessToken: "at-fresh", RefreshToken: "rt-rotated", ExpiresIn: 3600}

	record, err := h.connections.EnsureFresh(ctx, "realm-1")
	require.NoError(t, err)
	assert.Equal(t, "at-fresh", record.AccessToken)
	assert.Equal(t, "rt-rotated", record.RefreshToken)
	assert.Equal(t, 1, h.provider.refreshCalls)

	// Identity fields survive the refresh overwrite.
	assert.Equal(t, "Acme Plumbing", record.CompanyName)
	assert.Equal(t, int64(42), record.ProspectID)
}

func TestEnsureFreshSingleFlight(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.tokens.Upsert(ctx, domain.TokenRecord{
		CompanyID:        "realm-1",
		AccessToken:      "at-stale",
		RefreshToken:     "rt-current",
		ExpiresAt:        time.Now().Add(-time.Minute),
		RefreshExpiresAt: time.Now().Add(90 * 24 * time.Hour),
	})
	require.NoError(t, err)

	h.provider.refreshResp = &qbo.TokenResponse{AccessToken: "at-fresh", RefreshToken: "rt-rotated", ExpiresIn: 3600}
	h.provider.refreshDelay = 20 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.connections.EnsureFresh(ctx, "realm-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, h.provider.refreshCalls, "concurrent callers must share one refresh")
}

func TestEnsureFreshRefreshFailureKeepsStaleRecord(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.tokens.Upsert(ctx, domain.TokenRecord{
		CompanyID:        "realm-1",
		AccessToken:      "at-stale",
		RefreshToken:     "rt-dead",
		ExpiresAt:        time.Now().Add(-time.Minute),
		RefreshExpiresAt: time.Now().Add(90 * 24 * time.Hour),
	})
	require.NoError(t, err)

	h.provider.refreshErr = fmt.Errorf("invalid_grant")

	_, err = h.connections.EnsureFresh(ctx, "realm-1")
	var refreshErr *domain.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "realm-1", refreshErr.CompanyID)

	// The stale record stays for diagnostics.
	stored, err := h.tokens.Get(ctx, "realm-1")
	require.NoError(t, err)
	assert.Equal(t, "at-stale", stored.AccessToken)
}

func TestEnsureFreshRefreshWindowElapsed(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.tokens.Upsert(ctx, domain.TokenRecord{
		CompanyID:        "realm-1",
		AccessToken:      "at-stale",
		RefreshToken:     "rt-expired",
		ExpiresAt:        time.Now().Add(-time.Hour),
		RefreshExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = h.connections.EnsureFresh(ctx, "realm-1")
	var refreshErr *domain.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Zero(t, h.provider.refreshCalls, "an elapsed window must not hit the provider")
}

func TestEnsureFreshUnknownCompany(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.connections.EnsureFresh(context.Background(), "realm-missing")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestDisconnectRemovesEverythingDespiteRevokeFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.provider.exchangeResp = &qbo.TokenResponse{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}
	h.provider.companyInfo = &qbo.CompanyInfo{CompanyName: "Acme Plumbing"}

	record, err := h.connections.Exchange(ctx, "code-1", "realm-1")
	require.NoError(t, err)

	_, err = h.snapshots.Insert(ctx, domain.FinancialSnapshot{ID: 1, CompanyID: "realm-1", Revenue: 50000})
	require.NoError(t, err)
	_, err = h.analyses.Insert(ctx, domain.AIAnalysis{ID: 2, ProspectID: record.ProspectID, CompanyID: "realm-1"})
	require.NoError(t, err)

	h.provider.revokeErr = errors.New("revoke endpoint down")

	require.NoError(t, h.connections.Disconnect(ctx, "realm-1"))

	_, err = h.tokens.Get(ctx, "realm-1")
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	_, err = h.snapshots.LatestByCompany(ctx, "realm-1")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	prospect, err := h.prospects.GetByID(ctx, record.ProspectID)
	require.NoError(t, err)
	assert.Empty(t, prospect.QBCompanyID)
	assert.Equal(t, domain.StageNeedsProspectInfo, prospect.WorkflowStage)

	// Both stored tokens got a revoke attempt before cleanup.
	assert.Equal(t, 2, h.provider.revokeCalls)
}

func TestDisconnectUnknownCompany(t *testing.T) {
	h := newTestHarness(t)

	err := h.connections.Disconnect(context.Background(), "realm-missing")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Zero(t, h.provider.revokeCalls)
}

func TestListConnectionsFlagsReconnectWindows(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	now := time.Now()

	seed := []domain.TokenRecord{
		{CompanyID: "healthy", AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Hour), RefreshExpiresAt: now.Add(60 * 24 * time.Hour)},
		{CompanyID: "expiring-soon", AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Hour), RefreshExpiresAt: now.Add(5 * 24 * time.Hour)},
		{CompanyID: "dead", AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour), RefreshExpiresAt: now.Add(-time.Hour)},
	}
	for _, record := range seed {
		_, err := h.tokens.Upsert(ctx, record)
		require.NoError(t, err)
	}

	connections, err := h.connections.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, connections, 3)

	byID := make(map[string]Connection, len(connections))
	for _, c := range connections {
		byID[c.CompanyID] = c
	}

	assert.False(t, byID["healthy"].ReconnectRequired)
	assert.False(t, byID["healthy"].ReconnectSoon)

	assert.False(t, byID["expiring-soon"].ReconnectRequired)
	assert.True(t, byID["expiring-soon"].ReconnectSoon)

	assert.True(t, byID["dead"].ReconnectRequired)
	assert.False(t, byID["dead"].ReconnectSoon)
	assert.True(t, byID["dead"].AccessExpired)

	assert.Equal(t, "Company healthy", byID["healthy"].CompanyName)
}
