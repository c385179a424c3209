package qbo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Staxx7/quickscope-sub003/internal/config"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
)

// ProviderClient encapsulates outbound HTTP calls to the QuickBooks platform.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	RevokeToken(ctx context.Context, token string) error
	FetchCompanyInfo(ctx context.Context, accessToken, realmID string) (*CompanyInfo, error)
	FetchProfitAndLoss(ctx context.Context, accessToken, realmID string) (*Report, error)
	FetchBalanceSheet(ctx context.Context, accessToken, realmID string) (*Report, error)
}

// TokenResponse models the bearer-token endpoint response.
type TokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
}

// CompanyInfo is the subset of the companyinfo resource QuickScope reads.
type CompanyInfo struct {
	CompanyName string
	LegalName   string
	Country     string
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	tokenURL     string
	revokeURL    string
	apiBaseURL   string
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(cfg config.Config, client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProviderClient{
		httpClient:   client,
		clientID:     cfg.QBOClientID,
		clientSecret: cfg.QBOClientSecret,
		redirectURI:  cfg.QBORedirectURI,
		tokenURL:     cfg.QBOTokenURL,
		revokeURL:    cfg.QBORevokeURL,
		apiBaseURL:   strings.TrimRight(cfg.QBOAPIBaseURL, "/"),
	}
}

// ExchangeCode trades an authorization code for a token set.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)
	return c.postTokenGrant(ctx, data)
}

// RefreshToken exchanges a refresh token for a fresh token set.
func (c *HTTPProviderClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return c.postTokenGrant(ctx, data)
}

func (c *HTTPProviderClient) postTokenGrant(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &domain.ExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, &domain.ExchangeError{Status: resp.StatusCode, Body: "empty access_token"}
	}
	return &token, nil
}

// RevokeToken posts a single token to the revoke endpoint.
func (c *HTTPProviderClient) RevokeToken(ctx context.Context, token string) error {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("encode revoke payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke failed: status=%d", resp.StatusCode)
	}
	return nil
}

// FetchCompanyInfo loads the companyinfo resource for a realm.
func (c *HTTPProviderClient) FetchCompanyInfo(ctx context.Context, accessToken, realmID string) (*CompanyInfo, error) {
	endpoint := fmt.Sprintf("%s/v3/company/%s/companyinfo/%s", c.apiBaseURL, realmID, realmID)
	raw, err := c.getJSON(ctx, accessToken, endpoint)
	if err != nil {
		return nil, err
	}

	info, _ := raw["CompanyInfo"].(map[string]any)
	if info == nil {
		return nil, fmt.Errorf("companyinfo missing in response")
	}
	return &CompanyInfo{
		CompanyName: stringValue(info["CompanyName"]),
		LegalName:   stringValue(info["LegalName"]),
		Country:     stringValue(info["Country"]),
	}, nil
}

// FetchProfitAndLoss pulls the ProfitAndLoss report for the trailing year.
func (c *HTTPProviderClient) FetchProfitAndLoss(ctx context.Context, accessToken, realmID string) (*Report, error) {
	return c.fetchReport(ctx, accessToken, realmID, "ProfitAndLoss")
}

// FetchBalanceSheet pulls the BalanceSheet report.
func (c *HTTPProviderClient) FetchBalanceSheet(ctx context.Context, accessToken, realmID string) (*Report, error) {
	return c.fetchReport(ctx, accessToken, realmID, "BalanceSheet")
}

func (c *HTTPProviderClient) fetchReport(ctx context.Context, accessToken, realmID, name string) (*Report, error) {
	endpoint := fmt.Sprintf("%s/v3/company/%s/reports/%s", c.apiBaseURL, realmID, name)
	raw, err := c.getJSON(ctx, accessToken, endpoint)
	if err != nil {
		return nil, err
	}
	return parseReport(raw)
}

func (c *HTTPProviderClient) getJSON(ctx context.Context, accessToken, endpoint string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qbo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read qbo response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qbo request failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode qbo response: %w", err)
	}
	return raw, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
