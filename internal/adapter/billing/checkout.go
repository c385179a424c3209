package billing

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
)

// CheckoutClient creates hosted subscription checkout sessions.
type CheckoutClient interface {
	CreateSession(ctx context.Context, in SessionInput) (*Session, error)
}

// SessionInput carries the parameters of a hosted checkout session.
type SessionInput struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
	Email      string
}

// Session is the created session with the URL to redirect the customer to.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// HTTPCheckoutClient is the default implementation against the payment
// provider's form-encoded session endpoint.
type HTTPCheckoutClient struct {
	httpClient *http.Client
	apiURL     string
	secretKey  string
	priceID    string
}

var _ CheckoutClient = (*HTTPCheckoutClient)(nil)

// NewHTTPCheckoutClient constructs the default CheckoutClient.
func NewHTTPCheckoutClient(cfg config.Config, client *http.Client) *HTTPCheckoutClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPCheckoutClient{
		httpClient: client,
		apiURL:     strings.TrimRight(cfg.BillingAPIURL, "/"),
		secretKey:  cfg.BillingSecretKey,
		priceID:    cfg.BillingPriceID,
	}
}

// CreateSession posts a subscription-mode checkout session and returns its
// redirect URL.
func (c *HTTPCheckoutClient) CreateSession(ctx context.Context, in SessionInput) (*Session, error) {
	priceID := in.PriceID
	if priceID == "" {
		priceID = c.priceID
	}
	if priceID == "" {
		return nil, fmt.Errorf("price id missing")
	}

	data := url.Values{}
	data.Set("mode", "subscription")
	data.Set("line_items[0][price]", priceID)
	data.Set("line_items[0][quantity]", "1")
	data.Set("success_url", in.SuccessURL)
	data.Set("cancel_url", in.CancelURL)
	if strings.TrimSpace(in.Email) != "" {
		data.Set("customer_email", in.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/checkout/sessions", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("checkout failed: status=%d", resp.StatusCode)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("checkout response missing url")
	}
	return &session, nil
}
