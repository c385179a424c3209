package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Staxx7/quickscope-sub003/internal/config"
)

func newTestCheckout(srv *httptest.Server, priceID string) *HTTPCheckoutClient {
	cfg := config.Config{
		BillingAPIURL:    srv.URL,
		BillingSecretKey: "sk_test_123",
		BillingPriceID:   priceID,
	}
	return NewHTTPCheckoutClient(cfg, srv.Client())
}

func TestCreateSessionPostsSubscriptionForm(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"mode":                    r.PostFormValue("mode"),
			"line_items[0][price]":    r.PostFormValue("line_items[0][price]"),
			"line_items[0][quantity]": r.PostFormValue("line_items[0][quantity]"),
			"success_url":             r.PostFormValue("success_url"),
			"customer_email":          r.PostFormValue("customer_email"),
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_test_1",
			"url": "https://checkout.example/s/cs_test_1",
		})
	}))
	defer srv.Close()

	session, err := newTestCheckout(srv, "price_default").CreateSession(context.Background(), SessionInput{
		PriceID:    "price_pro",
		SuccessURL: "https://app.quickscope.dev/billing/success",
		CancelURL:  "https://app.quickscope.dev/billing/cancel",
		Email:      "sam@acmeplumbing.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "subscription", gotForm["mode"])
	assert.Equal(t, "price_pro", gotForm["line_items[0][price]"])
	assert.Equal(t, "1", gotForm["line_items[0][quantity]"])
	assert.Equal(t, "https://app.quickscope.dev/billing/success", gotForm["success_url"])
	assert.Equal(t, "sam@acmeplumbing.com", gotForm["customer_email"])
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.example/s/cs_test_1", session.URL)
}

func TestCreateSessionFallsBackToConfiguredPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "price_default", r.PostFormValue("line_items[0][price]"))
		json.NewEncoder(w).Encode(map[string]string{"id": "cs_1", "url": "https://checkout.example/s/cs_1"})
	}))
	defer srv.Close()

	_, err := newTestCheckout(srv, "price_default").CreateSession(context.Background(), SessionInput{})
	require.NoError(t, err)
}

func TestCreateSessionRequiresPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a price id")
	}))
	defer srv.Close()

	_, err := newTestCheckout(srv, "").CreateSession(context.Background(), SessionInput{})
	assert.Error(t, err)
}

func TestCreateSessionRejectsMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "cs_1"})
	}))
	defer srv.Close()

	_, err := newTestCheckout(srv, "price_1").CreateSession(context.Background(), SessionInput{})
	assert.Error(t, err)
}

func TestCreateSessionSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := newTestCheckout(srv, "price_1").CreateSession(context.Background(), SessionInput{})
	assert.Error(t, err)
}
