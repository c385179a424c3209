package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenRecord is the persisted OAuth credential set for one connected
// QuickBooks company. Exactly one row exists per CompanyID; a new exchange
// overwrites the prior record.
type TokenRecord struct {
	CompanyID        string    `json:"company_id"`
	CompanyName      string    `json:"company_name"`
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	ProspectID       int64     `json:"prospect_id,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AccessExpired reports whether the access token needs a refresh. A token
// expiring within the same second counts as expired; an early refresh beats
// using a dead token.
func (t TokenRecord) AccessExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RefreshExpired reports whether the refresh token itself is past its
// provider-side window, meaning the account must be reconnected.
func (t TokenRecord) RefreshExpired(now time.Time) bool {
	return !t.RefreshExpiresAt.IsZero() && !now.Before(t.RefreshExpiresAt)
}

// DisplayName returns the stored company name, falling back to a placeholder
// derived from the company id.
func (t TokenRecord) DisplayName() string {
	if name := strings.TrimSpace(t.CompanyName); name != "" {
		return name
	}
	return fmt.Sprintf("Company %s", t.CompanyID)
}

// Prospect is a sales lead record, one per contact/company being pursued.
// Email acts as the natural dedup key: repeat submissions update in place.
type Prospect struct {
	ID            int64         `json:"id,string"`
	CompanyName   string        `json:"company_name"`
	ContactName   string        `json:"contact_name"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	Industry      string        `json:"industry"`
	QBCompanyID   string        `json:"qb_company_id,omitempty"`
	WorkflowStage WorkflowStage `json:"workflow_stage"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// FinancialSnapshot is one point-in-time pull of a company's financials.
// Rows are append-only; the latest by CreatedAt is authoritative.
type FinancialSnapshot struct {
	ID                int64     `json:"id,string"`
	CompanyID         string    `json:"company_id"`
	Revenue           float64   `json:"revenue"`
	Expenses          float64   `json:"expenses"`
	NetIncome         float64   `json:"net_income"`
	TotalAssets       float64   `json:"total_assets"`
	TotalLiabilities  float64   `json:"total_liabilities"`
	CurrentRatio      float64   `json:"current_ratio"`
	DebtToEquity      float64   `json:"debt_to_equity"`
	OperatingMargin   float64   `json:"operating_margin"`
	GrossMargin       float64   `json:"gross_margin"`
	RevenueGrowthRate float64   `json:"revenue_growth_rate"`
	CreatedAt         time.Time `json:"created_at"`
}

// ProfitMargin derives net margin as a percentage of revenue.
func (s FinancialSnapshot) ProfitMargin() float64 {
	if s.Revenue == 0 {
		return 0
	}
	return s.NetIncome / s.Revenue * 100
}

// CallTranscript holds the raw text of one discovery call.
type CallTranscript struct {
	ID         int64     `json:"id,string"`
	ProspectID int64     `json:"prospect_id,string"`
	CompanyID  string    `json:"company_id,omitempty"`
	Content    string    `json:"content"`
	CallDate   time.Time `json:"call_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// AIAnalysis captures one LLM pass over a prospect's transcript and
// financials. Append-only; latest by CreatedAt is authoritative.
type AIAnalysis struct {
	ID                   int64         `json:"id,string"`
	ProspectID           int64         `json:"prospect_id,string"`
	CompanyID            string        `json:"company_id,omitempty"`
	CloseabilityScore    int           `json:"closeability_score"`
	FinancialHealthScore int           `json:"financial_health_score"`
	Insights             SalesInsights `json:"insights"`
	CreatedAt            time.Time     `json:"created_at"`
}

// SalesInsights is the structured payload extracted from a transcript.
type SalesInsights struct {
	PainPoints     []string `json:"pain_points"`
	Objectives     []string `json:"objectives"`
	DecisionMakers []string `json:"decision_makers"`
	UrgencySignals []string `json:"urgency_signals"`
	SalesStrategy  string   `json:"sales_strategy"`
	Closeability   int      `json:"closeability_score"`
}

// GeneratedReport records an audit deck produced for a prospect.
type GeneratedReport struct {
	ID         int64           `json:"id,string"`
	ProspectID int64           `json:"prospect_id,string"`
	CompanyID  string          `json:"company_id,omitempty"`
	Title      string          `json:"title"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
