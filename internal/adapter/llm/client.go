package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Staxx7/quickscope-sub003/internal/config"
	"github.com/Staxx7/quickscope-sub003/internal/domain"
)

// Analyzer turns a sales-call transcript into structured insights. The
// backing model is opaque; implementations only have to return the documented
// JSON shape.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, companyContext string) (*domain.SalesInsights, error)
}

const analysisPrompt = `You are a sales analyst reviewing a discovery call transcript for an accounting advisory firm.
Extract the following as JSON with keys pain_points, objectives, decision_makers, urgency_signals, sales_strategy, closeability_score (0-100):
- pain_points: financial or operational problems the prospect voiced
- objectives: outcomes the prospect wants
- decision_makers: named people with buying authority
- urgency_signals: phrases indicating timeline pressure
- sales_strategy: one-paragraph recommended approach
- closeability_score: likelihood this deal closes
Respond with JSON only.`

// HTTPAnalyzer calls an OpenAI-style chat-completions endpoint.
type HTTPAnalyzer struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ Analyzer = (*HTTPAnalyzer)(nil)

// NewHTTPAnalyzer constructs the default Analyzer.
func NewHTTPAnalyzer(cfg config.Config, client *http.Client) *HTTPAnalyzer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPAnalyzer{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.LLMBaseURL, "/"),
		apiKey:     cfg.LLMAPIKey,
		model:      cfg.LLMModel,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends the transcript plus instruction prompt and decodes the
// structured insight payload.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, transcript string, companyContext string) (*domain.SalesInsights, error) {
	user := transcript
	if strings.TrimSpace(companyContext) != "" {
		user = fmt.Sprintf("Company context: %s\n\nTranscript:\n%s", companyContext, transcript)
	}

	payload := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: analysisPrompt},
			{Role: "user", Content: user},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
		Temperature:    0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("analysis failed: status=%d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("analysis response empty")
	}

	var insights domain.SalesInsights
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &insights); err != nil {
		return nil, fmt.Errorf("decode insights payload: %w", err)
	}
	return &insights, nil
}
