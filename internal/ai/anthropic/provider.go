// Package anthropic implements models.AIProvider against an Anthropic-style
// messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/pipehunter/internal/ai/verdict"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Per-1K-token prices in USD. Unknown models cost zero.
var modelPrices = map[string]struct{ in, out float64 }{
	"claude-sonnet-4-5-20250929": {0.003, 0.015},
	"claude-3-5-sonnet-20241022": {0.003, 0.015},
	"claude-3-5-haiku-20241022":  {0.0008, 0.004},
	"claude-3-opus-20240229":     {0.015, 0.075},
}

// Options configures the provider.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Provider implements models.AIProvider using the messages endpoint.
type Provider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewProvider(opts Options) *Provider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}
	return &Provider{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "anthropic" }

// Analyze sends the prompts and parses the structured JSON verdict. Missing
// or placeholder credentials yield a tagged mock result instead of an error.
func (p *Provider) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if verdict.PlaceholderKey(p.apiKey) {
		return verdict.MockResult(p.Name(), p.model), nil
	}

	body := messageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		System:      req.SystemPrompt,
		Messages: []message{
			{Role: "user", Content: req.UserPrompt},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return models.AnalysisResult{}, p.err("encoding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return models.AnalysisResult{}, p.err("building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.AnalysisResult{}, p.err("request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AnalysisResult{}, p.err("reading response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.AnalysisResult{}, p.err(
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, verdict.TruncateBody(data)), nil)
	}

	var parsed messageResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return models.AnalysisResult{}, p.err("decoding response envelope", err)
	}
	if len(parsed.Content) == 0 {
		return models.AnalysisResult{}, p.err("response contains no content blocks", nil)
	}

	result, err := verdict.Parse(p.Name(), parsed.Content[0].Text)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result.Provider = p.Name()
	result.InputTokens = parsed.Usage.InputTokens
	result.OutputTokens = parsed.Usage.OutputTokens
	result.EstimatedCostUSD = estimateCost(p.model, parsed.Usage.InputTokens, parsed.Usage.OutputTokens)
	return result, nil
}

func (p *Provider) err(message string, err error) error {
	return &models.ProviderError{Provider: p.Name(), Message: message, Err: err}
}

func estimateCost(model string, inTokens, outTokens int) float64 {
	price, ok := modelPrices[model]
	if !ok {
		return 0
	}
	return float64(inTokens)/1000*price.in + float64(outTokens)/1000*price.out
}

type messageRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Compile-time check that Provider implements AIProvider.
var _ models.AIProvider = (*Provider)(nil)
