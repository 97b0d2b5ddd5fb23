// Package openai implements models.AIProvider against an OpenAI-style
// chat-completions API.
package openai

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

const defaultBaseURL = "https://api.openai.com"

// Per-1K-token prices in USD. Unknown models cost zero.
var modelPrices = map[string]struct{ in, out float64 }{
	"gpt-4":         {0.03, 0.06},
	"gpt-4-turbo":   {0.01, 0.03},
	"gpt-4o":        {0.0025, 0.01},
	"gpt-4o-mini":   {0.00015, 0.0006},
	"gpt-3.5-turbo": {0.0005, 0.0015},
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

// Provider implements models.AIProvider using the chat completions endpoint.
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
	return &Provider{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "openai" }

// Analyze sends the prompts and parses the structured JSON verdict. When no
// real credentials are configured it returns a mock result tagged "mock"
// instead of failing, so the pipeline stays exercisable end to end.
func (p *Provider) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if verdict.PlaceholderKey(p.apiKey) {
		return verdict.MockResult(p.Name(), p.model), nil
	}

	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return models.AnalysisResult{}, p.err("encoding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return models.AnalysisResult{}, p.err("building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return models.AnalysisResult{}, p.err("decoding response envelope", err)
	}
	if len(parsed.Choices) == 0 {
		return models.AnalysisResult{}, p.err("response contains no choices", nil)
	}

	result, err := verdict.Parse(p.Name(), parsed.Choices[0].Message.Content)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result.Provider = p.Name()
	result.InputTokens = parsed.Usage.PromptTokens
	result.OutputTokens = parsed.Usage.CompletionTokens
	result.EstimatedCostUSD = estimateCost(p.model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
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

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Compile-time check that Provider implements AIProvider.
var _ models.AIProvider = (*Provider)(nil)
