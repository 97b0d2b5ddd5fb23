// Package models contains shared data models used across the Pipehunter codebase.
package models

import (
	"context"
)

// AIProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly. Always inject this interface.
type AIProvider interface {
	// Analyze sends the prepared prompts to the backend and returns the
	// parsed structured analysis.
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}

// AnalysisRequest is the input to one AI analysis attempt. Prompts are built
// up front so every provider receives identical instructions.
type AnalysisRequest struct {
	SystemPrompt string
	UserPrompt   string

	// Provider overrides the default provider for this request. Empty
	// means "use the configured default".
	Provider string
}

// AnalysisResult is the canonical structured verdict returned by a provider.
// Field names mirror the JSON schema the providers are instructed to emit.
type AnalysisResult struct {
	Summary            string   `json:"summary"`
	RootCause          string   `json:"root_cause"`
	Category           string   `json:"category"`
	SeverityLevel      string   `json:"severity_level"`
	ConfidenceScore    float64  `json:"confidence_score"`
	ImmediateActions   []string `json:"immediate_actions"`
	PreventiveMeasures []string `json:"preventive_measures"`
	DocumentationLinks []string `json:"documentation_links"`
	Tags               []string `json:"tags"`
	Results            []string `json:"results"`

	// Telemetry, populated by the adapter. Not part of the model output.
	Provider         string  `json:"-"`
	InputTokens      int     `json:"-"`
	OutputTokens     int     `json:"-"`
	EstimatedCostUSD float64 `json:"-"`
}

// IsMock reports whether the result was fabricated because no real
// credentials were configured.
func (r AnalysisResult) IsMock() bool {
	for _, tag := range r.Tags {
		if tag == "mock" {
			return true
		}
	}
	return false
}

// ProviderError is a failure from one AI backend. It identifies the provider
// so the fallback loop can report which backends were attempted.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return "provider " + e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return "provider " + e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }
