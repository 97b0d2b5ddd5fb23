// Package verdict holds the response handling shared by the AI provider
// adapters: JSON parsing, schema validation and the credential-less mock.
package verdict

import (
	"encoding/json"
	"strings"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// Parse decodes and validates a model's JSON output. Unknown category or
// severity values degrade to unknown/medium; confidence is clamped to [0,1].
// A missing summary is a schema violation and fails with a ProviderError.
func Parse(provider, content string) (models.AnalysisResult, error) {
	content = StripFences(content)

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return models.AnalysisResult{}, &models.ProviderError{
			Provider: provider, Message: "response is not valid JSON", Err: err,
		}
	}

	if result.Summary == "" {
		return models.AnalysisResult{}, &models.ProviderError{
			Provider: provider, Message: "response missing required field summary",
		}
	}
	if !models.ValidCategory(result.Category) {
		result.Category = models.CategoryUnknown
	}
	if !models.ValidSeverity(result.SeverityLevel) {
		result.SeverityLevel = models.SeverityMedium
	}
	if result.ConfidenceScore < 0 {
		result.ConfidenceScore = 0
	}
	if result.ConfidenceScore > 1 {
		result.ConfidenceScore = 1
	}
	return result, nil
}

// StripFences removes a markdown code fence if the model wrapped its JSON in
// one despite instructions.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// PlaceholderKey reports whether the key is absent or an obvious placeholder.
func PlaceholderKey(key string) bool {
	switch {
	case key == "":
		return true
	case strings.HasPrefix(key, "your-"):
		return true
	case key == "placeholder", key == "changeme":
		return true
	}
	return false
}

// MockResult is returned instead of an error when no real credentials are
// configured. Always tagged "mock" so downstream consumers can tell.
func MockResult(provider, model string) models.AnalysisResult {
	return models.AnalysisResult{
		Summary:         "Mock analysis: no API credentials configured, returning a simulated verdict.",
		RootCause:       "Not analyzed; no AI backend credentials were available.",
		Category:        models.CategoryUnknown,
		SeverityLevel:   models.SeverityMedium,
		ConfidenceScore: 0,
		ImmediateActions: []string{
			"Configure real AI provider credentials to receive an actual analysis",
		},
		PreventiveMeasures: []string{},
		DocumentationLinks: []string{},
		Tags:               []string{"mock", provider},
		Results:            []string{"simulated result for " + model},
		Provider:           provider,
	}
}

// TruncateBody bounds an HTTP error body embedded in an error message.
func TruncateBody(data []byte) string {
	const max = 512
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
