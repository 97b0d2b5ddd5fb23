package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

func verdictJSON() string {
	return `{
		"summary": "The unit test suite failed on an assertion in auth_test.go",
		"root_cause": "A refactor changed the token expiry default",
		"category": "test_failure",
		"severity_level": "high",
		"confidence_score": 0.9,
		"immediate_actions": ["Update the expected expiry in auth_test.go"],
		"preventive_measures": ["Pin defaults in a shared fixture"],
		"documentation_links": [],
		"tags": ["auth"],
		"results": ["1 of 214 tests failed"]
	}`
}

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(Options{
		APIKey:    "sk-real-key",
		BaseURL:   srv.URL,
		Model:     "gpt-4",
		MaxTokens: 2000,
	})
}

func TestAnalyze(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-real-key" {
			t.Errorf("bad auth header %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system+user messages, got %+v", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("expected json_object response format")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": verdictJSON()}}},
			"usage":   map[string]any{"prompt_tokens": 1000, "completion_tokens": 500},
		})
	}))

	result, err := p.Analyze(context.Background(), models.AnalysisRequest{SystemPrompt: "sys", UserPrompt: "user"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Category != models.CategoryTestFailure {
		t.Errorf("category = %q", result.Category)
	}
	if result.Provider != "openai" {
		t.Errorf("provider = %q", result.Provider)
	}
	// gpt-4: 1000 in at 0.03/1K + 500 out at 0.06/1K
	if result.EstimatedCostUSD != 0.06 {
		t.Errorf("cost = %f, want 0.06", result.EstimatedCostUSD)
	}
}

func TestAnalyze_StripsFences(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "```json\n" + verdictJSON() + "\n```"
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))

	result, err := p.Analyze(context.Background(), models.AnalysisRequest{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Summary == "" {
		t.Error("fenced JSON was not parsed")
	}
}

func TestAnalyze_InvalidJSONIsProviderError(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "sorry, I cannot help"}}},
		})
	}))

	_, err := p.Analyze(context.Background(), models.AnalysisRequest{})
	var provErr *models.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Provider != "openai" {
		t.Errorf("provider = %q", provErr.Provider)
	}
}

func TestAnalyze_HTTPErrorIsProviderError(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))

	_, err := p.Analyze(context.Background(), models.AnalysisRequest{})
	if err == nil {
		t.Fatal("expected an error for HTTP 401")
	}
}

func TestAnalyze_PlaceholderKeyReturnsMock(t *testing.T) {
	for _, key := range []string{"", "your-openai-api-key", "placeholder"} {
		p := NewProvider(Options{APIKey: key, Model: "gpt-4"})
		result, err := p.Analyze(context.Background(), models.AnalysisRequest{})
		if err != nil {
			t.Fatalf("key %q: expected mock result, got error %v", key, err)
		}
		if !result.IsMock() {
			t.Errorf("key %q: result not tagged mock: %+v", key, result.Tags)
		}
	}
}

func TestEstimateCost_UnknownModelIsZero(t *testing.T) {
	if got := estimateCost("gpt-99-experimental", 1000, 1000); got != 0 {
		t.Errorf("unknown model cost = %f, want 0", got)
	}
}
