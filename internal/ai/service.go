// Package ai coordinates the configured AI backends: provider registry,
// primary-then-fallback analysis, and per-provider health reporting.
package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

const healthCheckTimeout = 10 * time.Second

// AnalysisService runs failure analysis across the registered providers with
// fallback.
type AnalysisService struct {
	registry        *Registry
	defaultProvider string
	logger          *slog.Logger
}

// NewAnalysisService creates the service. defaultProvider is used when a
// request names no provider; it must be registered.
func NewAnalysisService(registry *Registry, defaultProvider string, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		registry:        registry,
		defaultProvider: defaultProvider,
		logger:          logger,
	}
}

// AnalyzeError tries the primary provider, then each fallback in order,
// returning the first success. Explicit fallbacks take precedence; otherwise
// every other registered provider is tried in registration order. Only when
// every candidate fails does the call return an aggregate error.
func (s *AnalysisService) AnalyzeError(ctx context.Context, req models.AnalysisRequest, fallbacks []string) (models.AnalysisResult, error) {
	candidates := s.candidateOrder(req.Provider, fallbacks)
	if len(candidates) == 0 {
		return models.AnalysisResult{}, ErrNoProviders
	}

	var attempted []string
	var lastErr error

	for _, name := range candidates {
		provider, ok := s.registry.Get(name)
		if !ok {
			s.logger.Warn("skipping unregistered ai provider", "provider", name)
			continue
		}

		attempted = append(attempted, name)
		result, err := provider.Analyze(ctx, req)
		if err == nil {
			s.logger.Info("ai analysis succeeded",
				"provider", name,
				"category", result.Category,
				"confidence", result.ConfidenceScore,
				"mock", result.IsMock())
			return result, nil
		}

		lastErr = err
		s.logger.Warn("ai provider failed, trying next",
			"provider", name,
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}

	if len(attempted) == 0 {
		return models.AnalysisResult{}, ErrNoProviders
	}
	return models.AnalysisResult{}, &AllProvidersFailedError{Attempted: attempted, Last: lastErr}
}

// HealthCheck sends a minimal synthetic request to every registered provider
// with a short timeout. Providers are checked independently: one failing
// never marks another unhealthy.
func (s *AnalysisService) HealthCheck(ctx context.Context) map[string]bool {
	health := make(map[string]bool, s.registry.Len())

	probe := models.AnalysisRequest{
		SystemPrompt: "Respond with a JSON object: {\"summary\": \"ok\"}",
		UserPrompt:   "health check",
	}

	for _, name := range s.registry.Names() {
		provider, ok := s.registry.Get(name)
		if !ok {
			health[name] = false
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		_, err := provider.Analyze(checkCtx, probe)
		cancel()

		health[name] = err == nil
		if err != nil {
			s.logger.Warn("ai provider health check failed", "provider", name, "error", err)
		}
	}

	return health
}

// candidateOrder resolves the provider attempt order: primary first, then
// explicit fallbacks if given, else the remaining registered providers.
// Duplicates are removed while preserving first occurrence.
func (s *AnalysisService) candidateOrder(primary string, fallbacks []string) []string {
	if primary == "" {
		primary = s.defaultProvider
	}

	rest := fallbacks
	if len(rest) == 0 {
		rest = s.registry.Names()
	}

	seen := make(map[string]bool)
	var order []string
	for _, name := range append([]string{primary}, rest...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	return order
}
