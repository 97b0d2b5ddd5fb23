package ai

import (
	"fmt"

	"github.com/kiranshivaraju/pipehunter/internal/ai/anthropic"
	"github.com/kiranshivaraju/pipehunter/internal/ai/openai"
	"github.com/kiranshivaraju/pipehunter/internal/config"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// NewRegistryFromConfig builds the provider registry. The configured default
// provider is registered first so registration order doubles as the implicit
// fallback order. Called once at server startup.
func NewRegistryFromConfig(cfg config.AIConfig) (*Registry, error) {
	registry := NewRegistry()

	names := append([]string{cfg.Provider}, cfg.FallbackProviders...)
	// Register any remaining known providers last so they remain reachable
	// as implicit fallbacks.
	for _, name := range []string{"openai", "anthropic"} {
		names = append(names, name)
	}

	for _, name := range names {
		if _, exists := registry.Get(name); exists {
			continue
		}
		provider, err := newProvider(name, cfg)
		if err != nil {
			return nil, err
		}
		registry.Register(provider)
	}

	return registry, nil
}

func newProvider(name string, cfg config.AIConfig) (models.AIProvider, error) {
	switch name {
	case "openai":
		return openai.NewProvider(openai.Options{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     cfg.AnalysisTimeout,
		}), nil
	case "anthropic":
		return anthropic.NewProvider(anthropic.Options{
			APIKey:      cfg.Anthropic.APIKey,
			BaseURL:     cfg.Anthropic.BaseURL,
			Model:       cfg.Anthropic.Model,
			Temperature: cfg.Anthropic.Temperature,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Timeout:     cfg.AnalysisTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q (must be one of openai, anthropic)", ErrUnknownProvider, name)
	}
}
