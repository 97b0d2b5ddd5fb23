package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Trigger modes select which intake paths are active.
const (
	TriggerWebhook = "webhook"
	TriggerEmail   = "email"
	TriggerBoth    = "both"
)

// Config holds all configuration for the Pipehunter server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	GitLab   GitLabConfig
	AI       AIConfig
	Email    EmailConfig
	Analysis AnalysisConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	WebhookSecret string
	RateLimit     int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type GitLabConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxRetries     int
	MaxLogSizeMB   int
	LogContextLines int
	AutoFetchCIConfig bool
	AutoFetchFiles    bool
}

type AIConfig struct {
	Provider          string
	FallbackProviders []string
	AnalysisTimeout   time.Duration
	OpenAI            OpenAIConfig
	Anthropic         AnthropicConfig
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

type EmailConfig struct {
	ExpectedSender  string
	FailureKeywords []string
	PollInterval    time.Duration
}

type AnalysisConfig struct {
	TriggerMode    string
	Timeout        time.Duration
	MaxConcurrent  int
	IncludeContext bool
	IncludeFiles   bool
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

var validTriggerModes = map[string]bool{
	TriggerWebhook: true,
	TriggerEmail:   true,
	TriggerBoth:    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          envInt("PIPEHUNTER_PORT", 8080),
			Env:           envString("PIPEHUNTER_ENV", "development"),
			WebhookSecret: os.Getenv("GITLAB_WEBHOOK_SECRET"),
			RateLimit:     envInt("WEBHOOK_RATE_LIMIT", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		GitLab: GitLabConfig{
			BaseURL:           envString("GITLAB_BASE_URL", "https://gitlab.com"),
			Token:             os.Getenv("GITLAB_TOKEN"),
			Timeout:           envDurationSecs("GITLAB_TIMEOUT_SECS", 30*time.Second),
			MaxRetries:        envInt("GITLAB_MAX_RETRIES", 3),
			MaxLogSizeMB:      envInt("GITLAB_MAX_LOG_SIZE_MB", 10),
			LogContextLines:   envInt("GITLAB_LOG_CONTEXT_LINES", 50),
			AutoFetchCIConfig: envBool("GITLAB_AUTO_FETCH_CI_CONFIG", true),
			AutoFetchFiles:    envBool("GITLAB_AUTO_FETCH_FILES", false),
		},
		AI: AIConfig{
			Provider:          envString("AI_PROVIDER", "openai"),
			FallbackProviders: envList("AI_FALLBACK_PROVIDERS", nil),
			AnalysisTimeout:   envDurationSecs("AI_ANALYSIS_TIMEOUT_SECS", 120*time.Second),
			OpenAI: OpenAIConfig{
				APIKey:      os.Getenv("OPENAI_API_KEY"),
				BaseURL:     envString("OPENAI_BASE_URL", "https://api.openai.com"),
				Model:       envString("OPENAI_MODEL", "gpt-4"),
				Temperature: envFloat("OPENAI_TEMPERATURE", 0.1),
				MaxTokens:   envInt("OPENAI_MAX_TOKENS", 2000),
			},
			Anthropic: AnthropicConfig{
				APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
				BaseURL:     envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Model:       envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				Temperature: envFloat("ANTHROPIC_TEMPERATURE", 0.1),
				MaxTokens:   envInt("ANTHROPIC_MAX_TOKENS", 2000),
			},
		},
		Email: EmailConfig{
			ExpectedSender:  os.Getenv("EMAIL_EXPECTED_SENDER"),
			FailureKeywords: envList("EMAIL_FAILURE_KEYWORDS", []string{"failed", "failure", "broken"}),
			PollInterval:    envDurationSecs("EMAIL_POLL_INTERVAL_SECS", 60*time.Second),
		},
		Analysis: AnalysisConfig{
			TriggerMode:    envString("ANALYSIS_TRIGGER_MODE", TriggerWebhook),
			Timeout:        envDurationSecs("ANALYSIS_TIMEOUT_SECS", 300*time.Second),
			MaxConcurrent:  envInt("ANALYSIS_MAX_CONCURRENT", 10),
			IncludeContext: envBool("ANALYSIS_INCLUDE_CONTEXT", true),
			IncludeFiles:   envBool("ANALYSIS_INCLUDE_FILES", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.GitLab.BaseURL == "" {
		return fmt.Errorf("GITLAB_BASE_URL is required")
	}
	if !strings.HasPrefix(c.GitLab.BaseURL, "http://") && !strings.HasPrefix(c.GitLab.BaseURL, "https://") {
		return fmt.Errorf("GITLAB_BASE_URL must start with http:// or https://, got %q", c.GitLab.BaseURL)
	}
	if c.GitLab.MaxRetries < 0 {
		return fmt.Errorf("GITLAB_MAX_RETRIES must be >= 0, got %d", c.GitLab.MaxRetries)
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, anthropic; got %q", c.AI.Provider)
	}
	for _, p := range c.AI.FallbackProviders {
		if !validProviders[p] {
			return fmt.Errorf("AI_FALLBACK_PROVIDERS contains unknown provider %q", p)
		}
	}

	if !validTriggerModes[c.Analysis.TriggerMode] {
		return fmt.Errorf("ANALYSIS_TRIGGER_MODE must be one of webhook, email, both; got %q", c.Analysis.TriggerMode)
	}
	if c.Analysis.TriggerMode != TriggerWebhook && c.Email.ExpectedSender == "" {
		return fmt.Errorf("EMAIL_EXPECTED_SENDER is required when ANALYSIS_TRIGGER_MODE is %s", c.Analysis.TriggerMode)
	}

	return nil
}

// EmailEnabled reports whether the email intake path should run.
func (c *Config) EmailEnabled() bool {
	return c.Analysis.TriggerMode == TriggerEmail || c.Analysis.TriggerMode == TriggerBoth
}

// WebhookEnabled reports whether the webhook intake path should run.
func (c *Config) WebhookEnabled() bool {
	return c.Analysis.TriggerMode == TriggerWebhook || c.Analysis.TriggerMode == TriggerBoth
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
