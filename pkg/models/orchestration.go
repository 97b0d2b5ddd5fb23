package models

import "time"

// Orchestration run states. PENDING is the only initial state; COMPLETED,
// FAILED and TIMEOUT are terminal.
const (
	RunStatusPending    = "pending"
	RunStatusProcessing = "processing"
	RunStatusAnalyzing  = "analyzing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusTimeout    = "timeout"
)

// TerminalRunStatus reports whether status admits no further transitions.
func TerminalRunStatus(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusTimeout:
		return true
	}
	return false
}

// OrchestrationRequest is the read-only input to one analysis run.
type OrchestrationRequest struct {
	Event                  FailureEvent `json:"event"`
	Priority               int          `json:"priority"`
	IncludeContext         bool         `json:"include_context"`
	IncludeRepositoryFiles bool         `json:"include_repository_files"`
	MaxAnalysisDepth       int          `json:"max_analysis_depth"`
	TimeoutSeconds         int          `json:"timeout_seconds"`

	// Provider and FallbackProviders override the configured AI backends
	// for this run. Both optional.
	Provider          string   `json:"provider,omitempty"`
	FallbackProviders []string `json:"fallback_providers,omitempty"`
}

// JobLogEntry is one failed job's bounded log excerpt plus metadata. Entries
// are never mutated, only replaced wholesale when a richer fetch supersedes
// payload-derived logs.
type JobLogEntry struct {
	JobID         int64   `json:"job_id"`
	Name          string  `json:"name"`
	Stage         string  `json:"stage"`
	Status        string  `json:"status"`
	FailureReason string  `json:"failure_reason,omitempty"`
	Duration      float64 `json:"duration"`
	LogExcerpt    string  `json:"log_excerpt"`
}

// Error categories for a synthesized analysis.
const (
	CategoryBuildFailure       = "build_failure"
	CategoryTestFailure        = "test_failure"
	CategoryDeploymentFailure  = "deployment_failure"
	CategoryDependencyIssue    = "dependency_issue"
	CategoryConfigurationError = "configuration_error"
	CategoryInfrastructure     = "infrastructure_issue"
	CategorySecurityIssue      = "security_issue"
	CategoryPerformanceIssue   = "performance_issue"
	CategoryCodeQuality        = "code_quality"
	CategoryUnknown            = "unknown"
)

// ValidCategory reports whether c is one of the defined analysis categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryBuildFailure, CategoryTestFailure, CategoryDeploymentFailure,
		CategoryDependencyIssue, CategoryConfigurationError, CategoryInfrastructure,
		CategorySecurityIssue, CategoryPerformanceIssue, CategoryCodeQuality,
		CategoryUnknown:
		return true
	}
	return false
}

// Severity levels for a synthesized analysis.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// ValidSeverity reports whether s is one of the defined severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// ErrorAnalysis is the synthesized verdict for a run. Created once at the
// final orchestration stage, immutable afterwards.
type ErrorAnalysis struct {
	Category          string   `json:"category"`
	Severity          string   `json:"severity"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	RootCause         string   `json:"root_cause"`
	ImmediateFixes    []string `json:"immediate_fixes"`
	LongTermSolutions []string `json:"long_term_solutions"`
	ConfidenceScore   float64  `json:"confidence_score"`
	AIProviderUsed    string   `json:"ai_provider_used"`
}

// OrchestrationResponse is the per-run state machine instance. It is owned by
// the orchestration engine for the run's lifetime and held in the in-memory
// registry keyed by RequestID.
type OrchestrationResponse struct {
	RequestID             string         `json:"request_id"`
	Status                string         `json:"status"`
	ProjectID             int64          `json:"project_id"`
	PipelineID            int64          `json:"pipeline_id"`
	FailedJobIDs          []int64        `json:"failed_job_ids"`
	JobLogs               []JobLogEntry  `json:"job_logs"`
	ErrorAnalysis         *ErrorAnalysis `json:"error_analysis,omitempty"`
	ProcessingSteps       []string       `json:"processing_steps"`
	Warnings              []string       `json:"warnings,omitempty"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
	TotalProcessingTimeMS int64          `json:"total_processing_time_ms"`
}
