package orchestrator

import (
	"testing"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_PrefersAIVerdict(t *testing.T) {
	aiResult := &models.AnalysisResult{
		Summary:            "Dependency resolution failed\nnpm could not reach the registry",
		RootCause:          "Registry outage during install",
		Category:           models.CategoryDependencyIssue,
		SeverityLevel:      models.SeverityHigh,
		ConfidenceScore:    0.9,
		Provider:           "openai",
		ImmediateActions:   []string{"Retry the pipeline"},
		PreventiveMeasures: []string{"Use a dependency proxy"},
	}
	job := models.JobLogEntry{Name: "install", Stage: "build"}

	analysis := synthesize(aiResult, job)
	require.NotNil(t, analysis)

	assert.Equal(t, models.CategoryDependencyIssue, analysis.Category)
	assert.Equal(t, models.SeverityHigh, analysis.Severity)
	assert.Equal(t, "Dependency resolution failed", analysis.Title)
	assert.Equal(t, "Registry outage during install", analysis.RootCause)
	assert.Equal(t, 0.9, analysis.ConfidenceScore)
	assert.Equal(t, "openai", analysis.AIProviderUsed)
	assert.Equal(t, []string{"Retry the pipeline"}, analysis.ImmediateFixes)
	// AI measures come first, generics appended without duplicates.
	assert.Equal(t, "Use a dependency proxy", analysis.LongTermSolutions[0])
	assert.Greater(t, len(analysis.LongTermSolutions), 1)
}

func TestSynthesize_HeuristicFallbackWithoutAI(t *testing.T) {
	job := models.JobLogEntry{
		Name:          "deploy-prod",
		Stage:         "deploy",
		Status:        models.PipelineStatusFailed,
		FailureReason: "script_failure",
	}

	analysis := synthesize(nil, job)
	require.NotNil(t, analysis)

	assert.Equal(t, models.CategoryDeploymentFailure, analysis.Category)
	assert.Equal(t, models.SeverityMedium, analysis.Severity)
	assert.Contains(t, analysis.Title, "deploy-prod")
	assert.Equal(t, "script_failure", analysis.RootCause)
	assert.NotEmpty(t, analysis.LongTermSolutions)
}

func TestDeriveCategory(t *testing.T) {
	tests := []struct {
		name     string
		ai       *models.AnalysisResult
		job      models.JobLogEntry
		expected string
	}{
		{
			name:     "valid AI category wins",
			ai:       &models.AnalysisResult{Category: models.CategorySecurityIssue},
			job:      models.JobLogEntry{Stage: "build"},
			expected: models.CategorySecurityIssue,
		},
		{
			name:     "free-text AI category keyword matched",
			ai:       &models.AnalysisResult{Category: "compilation error"},
			job:      models.JobLogEntry{Stage: "test"},
			expected: models.CategoryBuildFailure,
		},
		{
			name:     "stage heuristic",
			ai:       &models.AnalysisResult{Category: "something odd"},
			job:      models.JobLogEntry{Stage: "test", Name: "unit"},
			expected: models.CategoryTestFailure,
		},
		{
			name:     "job name heuristic",
			ai:       nil,
			job:      models.JobLogEntry{Stage: "verify", Name: "lint-check"},
			expected: models.CategoryCodeQuality,
		},
		{
			name:     "nothing matches",
			ai:       nil,
			job:      models.JobLogEntry{Stage: "misc", Name: "other"},
			expected: models.CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, deriveCategory(tt.ai, tt.job))
		})
	}
}

func TestDeriveSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityCritical,
		deriveSeverity(&models.AnalysisResult{SeverityLevel: models.SeverityCritical}))
	assert.Equal(t, models.SeverityMedium,
		deriveSeverity(&models.AnalysisResult{SeverityLevel: "catastrophic"}))
	assert.Equal(t, models.SeverityMedium, deriveSeverity(nil))
}

func TestMergeUnique(t *testing.T) {
	merged := mergeUnique(
		[]string{"Pin versions", "Add retries", ""},
		[]string{"pin versions", "Add caching"},
	)
	assert.Equal(t, []string{"Pin versions", "Add retries", "Add caching"}, merged)
}
