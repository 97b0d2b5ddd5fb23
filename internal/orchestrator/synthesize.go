package orchestrator

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// genericPreventiveMeasures are merged into every verdict's long-term
// suggestions, deduplicated against AI-provided ones.
var genericPreventiveMeasures = []string{
	"Add a retry policy for transient infrastructure failures",
	"Pin dependency versions to avoid unexpected upstream changes",
	"Run the failing stage locally or in a merge-request pipeline before merging",
	"Add alerting on repeated failures of the same job",
}

// categoryKeywords maps keyword fragments to analysis categories, checked
// against the AI-reported category when it is not already an exact match.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"build", models.CategoryBuildFailure},
	{"compil", models.CategoryBuildFailure},
	{"test", models.CategoryTestFailure},
	{"deploy", models.CategoryDeploymentFailure},
	{"release", models.CategoryDeploymentFailure},
	{"depend", models.CategoryDependencyIssue},
	{"config", models.CategoryConfigurationError},
	{"infra", models.CategoryInfrastructure},
	{"network", models.CategoryInfrastructure},
	{"secur", models.CategorySecurityIssue},
	{"perf", models.CategoryPerformanceIssue},
	{"lint", models.CategoryCodeQuality},
	{"quality", models.CategoryCodeQuality},
}

// synthesize builds the final verdict from the AI result (possibly nil) and
// the primary failed job's metadata. Always returns a non-nil analysis.
func synthesize(aiResult *models.AnalysisResult, job models.JobLogEntry) *models.ErrorAnalysis {
	analysis := &models.ErrorAnalysis{
		Category: deriveCategory(aiResult, job),
		Severity: deriveSeverity(aiResult),
	}

	if aiResult != nil && aiResult.Summary != "" {
		analysis.Title = firstLine(aiResult.Summary)
		analysis.Description = aiResult.Summary
		analysis.RootCause = aiResult.RootCause
		analysis.ConfidenceScore = aiResult.ConfidenceScore
		analysis.AIProviderUsed = aiResult.Provider
		analysis.ImmediateFixes = append([]string(nil), aiResult.ImmediateActions...)
		analysis.LongTermSolutions = mergeUnique(aiResult.PreventiveMeasures, genericPreventiveMeasures)
		return analysis
	}

	analysis.Title = fmt.Sprintf("Job %q failed in stage %q", job.Name, job.Stage)
	if job.FailureReason != "" {
		analysis.Description = fmt.Sprintf("Job %q (stage %q) failed: %s", job.Name, job.Stage, job.FailureReason)
		analysis.RootCause = job.FailureReason
	} else {
		analysis.Description = fmt.Sprintf("Job %q in stage %q ended with status %q. See the log excerpt for details.", job.Name, job.Stage, job.Status)
	}
	analysis.LongTermSolutions = append([]string(nil), genericPreventiveMeasures...)
	return analysis
}

// deriveCategory prefers the AI-reported category, falling back to keyword
// matching on it and then on the job's stage and name. Total: never returns
// an invalid category.
func deriveCategory(aiResult *models.AnalysisResult, job models.JobLogEntry) string {
	if aiResult != nil {
		if models.ValidCategory(aiResult.Category) {
			return aiResult.Category
		}
		if c, ok := matchCategory(aiResult.Category); ok {
			return c
		}
	}
	if c, ok := matchCategory(job.Stage); ok {
		return c
	}
	if c, ok := matchCategory(job.Name); ok {
		return c
	}
	return models.CategoryUnknown
}

func matchCategory(s string) (string, bool) {
	s = strings.ToLower(s)
	if s == "" {
		return "", false
	}
	for _, kw := range categoryKeywords {
		if strings.Contains(s, kw.keyword) {
			return kw.category, true
		}
	}
	return "", false
}

// deriveSeverity maps the AI-reported level, defaulting to medium.
func deriveSeverity(aiResult *models.AnalysisResult) string {
	if aiResult != nil && models.ValidSeverity(aiResult.SeverityLevel) {
		return aiResult.SeverityLevel
	}
	return models.SeverityMedium
}

func mergeUnique(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, item := range list {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
