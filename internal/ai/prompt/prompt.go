// Package prompt composes the system and user prompts for a failure analysis
// request. Pure functions only; callers' inputs are never mutated.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// systemPrompt sets the analyst role and pins the response schema. Every
// provider receives exactly the same instructions.
const systemPrompt = `You are an expert CI/CD engineer performing root cause analysis of failed pipelines.

Analyze the provided job log and context, then respond with a single JSON object matching this schema exactly:
{
  "summary": "one-paragraph plain-language summary of what went wrong",
  "root_cause": "the specific underlying cause of the failure",
  "category": "one of: build_failure, test_failure, deployment_failure, dependency_issue, configuration_error, infrastructure_issue, security_issue, performance_issue, code_quality, unknown",
  "severity_level": "one of: critical, high, medium, low, info",
  "confidence_score": 0.0,
  "immediate_actions": ["concrete step to fix the failure now"],
  "preventive_measures": ["change that prevents recurrence"],
  "documentation_links": ["relevant documentation URL"],
  "tags": ["short keyword"],
  "results": ["notable finding from the log"]
}

Respond with the JSON object only. No markdown fences, no commentary outside the JSON.`

// closingInstruction is appended after all context blocks.
const closingInstruction = "Produce the JSON analysis now, following the schema from your instructions exactly."

// Stage-specific guidance, selected by keyword match on stage name, job name
// and failure reason.
var stageTemplates = map[string]string{
	"build": `Focus on compilation and build tooling: missing dependencies, version mismatches, syntax errors, build cache corruption, and toolchain configuration.`,
	"test": `Focus on test failures: distinguish genuine regressions from flaky tests, missing test fixtures, environment differences, and timing-sensitive assertions.`,
	"deploy": `Focus on deployment concerns: credentials and permissions, target environment availability, rollout configuration, and infrastructure quota limits.`,
	"security": `Focus on security scanning output: vulnerability findings, license violations, secret detection, and whether failures are new findings or threshold changes.`,
	"performance": `Focus on performance regressions: benchmark thresholds, resource exhaustion, timeouts, and load profile changes.`,
	"generic": `Consider all common CI failure classes: build errors, test failures, configuration problems, infrastructure flakiness and dependency issues.`,
}

var stageKeywords = []struct {
	template string
	keywords []string
}{
	{"build", []string{"build", "compile", "package"}},
	{"test", []string{"test", "spec", "unit", "integration", "e2e"}},
	{"deploy", []string{"deploy", "release", "publish", "rollout", "staging", "production"}},
	{"security", []string{"security", "sast", "dast", "audit", "scan", "vulnerab"}},
	{"performance", []string{"performance", "bench", "load", "stress"}},
}

// maxLogChars bounds the log excerpt embedded in the user prompt. The log
// processor already bounds size; this is the per-prompt character ceiling.
const maxLogChars = 12000

// Context carries everything known about the failure when the prompt is built.
// Optional fields may be zero-valued and are simply omitted from the prompt.
type Context struct {
	Project    *models.Project
	Pipeline   *models.Pipeline
	JobLog     models.JobLogEntry
	Ref        string
	CIConfig   string
	Repository []models.TreeEntry
}

// Build returns the (system, user) prompt pair for one analysis attempt.
// Deterministic: the same context always yields the same prompts.
func Build(pc Context) (system, user string) {
	var b strings.Builder

	b.WriteString("# Pipeline Failure\n\n")
	fmt.Fprintf(&b, "Job: %s (stage: %s, status: %s)\n", pc.JobLog.Name, pc.JobLog.Stage, pc.JobLog.Status)
	if pc.JobLog.FailureReason != "" {
		fmt.Fprintf(&b, "Reported failure reason: %s\n", pc.JobLog.FailureReason)
	}
	if pc.JobLog.Duration > 0 {
		fmt.Fprintf(&b, "Job duration: %.0fs\n", pc.JobLog.Duration)
	}
	if pc.Ref != "" {
		fmt.Fprintf(&b, "Ref: %s\n", pc.Ref)
	}

	if pc.Project != nil {
		b.WriteString("\n# Project\n\n")
		fmt.Fprintf(&b, "Name: %s\n", pc.Project.PathWithNamespace)
		if pc.Project.DefaultBranch != "" {
			fmt.Fprintf(&b, "Default branch: %s\n", pc.Project.DefaultBranch)
		}
		if pc.Project.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", pc.Project.Description)
		}
	}

	if pc.Pipeline != nil {
		b.WriteString("\n# Pipeline\n\n")
		fmt.Fprintf(&b, "ID: %d, status: %s, ref: %s\n", pc.Pipeline.ID, pc.Pipeline.Status, pc.Pipeline.Ref)
	}

	if pc.CIConfig != "" {
		b.WriteString("\n# CI Configuration\n\n```yaml\n")
		b.WriteString(truncate(pc.CIConfig, 4000))
		b.WriteString("\n```\n")
	}

	if len(pc.Repository) > 0 {
		b.WriteString("\n# Repository Files\n\n")
		for i, entry := range pc.Repository {
			if i >= 50 {
				fmt.Fprintf(&b, "... and %d more\n", len(pc.Repository)-i)
				break
			}
			fmt.Fprintf(&b, "- %s\n", entry.Path)
		}
	}

	b.WriteString("\n# Analysis Guidance\n\n")
	b.WriteString(stageTemplates[SelectTemplate(pc.JobLog.Stage, pc.JobLog.Name, pc.JobLog.FailureReason)])
	b.WriteString("\n")

	b.WriteString("\n# Job Log\n\n```\n")
	b.WriteString(truncate(pc.JobLog.LogExcerpt, maxLogChars))
	b.WriteString("\n```\n\n")

	b.WriteString(closingInstruction)

	return systemPrompt, b.String()
}

// SelectTemplate picks the guidance template by keyword match, checking the
// stage name first, then the job name, then the failure reason. Total: falls
// back to "generic" when nothing matches.
func SelectTemplate(stage, jobName, failureReason string) string {
	for _, field := range []string{stage, jobName, failureReason} {
		lowered := strings.ToLower(field)
		if lowered == "" {
			continue
		}
		for _, entry := range stageKeywords {
			for _, kw := range entry.keywords {
				if strings.Contains(lowered, kw) {
					return entry.template
				}
			}
		}
	}
	return "generic"
}

// truncate shortens s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n... [truncated]"
}
