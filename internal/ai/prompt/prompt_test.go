package prompt

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

func baseContext() Context {
	return Context{
		JobLog: models.JobLogEntry{
			JobID:      101,
			Name:       "unit-tests",
			Stage:      "test",
			Status:     "failed",
			LogExcerpt: "assert failed: expected 3, got 4",
		},
		Ref: "main",
	}
}

func TestBuild_Deterministic(t *testing.T) {
	pc := baseContext()
	sys1, user1 := Build(pc)
	sys2, user2 := Build(pc)
	if sys1 != sys2 || user1 != user2 {
		t.Error("repeated builds with identical context differ")
	}
}

func TestBuild_SystemPromptPinsSchema(t *testing.T) {
	sys, _ := Build(baseContext())
	for _, field := range []string{"summary", "root_cause", "category", "severity_level", "confidence_score"} {
		if !strings.Contains(sys, field) {
			t.Errorf("system prompt missing schema field %q", field)
		}
	}
}

func TestBuild_IncludesJobContext(t *testing.T) {
	_, user := Build(baseContext())
	if !strings.Contains(user, "unit-tests") {
		t.Error("job name missing from user prompt")
	}
	if !strings.Contains(user, "assert failed") {
		t.Error("log excerpt missing from user prompt")
	}
	if !strings.HasSuffix(user, closingInstruction) {
		t.Error("closing instruction must end the user prompt")
	}
}

func TestBuild_OptionalBlocks(t *testing.T) {
	pc := baseContext()
	pc.Project = &models.Project{PathWithNamespace: "acme/widget", DefaultBranch: "main"}
	pc.CIConfig = "stages:\n  - test\n"
	pc.Repository = []models.TreeEntry{{Path: "Makefile"}, {Path: "go.mod"}}

	_, user := Build(pc)
	if !strings.Contains(user, "acme/widget") {
		t.Error("project block missing")
	}
	if !strings.Contains(user, "stages:") {
		t.Error("CI config block missing")
	}
	if !strings.Contains(user, "Makefile") {
		t.Error("repository files block missing")
	}
}

func TestBuild_OmitsEmptyBlocks(t *testing.T) {
	_, user := Build(baseContext())
	if strings.Contains(user, "# Project") {
		t.Error("project block present without a project")
	}
	if strings.Contains(user, "# CI Configuration") {
		t.Error("CI config block present without config")
	}
}

func TestSelectTemplate(t *testing.T) {
	tests := []struct {
		stage, job, reason string
		want               string
	}{
		{"build", "", "", "build"},
		{"compile-all", "", "", "build"},
		{"test", "", "", "test"},
		{"", "integration-suite", "", "test"},
		{"deploy-prod", "", "", "deploy"},
		{"", "", "release script exited", "deploy"},
		{"sast", "", "", "security"},
		{"", "load-test", "", "test"}, // job name checked after stage, "test" keyword wins
		{"bench", "", "", "performance"},
		{"lint", "check-style", "style violations", "generic"},
		{"", "", "", "generic"},
	}

	for _, tc := range tests {
		if got := SelectTemplate(tc.stage, tc.job, tc.reason); got != tc.want {
			t.Errorf("SelectTemplate(%q, %q, %q) = %q, want %q", tc.stage, tc.job, tc.reason, got, tc.want)
		}
	}
}

func TestTruncate_PreservesValidUTF8(t *testing.T) {
	s := strings.Repeat("é", 100)
	got := truncate(s, 51)
	if !strings.HasSuffix(got, "[truncated]") {
		t.Errorf("expected truncation suffix, got %q", got)
	}
	for _, r := range got {
		if r == '�' {
			t.Fatal("truncation produced an invalid UTF-8 sequence")
		}
	}
}
