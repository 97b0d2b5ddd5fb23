package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

func pipelineHook(status string) *models.WebhookEvent {
	return &models.WebhookEvent{
		ObjectKind: "Pipeline Hook",
		Project: models.WebhookProject{
			ID:                42,
			Name:              "widget",
			PathWithNamespace: "acme/widget",
			WebURL:            "https://gitlab.example.com/acme/widget",
		},
		ObjectAttributes: &models.WebhookAttributes{
			ID:     900,
			Status: status,
			Ref:    "main",
			SHA:    "deadbeef",
		},
		Builds: []models.WebhookBuild{
			{ID: 1, Name: "build", Stage: "build", Status: "success"},
			{ID: 2, Name: "unit-tests", Stage: "test", Status: "failed", FailureReason: "script_failure"},
		},
	}
}

func TestClassifyWebhook_FailedPipeline(t *testing.T) {
	decision := ClassifyWebhook(pipelineHook("failed"))

	require.True(t, decision.ShouldAnalyze)
	assert.Equal(t, int64(42), decision.Event.ProjectID)
	assert.Equal(t, int64(900), decision.Event.PipelineID)
	assert.Equal(t, []int64{2}, decision.Event.JobIDs, "only failed builds become job candidates")
	assert.Equal(t, models.EventSourceWebhook, decision.Event.Source)
}

func TestClassifyWebhook_CanceledPipeline(t *testing.T) {
	decision := ClassifyWebhook(pipelineHook("canceled"))
	assert.True(t, decision.ShouldAnalyze)
}

func TestClassifyWebhook_SuccessIsIgnored(t *testing.T) {
	decision := ClassifyWebhook(pipelineHook("success"))
	assert.False(t, decision.ShouldAnalyze)
	assert.Contains(t, decision.Reason, "success")
}

func TestClassifyWebhook_ShortObjectKind(t *testing.T) {
	event := pipelineHook("failed")
	event.ObjectKind = "pipeline"
	assert.True(t, ClassifyWebhook(event).ShouldAnalyze)
}

func TestClassifyWebhook_JobHook(t *testing.T) {
	event := &models.WebhookEvent{
		ObjectKind:         "Job Hook",
		Project:            models.WebhookProject{ID: 42},
		BuildID:            77,
		BuildName:          "deploy-prod",
		BuildStage:         "deploy",
		BuildStatus:        "failed",
		BuildFailureReason: "script_failure",
		PipelineID:         900,
		Ref:                "main",
	}

	decision := ClassifyWebhook(event)
	require.True(t, decision.ShouldAnalyze)
	assert.Equal(t, []int64{77}, decision.Event.JobIDs)
	assert.Equal(t, int64(900), decision.Event.PipelineID)
}

func TestClassifyWebhook_UnsupportedKind(t *testing.T) {
	decision := ClassifyWebhook(&models.WebhookEvent{ObjectKind: "Merge Request Hook"})
	assert.False(t, decision.ShouldAnalyze)
	assert.Contains(t, decision.Reason, "object_kind")
}

func TestClassifyWebhook_NilPayload(t *testing.T) {
	decision := ClassifyWebhook(nil)
	assert.False(t, decision.ShouldAnalyze)
}

func TestClassifyWebhook_NoFailedBuildsStillAnalyzes(t *testing.T) {
	event := pipelineHook("failed")
	event.Builds = nil

	decision := ClassifyWebhook(event)
	require.True(t, decision.ShouldAnalyze, "missing build list falls back to API queries later")
	assert.Empty(t, decision.Event.JobIDs)
}
