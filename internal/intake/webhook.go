package intake

import (
	"time"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// WebhookDecision is the outcome of classifying an inbound hook payload.
type WebhookDecision struct {
	ShouldAnalyze bool
	Reason        string
	Event         models.FailureEvent
}

// ClassifyWebhook decides whether a hook payload warrants analysis. Only
// pipeline or job hooks reporting failed or canceled status do; everything
// else is acknowledged and ignored.
func ClassifyWebhook(event *models.WebhookEvent) WebhookDecision {
	switch {
	case event == nil:
		return WebhookDecision{Reason: "empty payload"}
	case !event.IsPipelineHook() && !event.IsJobHook():
		return WebhookDecision{Reason: "unsupported object_kind: " + event.ObjectKind}
	}

	status := event.Status()
	if status != models.PipelineStatusFailed && status != models.PipelineStatusCanceled {
		return WebhookDecision{Reason: "status is " + status + ", nothing to analyze"}
	}

	return WebhookDecision{
		ShouldAnalyze: true,
		Event:         toFailureEvent(event),
	}
}

// toFailureEvent normalizes the two payload shapes into one failure event.
// Failed job IDs are extracted when the payload carries them, but their
// absence is fine: the engine falls back to querying the API directly.
func toFailureEvent(event *models.WebhookEvent) models.FailureEvent {
	fe := models.FailureEvent{
		ProjectID:     event.Project.ID,
		Status:        event.Status(),
		Source:        models.EventSourceWebhook,
		ReceivedAt:    time.Now().UTC(),
		ProjectName:   event.Project.Name,
		ProjectPath:   event.Project.PathWithNamespace,
		ProjectWebURL: event.Project.WebURL,
		Payload:       event,
	}

	if event.IsJobHook() {
		fe.ProjectID = pickID(event.ProjectID, event.Project.ID)
		fe.PipelineID = event.PipelineID
		fe.Ref = event.Ref
		fe.CommitSHA = event.SHA
		if event.BuildID != 0 {
			fe.JobIDs = []int64{event.BuildID}
		}
		return fe
	}

	if attrs := event.ObjectAttributes; attrs != nil {
		fe.PipelineID = attrs.ID
		fe.Ref = attrs.Ref
		fe.CommitSHA = attrs.SHA
		fe.PipelineWebURL = attrs.WebURL
	}
	for _, build := range event.Builds {
		if build.Status == models.PipelineStatusFailed {
			fe.JobIDs = append(fe.JobIDs, build.ID)
		}
	}
	return fe
}

func pickID(primary, fallback int64) int64 {
	if primary != 0 {
		return primary
	}
	return fallback
}
