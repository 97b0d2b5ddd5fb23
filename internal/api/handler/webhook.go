// Package handler contains the HTTP handlers for the public API surface.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/pipehunter/internal/api/response"
	"github.com/kiranshivaraju/pipehunter/internal/intake"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// maxWebhookBody bounds inbound payloads; pipeline hooks with inline build
// logs can get large but anything past this is abuse.
const maxWebhookBody = 5 << 20

// Launcher starts a background analysis run from a failure event.
type Launcher interface {
	Launch(req models.OrchestrationRequest) *models.OrchestrationResponse
}

// NewWebhookHandler returns the handler for POST /api/v1/webhooks/gitlab.
// Non-failure events are acknowledged and ignored; failures get a background
// run and an immediate 202 with the request ID to poll.
func NewWebhookHandler(launcher Launcher, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)

		var event models.WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		decision := intake.ClassifyWebhook(&event)
		if !decision.ShouldAnalyze {
			logger.Debug("webhook ignored", "object_kind", event.ObjectKind, "reason", decision.Reason)
			response.JSON(w, map[string]string{
				"status": "ignored",
				"reason": decision.Reason,
			})
			return
		}

		resp := launcher.Launch(models.OrchestrationRequest{Event: decision.Event})
		logger.Info("webhook accepted for analysis",
			"request_id", resp.RequestID,
			"project_id", decision.Event.ProjectID,
			"pipeline_id", decision.Event.PipelineID)

		response.Accepted(w, map[string]string{
			"status":     "accepted",
			"request_id": resp.RequestID,
		})
	}
}
