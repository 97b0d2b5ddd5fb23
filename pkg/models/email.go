package models

import (
	"time"

	"github.com/google/uuid"
)

// Processed-email record states. Only "completed" counts as done for dedup;
// any other status marks the record reprocessable (delete and retry).
const (
	EmailStatusPending            = "pending"
	EmailStatusFetchingGitLabData = "fetching_gitlab_data"
	EmailStatusProcessingPipeline = "processing_pipeline"
	EmailStatusCompleted          = "completed"
	EmailStatusNoGitLabHeaders    = "no_gitlab_headers"
	EmailStatusOrchestrationFail  = "orchestration_failed"
	EmailStatusError              = "error"
)

// ProcessedEmailRecord is the persistent dedup/audit row for one inbound
// notification email. MessageUID and MessageID are each unique, so at most
// one record exists per physical email.
type ProcessedEmailRecord struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	MessageUID     string     `db:"message_uid"     json:"message_uid"`
	MessageID      *string    `db:"message_id"      json:"message_id,omitempty"`
	ReceivedAt     time.Time  `db:"received_at"     json:"received_at"`
	FromEmail      string     `db:"from_email"      json:"from_email"`
	Subject        string     `db:"subject"         json:"subject"`
	ProjectID      *int64     `db:"project_id"      json:"project_id,omitempty"`
	PipelineID     *int64     `db:"pipeline_id"     json:"pipeline_id,omitempty"`
	PipelineRef    *string    `db:"pipeline_ref"    json:"pipeline_ref,omitempty"`
	PipelineStatus *string    `db:"pipeline_status" json:"pipeline_status,omitempty"`
	Status         string     `db:"status"          json:"status"`
	ErrorMessage   *string    `db:"error_message"   json:"error_message,omitempty"`
	GitLabErrorLog *string    `db:"gitlab_error_log" json:"gitlab_error_log,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}
