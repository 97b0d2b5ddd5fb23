package models

import (
	"strings"
	"time"
)

// Pipeline/job status values as reported by the source-control system.
const (
	PipelineStatusPending  = "pending"
	PipelineStatusRunning  = "running"
	PipelineStatusSuccess  = "success"
	PipelineStatusFailed   = "failed"
	PipelineStatusCanceled = "canceled"
	PipelineStatusSkipped  = "skipped"
	PipelineStatusManual   = "manual"
)

// KnownPipelineStatus reports whether s is one of the documented status values.
func KnownPipelineStatus(s string) bool {
	switch s {
	case PipelineStatusPending, PipelineStatusRunning, PipelineStatusSuccess,
		PipelineStatusFailed, PipelineStatusCanceled, PipelineStatusSkipped,
		PipelineStatusManual:
		return true
	}
	return false
}

// Event sources.
const (
	EventSourceWebhook = "webhook"
	EventSourceEmail   = "email"
)

// WebhookEvent is the inbound pipeline/job hook payload. Pipeline hooks carry
// object_attributes plus a builds list; job hooks carry the flat build_* fields.
type WebhookEvent struct {
	ObjectKind       string             `json:"object_kind"`
	Project          WebhookProject     `json:"project"`
	ObjectAttributes *WebhookAttributes `json:"object_attributes,omitempty"`
	Builds           []WebhookBuild     `json:"builds,omitempty"`
	Commit           *WebhookCommit     `json:"commit,omitempty"`

	BuildID            int64  `json:"build_id,omitempty"`
	BuildName          string `json:"build_name,omitempty"`
	BuildStage         string `json:"build_stage,omitempty"`
	BuildStatus        string `json:"build_status,omitempty"`
	BuildFailureReason string `json:"build_failure_reason,omitempty"`
	ProjectID          int64  `json:"project_id,omitempty"`
	PipelineID         int64  `json:"pipeline_id,omitempty"`
	Ref                string `json:"ref,omitempty"`
	SHA                string `json:"sha,omitempty"`
}

// WebhookProject is the project block of a hook payload.
type WebhookProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
	DefaultBranch     string `json:"default_branch"`
}

// WebhookAttributes is the object_attributes block of a pipeline hook.
type WebhookAttributes struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status"`
	Ref           string  `json:"ref"`
	SHA           string  `json:"sha"`
	Duration      float64 `json:"duration"`
	WebURL        string  `json:"web_url"`
	Stage         string  `json:"stage,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// WebhookBuild is one build entry in a pipeline hook payload.
type WebhookBuild struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Stage         string  `json:"stage"`
	Status        string  `json:"status"`
	FailureReason string  `json:"failure_reason,omitempty"`
	Duration      float64 `json:"duration"`
	Log           string  `json:"log,omitempty"`
}

// WebhookCommit is the commit block of a hook payload.
type WebhookCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

// IsPipelineHook reports whether the payload is a pipeline-level event.
// Hook senders vary between the short object kind and the header-style name.
func (e *WebhookEvent) IsPipelineHook() bool {
	switch strings.ToLower(e.ObjectKind) {
	case "pipeline", "pipeline hook":
		return true
	}
	return false
}

// IsJobHook reports whether the payload is a job-level event.
func (e *WebhookEvent) IsJobHook() bool {
	switch strings.ToLower(e.ObjectKind) {
	case "build", "job", "job hook":
		return true
	}
	return false
}

// Status returns the failure status the event reports, regardless of shape.
func (e *WebhookEvent) Status() string {
	if e.IsJobHook() {
		return e.BuildStatus
	}
	if e.ObjectAttributes != nil {
		return e.ObjectAttributes.Status
	}
	return ""
}

// FailureEvent is the canonical "something failed" record produced by either
// intake path. Immutable once created; consumed exactly once by the engine.
type FailureEvent struct {
	ProjectID   int64     `json:"project_id"`
	PipelineID  int64     `json:"pipeline_id"`
	JobIDs      []int64   `json:"job_ids,omitempty"`
	Status      string    `json:"status"`
	Source      string    `json:"source"`
	Ref         string    `json:"ref,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`

	ProjectName    string `json:"project_name,omitempty"`
	ProjectPath    string `json:"project_path,omitempty"`
	ProjectWebURL  string `json:"project_web_url,omitempty"`
	PipelineWebURL string `json:"pipeline_web_url,omitempty"`
	CommitSHA      string `json:"commit_sha,omitempty"`

	// Payload keeps the originating webhook event (or its synthesized
	// email equivalent) for payload-level log extraction.
	Payload *WebhookEvent `json:"-"`
}
