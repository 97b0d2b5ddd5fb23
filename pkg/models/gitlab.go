package models

import "time"

// Project is a source-control project as returned by the REST API.
type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	WebURL            string `json:"web_url"`
	Description       string `json:"description"`
}

// Pipeline is one CI run within a project.
type Pipeline struct {
	ID         int64      `json:"id"`
	ProjectID  int64      `json:"project_id"`
	Status     string     `json:"status"`
	Ref        string     `json:"ref"`
	SHA        string     `json:"sha"`
	Source     string     `json:"source"`
	WebURL     string     `json:"web_url"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Duration   float64    `json:"duration"`
}

// Job is one unit of work within a pipeline.
type Job struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Stage         string     `json:"stage"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason"`
	Ref           string     `json:"ref"`
	WebURL        string     `json:"web_url"`
	Duration      float64    `json:"duration"`
	CreatedAt     *time.Time `json:"created_at"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	AllowFailure  bool       `json:"allow_failure"`
	Artifacts     []Artifact `json:"artifacts,omitempty"`
}

// Artifact describes one file a job produced.
type Artifact struct {
	FileType string `json:"file_type"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// TreeEntry is one entry of a repository tree listing.
type TreeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// ProjectInfo bundles a project with its most recent pipeline activity.
// LatestPipeline and FailedJobs are best-effort and may be nil/empty.
type ProjectInfo struct {
	Project        Project  `json:"project"`
	LatestPipeline *Pipeline `json:"latest_pipeline,omitempty"`
	FailedJobs     []Job    `json:"failed_jobs,omitempty"`
}
