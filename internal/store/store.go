package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateProcessedEmail(ctx context.Context, record *models.ProcessedEmailRecord) error
	GetProcessedEmailByMessageID(ctx context.Context, messageID string) (*models.ProcessedEmailRecord, error)
	GetProcessedEmailByUID(ctx context.Context, uid string) (*models.ProcessedEmailRecord, error)
	UpdateProcessedEmailStatus(ctx context.Context, id uuid.UUID, status string, opts ...EmailUpdateOption) error
	DeleteProcessedEmail(ctx context.Context, id uuid.UUID) error
	ListProcessedEmails(ctx context.Context, filter EmailFilter) ([]*models.ProcessedEmailRecord, int, error)
}

type EmailFilter struct {
	Status string
	Since  time.Time
	Page   int
	Limit  int
}

type emailUpdateParams struct {
	ErrorMessage   *string
	GitLabErrorLog *string
	ProjectID      *int64
	PipelineID     *int64
	PipelineRef    *string
	PipelineStatus *string
}

type EmailUpdateOption func(*emailUpdateParams)

// WithErrorMessage stores free text alongside the status change. The same
// column carries the human-readable analysis summary on completion.
func WithErrorMessage(msg string) EmailUpdateOption {
	return func(p *emailUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithGitLabErrorLog(log string) EmailUpdateOption {
	return func(p *emailUpdateParams) {
		p.GitLabErrorLog = &log
	}
}

func WithPipelineInfo(projectID, pipelineID int64, ref, status string) EmailUpdateOption {
	return func(p *emailUpdateParams) {
		p.ProjectID = &projectID
		p.PipelineID = &pipelineID
		if ref != "" {
			p.PipelineRef = &ref
		}
		if status != "" {
			p.PipelineStatus = &status
		}
	}
}

// ApplyEmailUpdateOptions applies opts to record in place. Lets non-SQL
// Store implementations honor the same option set as PostgresStore.
func ApplyEmailUpdateOptions(record *models.ProcessedEmailRecord, opts ...EmailUpdateOption) {
	var p emailUpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	if p.ErrorMessage != nil {
		record.ErrorMessage = p.ErrorMessage
	}
	if p.GitLabErrorLog != nil {
		record.GitLabErrorLog = p.GitLabErrorLog
	}
	if p.ProjectID != nil {
		record.ProjectID = p.ProjectID
	}
	if p.PipelineID != nil {
		record.PipelineID = p.PipelineID
	}
	if p.PipelineRef != nil {
		record.PipelineRef = p.PipelineRef
	}
	if p.PipelineStatus != nil {
		record.PipelineStatus = p.PipelineStatus
	}
}
