// Package intake turns inbound notifications, webhook payloads and pipeline
// emails, into canonical failure events.
package intake

import (
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/pipehunter/internal/mailbox"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// FailureHeaders is the pipeline metadata extracted from a notification
// email's custom headers.
type FailureHeaders struct {
	ProjectID      int64
	ProjectName    string
	ProjectPath    string
	PipelineID     int64
	PipelineRef    string
	PipelineStatus string
	PipelineURL    string
	ProjectURL     string
	CommitSHA      string

	// Warnings collects non-fatal oddities, e.g. an unknown status value.
	Warnings []string
}

// EmailParser validates notification emails and converts them to failure
// events.
type EmailParser struct {
	expectedSender  string
	failureKeywords []string
	gitlabBaseURL   string
	logger          *slog.Logger
}

// NewEmailParser creates a parser. expectedSender is the bare address the
// notifications must come from; failureKeywords is matched case-insensitively
// against subjects.
func NewEmailParser(expectedSender string, failureKeywords []string, gitlabBaseURL string, logger *slog.Logger) *EmailParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailParser{
		expectedSender:  strings.ToLower(expectedSender),
		failureKeywords: failureKeywords,
		gitlabBaseURL:   strings.TrimSuffix(gitlabBaseURL, "/"),
		logger:          logger,
	}
}

// ValidateForProcessing decides whether a message is a processable pipeline
// failure notification. A false return carries the reason via the error.
func (p *EmailParser) ValidateForProcessing(msg mailbox.Message) (bool, error) {
	if msg.UID == "" {
		return false, &ValidationError{Reason: "message has no UID"}
	}
	if msg.From == "" {
		return false, &ValidationError{Reason: "message has no sender"}
	}
	if msg.Subject == "" {
		return false, &ValidationError{Reason: "message has no subject"}
	}
	if msg.Date.IsZero() {
		return false, &ValidationError{Reason: "message has no date"}
	}

	sender := bareAddress(msg.From)
	if sender != p.expectedSender {
		return false, &ValidationError{
			Reason: fmt.Sprintf("Email not from configured GitLab email: got %q, expected %q", sender, p.expectedSender),
		}
	}

	subject := strings.ToLower(msg.Subject)
	for _, kw := range p.failureKeywords {
		if strings.Contains(subject, strings.ToLower(kw)) {
			return true, nil
		}
	}
	return false, &ValidationError{Reason: "subject contains no failure keyword"}
}

// ExtractFailureHeaders reads the custom pipeline headers. ProjectID and
// PipelineID are mandatory and must be integers; an unknown pipeline status
// is accepted with a warning for forward compatibility.
func (p *EmailParser) ExtractFailureHeaders(msg mailbox.Message) (*FailureHeaders, error) {
	projectIDRaw, ok := headerValue(msg.Headers, headerProjectID)
	if !ok {
		return nil, &ValidationError{Reason: "missing " + headerProjectID + " header"}
	}
	projectID, err := strconv.ParseInt(projectIDRaw, 10, 64)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("%s is not an integer: %q", headerProjectID, projectIDRaw)}
	}

	pipelineIDRaw, ok := headerValue(msg.Headers, headerPipelineID)
	if !ok {
		return nil, &ValidationError{Reason: "missing " + headerPipelineID + " header"}
	}
	pipelineID, err := strconv.ParseInt(pipelineIDRaw, 10, 64)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("%s is not an integer: %q", headerPipelineID, pipelineIDRaw)}
	}

	h := &FailureHeaders{
		ProjectID:  projectID,
		PipelineID: pipelineID,
	}
	h.ProjectName, _ = headerValue(msg.Headers, headerProjectName)
	h.ProjectPath, _ = headerValue(msg.Headers, headerProjectPath)
	h.PipelineRef, _ = headerValue(msg.Headers, headerPipelineRef)
	h.PipelineURL, _ = headerValue(msg.Headers, headerPipelineURL)
	h.ProjectURL, _ = headerValue(msg.Headers, headerProjectURL)
	h.CommitSHA, _ = headerValue(msg.Headers, headerCommitSHA)

	if status, ok := headerValue(msg.Headers, headerPipelineStatus); ok {
		h.PipelineStatus = status
		if !models.KnownPipelineStatus(status) {
			warning := fmt.Sprintf("unknown pipeline status %q, accepting anyway", status)
			h.Warnings = append(h.Warnings, warning)
			p.logger.Warn("email carries unknown pipeline status", "status", status, "uid", msg.UID)
		}
	}

	return h, nil
}

// ToFailureEvent converts a validated message plus its extracted headers into
// the canonical failure event, including a synthesized webhook-shaped payload
// so the engine treats both intake paths uniformly.
func (p *EmailParser) ToFailureEvent(msg mailbox.Message, h *FailureHeaders) models.FailureEvent {
	status := h.PipelineStatus
	if status == "" {
		status = models.PipelineStatusFailed
	}

	projectWebURL := h.ProjectURL
	if projectWebURL == "" {
		if h.ProjectPath != "" {
			projectWebURL = p.gitlabBaseURL + "/" + h.ProjectPath
		} else {
			projectWebURL = fmt.Sprintf("%s/project/%d", p.gitlabBaseURL, h.ProjectID)
		}
	}

	payload := &models.WebhookEvent{
		ObjectKind: "pipeline",
		Project: models.WebhookProject{
			ID:                h.ProjectID,
			Name:              h.ProjectName,
			PathWithNamespace: h.ProjectPath,
			WebURL:            projectWebURL,
		},
		ObjectAttributes: &models.WebhookAttributes{
			ID:     h.PipelineID,
			Status: status,
			Ref:    h.PipelineRef,
			SHA:    h.CommitSHA,
			WebURL: h.PipelineURL,
		},
	}

	return models.FailureEvent{
		ProjectID:      h.ProjectID,
		PipelineID:     h.PipelineID,
		Status:         status,
		Source:         models.EventSourceEmail,
		Ref:            h.PipelineRef,
		ReceivedAt:     msg.Date,
		ProjectName:    h.ProjectName,
		ProjectPath:    h.ProjectPath,
		ProjectWebURL:  projectWebURL,
		PipelineWebURL: h.PipelineURL,
		CommitSHA:      h.CommitSHA,
		Payload:        payload,
	}
}

// ToProcessedRecord builds the initial pending audit record for a message.
func (p *EmailParser) ToProcessedRecord(msg mailbox.Message) models.ProcessedEmailRecord {
	now := time.Now().UTC()
	record := models.ProcessedEmailRecord{
		ID:         uuid.New(),
		MessageUID: msg.UID,
		ReceivedAt: msg.Date,
		FromEmail:  bareAddress(msg.From),
		Subject:    msg.Subject,
		Status:     models.EmailStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if msg.MessageID != "" {
		id := msg.MessageID
		record.MessageID = &id
	}
	return record
}

// bareAddress strips any "Display Name <addr>" wrapping and lowercases.
func bareAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(from))
}
