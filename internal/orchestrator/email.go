package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pipehunter/internal/intake"
	"github.com/kiranshivaraju/pipehunter/internal/mailbox"
	"github.com/kiranshivaraju/pipehunter/internal/store"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// EmailProcessor wraps the engine for email-triggered runs: it deduplicates
// against persisted records, runs the orchestration synchronously, and writes
// the outcome back into the record.
type EmailProcessor struct {
	store  store.Store
	engine *Engine
	parser *intake.EmailParser
	logger *slog.Logger
}

func NewEmailProcessor(st store.Store, engine *Engine, parser *intake.EmailParser, logger *slog.Logger) *EmailProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailProcessor{store: st, engine: engine, parser: parser, logger: logger}
}

// ProcessMessage handles one inbox message end to end. Messages that fail
// validation are dropped silently; an already-completed record short-circuits.
// Returns an error only on storage failures, so the poller can back off.
func (p *EmailProcessor) ProcessMessage(ctx context.Context, msg mailbox.Message) error {
	if ok, err := p.parser.ValidateForProcessing(msg); !ok {
		p.logger.Debug("skipping email", "uid", msg.UID, "reason", err)
		return nil
	}

	done, err := p.dedup(ctx, msg)
	if err != nil {
		return err
	}
	if done {
		p.logger.Debug("email already processed", "uid", msg.UID, "message_id", msg.MessageID)
		return nil
	}

	record := p.parser.ToProcessedRecord(msg)
	if err := p.store.CreateProcessedEmail(ctx, &record); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Lost a race with a concurrent pass; the other writer owns it.
			return nil
		}
		return fmt.Errorf("record email: %w", err)
	}

	headers, err := p.parser.ExtractFailureHeaders(msg)
	if err != nil {
		p.logger.Info("email has no usable pipeline headers", "uid", msg.UID, "error", err)
		return p.store.UpdateProcessedEmailStatus(ctx, record.ID, models.EmailStatusNoGitLabHeaders,
			store.WithErrorMessage(err.Error()))
	}

	if err := p.store.UpdateProcessedEmailStatus(ctx, record.ID, models.EmailStatusFetchingGitLabData,
		store.WithPipelineInfo(headers.ProjectID, headers.PipelineID, headers.PipelineRef, headers.PipelineStatus)); err != nil {
		return err
	}

	event := p.parser.ToFailureEvent(msg, headers)
	if err := p.store.UpdateProcessedEmailStatus(ctx, record.ID, models.EmailStatusProcessingPipeline); err != nil {
		return err
	}

	resp := p.engine.Run(ctx, models.OrchestrationRequest{Event: event})
	return p.recordOutcome(ctx, record.ID, resp)
}

// dedup reports whether the message was already fully processed. A prior
// record with any status other than completed is deleted so the message gets
// reprocessed from scratch.
func (p *EmailProcessor) dedup(ctx context.Context, msg mailbox.Message) (bool, error) {
	lookups := []func() (*models.ProcessedEmailRecord, error){
		func() (*models.ProcessedEmailRecord, error) {
			if msg.MessageID == "" {
				return nil, store.ErrNotFound
			}
			return p.store.GetProcessedEmailByMessageID(ctx, msg.MessageID)
		},
		func() (*models.ProcessedEmailRecord, error) {
			return p.store.GetProcessedEmailByUID(ctx, msg.UID)
		},
	}

	for _, lookup := range lookups {
		prior, err := lookup()
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("dedup lookup: %w", err)
		}
		if prior.Status == models.EmailStatusCompleted {
			return true, nil
		}
		// Stale record from an earlier failed or interrupted pass:
		// delete and reprocess rather than updating in place.
		p.logger.Info("deleting stale email record for reprocessing",
			"uid", msg.UID, "prior_status", prior.Status)
		if err := p.store.DeleteProcessedEmail(ctx, prior.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("delete stale record: %w", err)
		}
	}
	return false, nil
}

func (p *EmailProcessor) recordOutcome(ctx context.Context, recordID uuid.UUID, resp *models.OrchestrationResponse) error {
	if resp == nil {
		return p.store.UpdateProcessedEmailStatus(ctx, recordID, models.EmailStatusError,
			store.WithErrorMessage("orchestration produced no result"))
	}

	if resp.Status == models.RunStatusCompleted {
		opts := []store.EmailUpdateOption{}
		if resp.ErrorAnalysis != nil {
			opts = append(opts, store.WithErrorMessage(resp.ErrorAnalysis.Description))
		}
		if len(resp.JobLogs) > 0 {
			opts = append(opts, store.WithGitLabErrorLog(resp.JobLogs[0].LogExcerpt))
		}
		return p.store.UpdateProcessedEmailStatus(ctx, recordID, models.EmailStatusCompleted, opts...)
	}

	msg := resp.ErrorMessage
	if msg == "" {
		msg = "orchestration ended with status " + resp.Status
	}
	return p.store.UpdateProcessedEmailStatus(ctx, recordID, models.EmailStatusOrchestrationFail,
		store.WithErrorMessage(msg))
}
