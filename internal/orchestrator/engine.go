// Package orchestrator drives one pipeline-failure analysis run through its
// state machine: classify the event, gather context and logs from the
// source-control API, run AI analysis with provider fallback, and synthesize
// a verdict. Runs are tracked in an in-memory registry keyed by request ID.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pipehunter/internal/ai"
	"github.com/kiranshivaraju/pipehunter/internal/ai/prompt"
	"github.com/kiranshivaraju/pipehunter/internal/cache"
	"github.com/kiranshivaraju/pipehunter/internal/gitlab"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

const (
	// defaultCleanupDelay is how long a finished run stays pollable.
	defaultCleanupDelay = 5 * time.Minute

	// runStatusTTL bounds the cached status mirror.
	runStatusTTL = 30 * time.Minute

	// retriedJobCap limits how far back the engine digs through retried
	// jobs when reconstructing a failure the pipeline has since recovered
	// from.
	retriedJobCap = 3

	// Payload log sufficiency thresholds. A failure reason or inline log
	// shorter than this is not worth analyzing without an API fetch.
	minPayloadReasonLen = 50
	minPayloadLogLen    = 100
)

var errNoJobLogs = errors.New("no job logs fetched")

// Config tunes the engine. Zero values get sensible defaults.
type Config struct {
	AnalysisTimeout        time.Duration
	AITimeout              time.Duration
	MaxConcurrent          int
	IncludeContext         bool
	IncludeRepositoryFiles bool
	CleanupDelay           time.Duration
}

// Engine executes orchestration runs. Safe for concurrent use; each run is
// independent and owns its registry entry until eviction.
type Engine struct {
	gitlab   gitlab.Client
	ai       *ai.AnalysisService
	cache    cache.Cache
	registry *Registry
	cfg      Config
	logger   *slog.Logger
	sem      chan struct{}
}

// NewEngine wires the engine. cacheClient may be nil; status mirroring is
// then skipped.
func NewEngine(gitlabClient gitlab.Client, aiService *ai.AnalysisService, cacheClient cache.Cache, registry *Registry, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 300 * time.Second
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 120 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = defaultCleanupDelay
	}
	return &Engine{
		gitlab:   gitlabClient,
		ai:       aiService,
		cache:    cacheClient,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Registry exposes the run registry for status polling.
func (e *Engine) Registry() *Registry { return e.registry }

// Launch creates a run and executes it in the background, returning the
// pending record immediately. The caller polls by request ID.
func (e *Engine) Launch(req models.OrchestrationRequest) *models.OrchestrationResponse {
	resp := e.newRun(req)

	go func() {
		e.sem <- struct{}{}
		defer func() { <-e.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout(req))
		defer cancel()
		e.execute(ctx, resp.RequestID, req)
	}()

	return resp
}

// Run executes a run synchronously and returns its final state. Used by the
// email path, which reports the outcome back into the processed-email record.
func (e *Engine) Run(ctx context.Context, req models.OrchestrationRequest) *models.OrchestrationResponse {
	resp := e.newRun(req)

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout(req))
	defer cancel()
	e.execute(runCtx, resp.RequestID, req)

	final, _ := e.registry.Get(resp.RequestID)
	return final
}

func (e *Engine) timeout(req models.OrchestrationRequest) time.Duration {
	if req.TimeoutSeconds > 0 {
		return time.Duration(req.TimeoutSeconds) * time.Second
	}
	return e.cfg.AnalysisTimeout
}

func (e *Engine) newRun(req models.OrchestrationRequest) *models.OrchestrationResponse {
	now := time.Now().UTC()
	resp := &models.OrchestrationResponse{
		RequestID:  "req_" + uuid.NewString(),
		Status:     models.RunStatusPending,
		ProjectID:  req.Event.ProjectID,
		PipelineID: req.Event.PipelineID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	e.registry.Put(resp)
	e.mirrorStatus(resp.RequestID, models.RunStatusPending)
	return cloneResponse(resp)
}

// execute drives all pipeline stages for one run. Any panic or error becomes
// a terminal FAILED (or TIMEOUT) state; it never crashes the process.
func (e *Engine) execute(ctx context.Context, requestID string, req models.OrchestrationRequest) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("orchestration run panicked", "request_id", requestID, "panic", r)
			e.finish(requestID, models.RunStatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	err := e.runStages(ctx, requestID, req)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		e.finish(requestID, models.RunStatusCompleted, "")
		e.logger.Info("orchestration run completed",
			"request_id", requestID,
			"project_id", req.Event.ProjectID,
			"pipeline_id", req.Event.PipelineID,
			"duration_ms", elapsed.Milliseconds())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.finish(requestID, models.RunStatusTimeout,
			fmt.Sprintf("analysis timed out after %s", e.timeout(req)))
		e.logger.Warn("orchestration run timed out", "request_id", requestID)
	default:
		e.finish(requestID, models.RunStatusFailed, err.Error())
		e.logger.Warn("orchestration run failed", "request_id", requestID, "error", err)
	}
}

func (e *Engine) runStages(ctx context.Context, requestID string, req models.OrchestrationRequest) error {
	ev := req.Event
	e.transition(requestID, models.RunStatusProcessing)

	// Stage 1: classify the event and collect candidate failed job IDs.
	jobIDs := classifyFailedJobs(ev)
	e.update(requestID, func(r *models.OrchestrationResponse) {
		r.FailedJobIDs = jobIDs
	})
	e.step(requestID, fmt.Sprintf("Classified %s event: %d candidate failed job(s)", ev.Source, len(jobIDs)))

	// Stage 2: project context plus payload-level log extraction.
	var info *models.ProjectInfo
	if pi, err := e.gitlab.GetProjectInfo(ctx, ev.ProjectID); err != nil {
		e.warn(requestID, "project context unavailable: "+err.Error())
	} else {
		info = &pi
		e.step(requestID, "Fetched project context: "+pi.Project.PathWithNamespace)
	}

	if payloadLogs := extractPayloadLogs(ev); len(payloadLogs) > 0 {
		e.update(requestID, func(r *models.OrchestrationResponse) {
			r.JobLogs = payloadLogs
		})
		e.step(requestID, fmt.Sprintf("Extracted %d log excerpt(s) from event payload", len(payloadLogs)))
	} else {
		e.step(requestID, "Event payload carries no usable log data, fetching from API")
	}

	// Stage 3: authoritative failed-job and log fetch. Replaces any
	// payload-derived excerpts when it yields anything.
	entries := e.fetchDetailedLogs(ctx, requestID, ev)
	if len(entries) > 0 {
		ids := make([]int64, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.JobID)
		}
		e.update(requestID, func(r *models.OrchestrationResponse) {
			r.JobLogs = entries
			r.FailedJobIDs = ids
		})
		e.step(requestID, fmt.Sprintf("Fetched logs for %d failed job(s)", len(entries)))
	} else {
		e.step(requestID, "No additional job logs available from API")
	}

	snapshot, _ := e.registry.Get(requestID)
	if snapshot == nil || len(snapshot.JobLogs) == 0 {
		return errNoJobLogs
	}
	primary := snapshot.JobLogs[0]

	// Stage 4: AI analysis. Failure here is a warning, not an abort.
	e.transition(requestID, models.RunStatusAnalyzing)
	aiResult := e.analyzeWithAI(ctx, requestID, req, primary, info)

	// Stage 5: synthesize the verdict from AI output and job metadata.
	analysis := synthesize(aiResult, primary)
	e.update(requestID, func(r *models.OrchestrationResponse) {
		r.ErrorAnalysis = analysis
	})
	e.step(requestID, fmt.Sprintf("Synthesized verdict: %s (%s)", analysis.Category, analysis.Severity))

	return nil
}

// fetchDetailedLogs asks the API for the pipeline's failed jobs and their
// processed traces. When the pipeline has since recovered (a retry fixed it)
// it digs through retried jobs to reconstruct the original failure.
func (e *Engine) fetchDetailedLogs(ctx context.Context, requestID string, ev models.FailureEvent) []models.JobLogEntry {
	failedJobs, err := e.gitlab.GetFailedJobs(ctx, ev.ProjectID, ev.PipelineID)
	if err != nil {
		e.warn(requestID, "failed-jobs fetch failed: "+err.Error())
		return nil
	}

	if len(failedJobs) == 0 {
		pipeline, perr := e.gitlab.GetPipeline(ctx, ev.ProjectID, ev.PipelineID)
		if perr == nil && pipeline.Status == models.PipelineStatusSuccess {
			failedJobs = e.reconstructFromRetries(ctx, requestID, ev)
		}
	}

	var entries []models.JobLogEntry
	for _, job := range failedJobs {
		logText, err := e.gitlab.GetJobLog(ctx, ev.ProjectID, job.ID, job.Status)
		if err != nil {
			e.warn(requestID, fmt.Sprintf("log fetch failed for job %d: %v", job.ID, err))
			continue
		}
		entries = append(entries, models.JobLogEntry{
			JobID:         job.ID,
			Name:          job.Name,
			Stage:         job.Stage,
			Status:        job.Status,
			FailureReason: job.FailureReason,
			Duration:      job.Duration,
			LogExcerpt:    logText,
		})
	}
	return entries
}

func (e *Engine) reconstructFromRetries(ctx context.Context, requestID string, ev models.FailureEvent) []models.Job {
	jobs, err := e.gitlab.GetPipelineJobs(ctx, ev.ProjectID, ev.PipelineID, true)
	if err != nil {
		e.warn(requestID, "retried-jobs fetch failed: "+err.Error())
		return nil
	}

	var failed []models.Job
	for _, job := range jobs {
		if job.Status != models.PipelineStatusFailed {
			continue
		}
		failed = append(failed, job)
		if len(failed) == retriedJobCap {
			break
		}
	}
	if len(failed) > 0 {
		e.step(requestID, fmt.Sprintf("Pipeline has since recovered, reconstructed %d original failure(s) from retried jobs", len(failed)))
	}
	return failed
}

// analyzeWithAI builds the prompt and calls the analysis service under its
// own timeout. Returns nil when every provider failed or the call timed out.
func (e *Engine) analyzeWithAI(ctx context.Context, requestID string, req models.OrchestrationRequest, primary models.JobLogEntry, info *models.ProjectInfo) *models.AnalysisResult {
	ev := req.Event

	pc := prompt.Context{
		JobLog: primary,
		Ref:    ev.Ref,
	}
	if info != nil {
		pc.Project = &info.Project
		pc.Pipeline = info.LatestPipeline
	}

	if e.cfg.IncludeContext || req.IncludeContext {
		ref := ev.Ref
		if ref == "" && info != nil {
			ref = info.Project.DefaultBranch
		}
		if ciConfig, err := e.gitlab.GetCIConfig(ctx, ev.ProjectID, ref); err != nil {
			e.warn(requestID, "CI config unavailable: "+err.Error())
		} else {
			pc.CIConfig = ciConfig
		}
	}

	if (e.cfg.IncludeRepositoryFiles || req.IncludeRepositoryFiles) && ev.Ref != "" {
		if files, err := e.gitlab.GetProjectFiles(ctx, ev.ProjectID, ev.Ref, ""); err != nil {
			e.warn(requestID, "repository listing unavailable: "+err.Error())
		} else {
			pc.Repository = files
		}
	}

	system, user := prompt.Build(pc)

	aiCtx, cancel := context.WithTimeout(ctx, e.cfg.AITimeout)
	defer cancel()

	result, err := e.ai.AnalyzeError(aiCtx, models.AnalysisRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Provider:     req.Provider,
	}, req.FallbackProviders)
	if err != nil {
		if errors.Is(aiCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			e.warn(requestID, fmt.Sprintf("AI analysis timed out after %s", e.cfg.AITimeout))
		} else {
			e.warn(requestID, "AI analysis failed: "+err.Error())
		}
		return nil
	}

	e.step(requestID, "AI analysis completed via "+result.Provider)
	return &result
}

// classifyFailedJobs collects candidate failed job IDs from the event and its
// raw payload, deduplicated in first-seen order.
func classifyFailedJobs(ev models.FailureEvent) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, id := range ev.JobIDs {
		add(id)
	}
	if p := ev.Payload; p != nil {
		if p.IsJobHook() {
			add(p.BuildID)
		}
		for _, build := range p.Builds {
			if build.Status == models.PipelineStatusFailed {
				add(build.ID)
			}
		}
	}
	return ids
}

// extractPayloadLogs pulls log excerpts carried inline in the event payload,
// used when they are substantial enough to analyze without an API roundtrip.
func extractPayloadLogs(ev models.FailureEvent) []models.JobLogEntry {
	p := ev.Payload
	if p == nil {
		return nil
	}

	var entries []models.JobLogEntry
	if p.IsJobHook() && len(p.BuildFailureReason) >= minPayloadReasonLen {
		entries = append(entries, models.JobLogEntry{
			JobID:         p.BuildID,
			Name:          p.BuildName,
			Stage:         p.BuildStage,
			Status:        p.BuildStatus,
			FailureReason: p.BuildFailureReason,
			LogExcerpt:    p.BuildFailureReason,
		})
		return entries
	}

	for _, build := range p.Builds {
		if build.Status != models.PipelineStatusFailed {
			continue
		}
		excerpt := build.Log
		if len(excerpt) < minPayloadLogLen {
			excerpt = build.FailureReason
			if len(excerpt) < minPayloadReasonLen {
				continue
			}
		}
		entries = append(entries, models.JobLogEntry{
			JobID:         build.ID,
			Name:          build.Name,
			Stage:         build.Stage,
			Status:        build.Status,
			FailureReason: build.FailureReason,
			Duration:      build.Duration,
			LogExcerpt:    excerpt,
		})
	}
	return entries
}

// --- run state helpers ---

func (e *Engine) update(requestID string, fn func(*models.OrchestrationResponse)) {
	e.registry.Update(requestID, func(r *models.OrchestrationResponse) {
		fn(r)
		r.UpdatedAt = time.Now().UTC()
	})
}

func (e *Engine) transition(requestID, status string) {
	e.update(requestID, func(r *models.OrchestrationResponse) {
		if models.TerminalRunStatus(r.Status) {
			return
		}
		r.Status = status
	})
	e.mirrorStatus(requestID, status)
}

func (e *Engine) step(requestID, message string) {
	e.update(requestID, func(r *models.OrchestrationResponse) {
		r.ProcessingSteps = append(r.ProcessingSteps, message)
	})
}

func (e *Engine) warn(requestID, message string) {
	e.update(requestID, func(r *models.OrchestrationResponse) {
		r.Warnings = append(r.Warnings, message)
	})
	e.logger.Warn("orchestration warning", "request_id", requestID, "warning", message)
}

// finish moves the run to a terminal state exactly once and schedules its
// eviction from the registry.
func (e *Engine) finish(requestID, status, errorMessage string) {
	var alreadyTerminal bool
	e.update(requestID, func(r *models.OrchestrationResponse) {
		if models.TerminalRunStatus(r.Status) {
			alreadyTerminal = true
			return
		}
		now := time.Now().UTC()
		r.Status = status
		r.CompletedAt = &now
		r.TotalProcessingTimeMS = now.Sub(r.CreatedAt).Milliseconds()
		if errorMessage != "" {
			r.ErrorMessage = errorMessage
		}
	})
	if alreadyTerminal {
		return
	}
	e.mirrorStatus(requestID, status)
	e.registry.ScheduleRemoval(requestID, e.cfg.CleanupDelay)
}

// mirrorStatus best-effort copies the run status into the cache so polls can
// be served without the registry owner. Never fatal.
func (e *Engine) mirrorStatus(requestID, status string) {
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.cache.SetRunStatus(ctx, requestID, status, runStatusTTL); err != nil {
		e.logger.Debug("run status mirror failed", "request_id", requestID, "error", err)
	}
}
