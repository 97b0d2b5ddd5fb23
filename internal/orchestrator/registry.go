package orchestrator

import (
	"sync"
	"time"

	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// Registry holds in-flight and recently finished orchestration runs keyed by
// request ID. Runs live in process memory only; finished runs are evicted
// after a grace period so callers can still poll for the result.
//
// The engine mutates a run through Update while readers receive snapshots,
// so polling handlers never observe a half-applied stage transition.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*models.OrchestrationResponse
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*models.OrchestrationResponse)}
}

func (r *Registry) Put(resp *models.OrchestrationResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[resp.RequestID] = resp
}

// Get returns a snapshot of the run, or false when unknown.
func (r *Registry) Get(requestID string) (*models.OrchestrationResponse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.runs[requestID]
	if !ok {
		return nil, false
	}
	return cloneResponse(resp), true
}

// Update applies fn to the run under the write lock. Returns false when the
// run is unknown.
func (r *Registry) Update(requestID string, fn func(*models.OrchestrationResponse)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.runs[requestID]
	if !ok {
		return false
	}
	fn(resp)
	return true
}

func (r *Registry) Remove(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, requestID)
}

// List returns snapshots of all tracked runs, unordered.
func (r *Registry) List() []*models.OrchestrationResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.OrchestrationResponse, 0, len(r.runs))
	for _, resp := range r.runs {
		out = append(out, cloneResponse(resp))
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// ScheduleRemoval evicts requestID after delay. Fire-and-forget; removing an
// already-removed entry is a no-op.
func (r *Registry) ScheduleRemoval(requestID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		r.Remove(requestID)
	})
}

func cloneResponse(resp *models.OrchestrationResponse) *models.OrchestrationResponse {
	out := *resp
	out.FailedJobIDs = append([]int64(nil), resp.FailedJobIDs...)
	out.JobLogs = append([]models.JobLogEntry(nil), resp.JobLogs...)
	out.ProcessingSteps = append([]string(nil), resp.ProcessingSteps...)
	out.Warnings = append([]string(nil), resp.Warnings...)
	if resp.ErrorAnalysis != nil {
		ea := *resp.ErrorAnalysis
		out.ErrorAnalysis = &ea
	}
	if resp.CompletedAt != nil {
		t := *resp.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
