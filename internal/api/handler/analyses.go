package handler

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/pipehunter/internal/api/response"
	"github.com/kiranshivaraju/pipehunter/internal/cache"
	"github.com/kiranshivaraju/pipehunter/internal/store"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// RunReader exposes the in-memory run registry to the polling handlers.
type RunReader interface {
	Get(requestID string) (*models.OrchestrationResponse, bool)
	List() []*models.OrchestrationResponse
}

// NewGetAnalysisHandler returns the handler for GET /api/v1/analyses/{requestID}.
// When the run has been evicted from the registry, the cached status mirror
// still answers with the bare status.
func NewGetAnalysisHandler(runs RunReader, statuses cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "requestID")

		if resp, ok := runs.Get(requestID); ok {
			response.JSON(w, resp)
			return
		}

		if statuses != nil {
			if status, found, err := statuses.GetRunStatus(r.Context(), requestID); err == nil && found {
				response.JSON(w, map[string]string{
					"request_id": requestID,
					"status":     status,
					"detail":     "full result no longer retained",
				})
				return
			}
		}

		response.Error(w, http.StatusNotFound, "NOT_FOUND", "No analysis for this request ID", nil)
	}
}

// NewListAnalysesHandler returns the handler for GET /api/v1/analyses, newest
// first, optionally filtered by ?status=.
func NewListAnalysesHandler(runs RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statusFilter := r.URL.Query().Get("status")

		all := runs.List()
		filtered := all[:0]
		for _, run := range all {
			if statusFilter == "" || run.Status == statusFilter {
				filtered = append(filtered, run)
			}
		}
		sort.Slice(filtered, func(i, j int) bool {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		})

		response.JSON(w, filtered)
	}
}

// NewListEmailsHandler returns the handler for GET /api/v1/emails: the
// persisted audit trail of email-triggered runs.
func NewListEmailsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		if page <= 0 {
			page = 1
		}

		records, total, err := st.ListProcessedEmails(r.Context(), store.EmailFilter{
			Status: q.Get("status"),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list processed emails", nil)
			return
		}

		response.Collection(w, records, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}
