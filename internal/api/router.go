// Package api assembles the HTTP surface: router, middleware stack, and
// handler wiring.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/pipehunter/internal/api/middleware"
	"github.com/kiranshivaraju/pipehunter/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	WebhookAuth *mw.WebhookAuth
	RateLimit   *mw.RateLimit

	HealthHandler      http.HandlerFunc
	WebhookHandler     http.HandlerFunc
	GetAnalysisHandler http.HandlerFunc
	ListAnalyses       http.HandlerFunc
	ListEmails         http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Webhook intake: shared-secret check plus per-IP rate limiting.
	r.Group(func(r chi.Router) {
		if deps.WebhookAuth != nil {
			r.Use(deps.WebhookAuth.Verify)
		}
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}
		r.Post("/api/v1/webhooks/gitlab", orNotImplemented(deps.WebhookHandler))
	})

	// Analysis polling and audit
	r.Get("/api/v1/analyses", orNotImplemented(deps.ListAnalyses))
	r.Get("/api/v1/analyses/{requestID}", orNotImplemented(deps.GetAnalysisHandler))
	r.Get("/api/v1/emails", orNotImplemented(deps.ListEmails))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
