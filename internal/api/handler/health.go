package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/pipehunter/internal/api/response"
	"github.com/kiranshivaraju/pipehunter/internal/cache"
	"github.com/kiranshivaraju/pipehunter/internal/gitlab"
	"github.com/kiranshivaraju/pipehunter/internal/store"
)

const healthProbeTimeout = 5 * time.Second

// AIHealthChecker reports per-provider reachability.
type AIHealthChecker interface {
	HealthCheck(ctx context.Context) map[string]bool
}

// HealthDeps are the components the health endpoint probes. Any nil field is
// reported as "disabled".
type HealthDeps struct {
	Store   store.Store
	Cache   cache.Cache
	GitLab  gitlab.Client
	AI      AIHealthChecker
	Version string
}

// NewHealthHandler returns the handler for GET /api/v1/health. The database
// is the only hard dependency; anything else failing degrades the report but
// keeps the status 200.
func NewHealthHandler(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		components := map[string]any{}
		healthy := true

		if deps.Store != nil {
			if err := deps.Store.Ping(ctx); err != nil {
				components["database"] = "unreachable"
				healthy = false
			} else {
				components["database"] = "ok"
			}
		} else {
			components["database"] = "disabled"
		}

		if deps.Cache != nil {
			if err := deps.Cache.Ping(ctx); err != nil {
				components["cache"] = "unreachable"
			} else {
				components["cache"] = "ok"
			}
		} else {
			components["cache"] = "disabled"
		}

		if deps.GitLab != nil {
			if err := deps.GitLab.HealthCheck(ctx); err != nil {
				components["gitlab"] = "unreachable"
			} else {
				components["gitlab"] = "ok"
			}
		} else {
			components["gitlab"] = "disabled"
		}

		if deps.AI != nil {
			components["ai_providers"] = deps.AI.HealthCheck(ctx)
		} else {
			components["ai_providers"] = "disabled"
		}

		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		response.Status(w, code, map[string]any{
			"status":     status,
			"version":    deps.Version,
			"components": components,
		})
	}
}
