package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/kiranshivaraju/pipehunter/internal/api/response"
)

// tokenHeader is the shared-secret header hook senders attach.
const tokenHeader = "X-Gitlab-Token"

// WebhookAuth verifies the shared webhook secret with a constant-time
// compare. An empty configured secret disables verification.
type WebhookAuth struct {
	secret string
}

func NewWebhookAuth(secret string) *WebhookAuth {
	return &WebhookAuth{secret: secret}
}

// Verify rejects requests whose token header does not match the configured
// secret.
func (a *WebhookAuth) Verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(tokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) != 1 {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_WEBHOOK_TOKEN", "Webhook token missing or invalid", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
