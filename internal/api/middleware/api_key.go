package middleware

import (
	"context"
	"net"
	"net/http"

	apiContext "compass/internal/api/context"
	"compass/internal/engine/keys"
	"compass/internal/pkg/errors"
	"compass/internal/platform/audit"
)

// APIKeyMiddleware authenticates programmatic requests presented via the
// X-API-Key header. The validator enforces the full contract: secret
// verification, usability, quota, usage metadata.
type APIKeyMiddleware struct {
	validator *keys.Validator
	audit     *audit.Logger
}

func NewAPIKeyMiddleware(validator *keys.Validator, auditLog *audit.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{validator: validator, audit: auditLog}
}

func (m *APIKeyMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-API-Key")
		if secret == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing API key", nil)
			return
		}

		claims, err := m.validator.Validate(r.Context(), secret, clientIP(r))
		if err != nil {
			if err == errors.ErrUnauthorized {
				m.audit.Record(r.Context(), audit.Event{
					Action:      audit.ActionKeyAuthFailed,
					PerformedBy: "unknown",
					Severity:    audit.SeverityWarn,
					Description: "API key authentication failed",
					Metadata:    map[string]interface{}{"key_prefix": keys.Prefix(secret), "ip": clientIP(r)},
				})
			}
			errors.WriteDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.KeyClaims, claims)
		next(w, r.WithContext(ctx))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
