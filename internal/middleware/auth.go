package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/provisioning-gateway/internal/audit"
	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
	"github.com/openclaw/provisioning-gateway/internal/httputil"
	"github.com/openclaw/provisioning-gateway/internal/metrics"
	"github.com/openclaw/provisioning-gateway/internal/util"
)

// Authenticate reports whether the Authorization header carries the shared
// secret. The whole header is compared, scheme included.
func Authenticate(header, secret string) bool {
	if secret == "" {
		return false
	}
	return util.ConstantTimeEqual(header, "Bearer "+secret)
}

type SharedSecretAuth struct {
	secret  string
	metrics *metrics.Metrics
}

func NewSharedSecretAuth(secret string, m *metrics.Metrics) *SharedSecretAuth {
	return &SharedSecretAuth{secret: secret, metrics: m}
}

// Handler rejects the request before the body is read or any identity is
// looked up.
func (m *SharedSecretAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Authenticate(r.Header.Get("Authorization"), m.secret) {
			m.metrics.IncrementAuthFailures()
			log.Warn().Str("path", r.URL.Path).Msg("shared secret auth: invalid secret")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			httputil.WriteError(w, "", apperrors.SharedSecretInvalid())
			return
		}
		next.ServeHTTP(w, r)
	})
}
