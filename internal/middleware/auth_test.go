package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/openclaw/provisioning-gateway/internal/metrics"
)

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{"exact bearer value", "Bearer s3cret", "s3cret", true},
		{"missing header", "", "s3cret", false},
		{"wrong secret", "Bearer other", "s3cret", false},
		{"missing scheme", "s3cret", "s3cret", false},
		{"lower case scheme", "bearer s3cret", "s3cret", false},
		{"trailing whitespace", "Bearer s3cret ", "s3cret", false},
		{"secret prefix", "Bearer s3c", "s3cret", false},
		{"unconfigured secret never matches", "Bearer ", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Authenticate(tc.header, tc.secret))
		})
	}
}

func TestSharedSecretAuth_Handler(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	auth := NewSharedSecretAuth("s3cret", m)

	called := false
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("passes valid secret", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/@alice:example.com/get_me", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects invalid secret with error envelope", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/@alice:example.com/get_me", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"state":"","error":"Shared secret is not valid.","errcode":"shared_secret_invalid"}`, rec.Body.String())
	})

	t.Run("counts failures", func(t *testing.T) {
		before := testutil.ToFloat64(m.AuthFailures)
		req := httptest.NewRequest(http.MethodGet, "/@alice:example.com/get_me", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, before+1, testutil.ToFloat64(m.AuthFailures))
	})
}
