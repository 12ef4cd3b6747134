package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
	"github.com/openclaw/provisioning-gateway/internal/model"
)

func TestWriteLogin(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteLogin(rec, model.Pending(http.StatusAccepted, model.StatePassword, "Code accepted, but you have 2-factor authentication enabled."))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"state":"password","message":"Code accepted, but you have 2-factor authentication enabled."}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	t.Run("writes AppError with mapped status", func(t *testing.T) {
		rec := httptest.NewRecorder()

		WriteError(rec, "", apperrors.SharedSecretInvalid())

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"state":"","error":"Shared secret is not valid.","errcode":"shared_secret_invalid"}`, rec.Body.String())
	})

	t.Run("wraps unknown errors", func(t *testing.T) {
		rec := httptest.NewRecorder()

		WriteError(rec, model.StateRequest, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `"errcode":"unknown_error"`)
		assert.Contains(t, rec.Body.String(), `"state":"request"`)
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}
