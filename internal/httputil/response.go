package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
	"github.com/openclaw/provisioning-gateway/internal/model"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// WriteLogin renders a login response with its own status code
func WriteLogin(w http.ResponseWriter, resp model.LoginResponse) {
	WriteJSON(w, resp.Status, resp)
}

// WriteError renders any error as the error shape of a login response.
// Errors that are not AppErrors are reported as unknown_error.
func WriteError(w http.ResponseWriter, state string, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Unknown("An unexpected error occurred.", err)
	}
	WriteLogin(w, model.Failure(state, appErr))
}
