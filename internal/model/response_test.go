package model

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
)

func TestLoginResponseJSON(t *testing.T) {
	tests := []struct {
		name     string
		resp     LoginResponse
		status   int
		expected string
	}{
		{
			name:     "logged in",
			resp:     LoggedIn("alice_tg"),
			status:   http.StatusOK,
			expected: `{"state":"logged-in","username":"alice_tg"}`,
		},
		{
			name:     "already logged in",
			resp:     AlreadyLoggedIn("alice_tg"),
			status:   http.StatusConflict,
			expected: `{"state":"logged-in","username":"alice_tg"}`,
		},
		{
			name:     "pending",
			resp:     Pending(http.StatusOK, StateCode, "Code requested successfully."),
			status:   http.StatusOK,
			expected: `{"state":"code","message":"Code requested successfully."}`,
		},
		{
			name:     "error keeps empty state",
			resp:     Failure("", apperrors.NotWhitelisted()),
			status:   http.StatusForbidden,
			expected: `{"state":"","error":"You are not whitelisted.","errcode":"mxid_not_whitelisted"}`,
		},
		{
			name:     "error with phase state",
			resp:     Failure(StateCode, apperrors.New(apperrors.ErrCodePhoneCodeInvalid, "Invalid phone code.")),
			status:   http.StatusForbidden,
			expected: `{"state":"code","error":"Invalid phone code.","errcode":"phone_code_invalid"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(data))
			assert.Equal(t, tc.status, tc.resp.Status)
		})
	}
}

func TestLoginResponseKindIsExplicit(t *testing.T) {
	t.Run("pending with empty message stays pending", func(t *testing.T) {
		data, err := json.Marshal(Pending(http.StatusAccepted, StatePassword, ""))
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":"password","message":""}`, string(data))
	})

	t.Run("only failures report IsError", func(t *testing.T) {
		assert.False(t, LoggedIn("bob").IsError())
		assert.False(t, Pending(http.StatusOK, StateCode, "x").IsError())
		assert.True(t, Failure("", apperrors.JSONInvalid()).IsError())
	})
}
