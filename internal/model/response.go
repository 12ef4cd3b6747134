package model

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
)

// ResponseKind selects which of the three login response shapes is rendered.
type ResponseKind int

const (
	KindLoggedIn ResponseKind = iota
	KindPending
	KindError
)

// Login states reported in the "state" field.
const (
	StateLoggedIn = "logged-in"
	StateRequest  = "request"
	StateCode     = "code"
	StatePassword = "password"
	StateToken    = "token"
)

// LoginResponse is the outcome of a provisioning call. Build it with
// LoggedIn, AlreadyLoggedIn, Pending or Failure; the kind is fixed by the
// constructor, never inferred from which fields are set.
type LoginResponse struct {
	Kind     ResponseKind
	Status   int
	State    string
	Username string
	Message  string
	Err      *apperrors.AppError
}

func LoggedIn(username string) LoginResponse {
	return LoginResponse{Kind: KindLoggedIn, Status: http.StatusOK, State: StateLoggedIn, Username: username}
}

// AlreadyLoggedIn is returned by phases attempted on a live session.
func AlreadyLoggedIn(username string) LoginResponse {
	return LoginResponse{Kind: KindLoggedIn, Status: http.StatusConflict, State: StateLoggedIn, Username: username}
}

func Pending(status int, state, message string) LoginResponse {
	return LoginResponse{Kind: KindPending, Status: status, State: state, Message: message}
}

func Failure(state string, err *apperrors.AppError) LoginResponse {
	return LoginResponse{Kind: KindError, Status: err.HTTPStatus(), State: state, Err: err}
}

func (r LoginResponse) IsError() bool {
	return r.Kind == KindError
}

type loggedInBody struct {
	State    string `json:"state"`
	Username string `json:"username"`
}

type pendingBody struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

type errorBody struct {
	State   string              `json:"state"`
	Error   string              `json:"error"`
	ErrCode apperrors.ErrorCode `json:"errcode"`
}

func (r LoginResponse) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindLoggedIn:
		return json.Marshal(loggedInBody{State: StateLoggedIn, Username: r.Username})
	case KindPending:
		return json.Marshal(pendingBody{State: r.State, Message: r.Message})
	default:
		body := errorBody{State: r.State}
		if r.Err != nil {
			body.Error = r.Err.Message
			body.ErrCode = r.Err.Code
		}
		return json.Marshal(body)
	}
}
