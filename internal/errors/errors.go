package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable machine-readable errcode returned to provisioning clients
type ErrorCode string

const (
	// Gateway
	ErrCodeSharedSecretInvalid ErrorCode = "shared_secret_invalid"
	ErrCodeJSONInvalid         ErrorCode = "json_invalid"
	ErrCodeBodyTooLarge        ErrorCode = "body_too_large"
	ErrCodeMXIDInvalid         ErrorCode = "mxid_invalid"
	ErrCodeNotWhitelisted      ErrorCode = "mxid_not_whitelisted"
	ErrCodeNotLoggedIn         ErrorCode = "not_logged_in"
	ErrCodeRateLimited         ErrorCode = "rate_limited"
	ErrCodeNotFound            ErrorCode = "not_found"
	ErrCodeMethodNotAllowed    ErrorCode = "method_not_allowed"

	// Phone code request
	ErrCodePhoneNumberInvalid       ErrorCode = "phone_number_invalid"
	ErrCodePhoneNumberUnoccupied    ErrorCode = "phone_number_unoccupied"
	ErrCodePhoneNumberFlood         ErrorCode = "phone_number_flood"
	ErrCodePhoneNumberBanned        ErrorCode = "phone_number_banned"
	ErrCodePhoneNumberSignupBlocked ErrorCode = "phone_number_app_signup_forbidden"

	// Code and password verification
	ErrCodePhoneCodeInvalid ErrorCode = "phone_code_invalid"
	ErrCodePhoneCodeExpired ErrorCode = "phone_code_expired"
	ErrCodePasswordInvalid  ErrorCode = "password_invalid"

	// Bot login
	ErrCodeBotTokenInvalid ErrorCode = "bot_token_invalid"
	ErrCodeBotTokenExpired ErrorCode = "bot_token_expired"

	ErrCodeFloodWait ErrorCode = "flood_wait"

	// Internal
	ErrCodeRemoteUnavailable ErrorCode = "remote_unavailable"
	ErrCodeUnknown           ErrorCode = "unknown_error"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"errcode"`
	Message string    `json:"error"`
	// Status overrides the HTTP status derived from Code when non-zero.
	Status int `json:"-"`
	cause  error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithStatus pins the HTTP status of the error
func (e *AppError) WithStatus(status int) *AppError {
	e.Status = status
	return e
}

// HTTPStatus is the status the error is served with
func (e *AppError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return statusFromCode(e.Code)
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

func SharedSecretInvalid() *AppError {
	return New(ErrCodeSharedSecretInvalid, "Shared secret is not valid.")
}

func JSONInvalid() *AppError {
	return New(ErrCodeJSONInvalid, "Invalid JSON.")
}

func BodyTooLarge() *AppError {
	return New(ErrCodeBodyTooLarge, "Request body too large.")
}

func MXIDInvalid(mxid string) *AppError {
	return New(ErrCodeMXIDInvalid, fmt.Sprintf("%q is not a valid Matrix user ID.", mxid))
}

func NotWhitelisted() *AppError {
	return New(ErrCodeNotWhitelisted, "You are not whitelisted.")
}

func NotLoggedIn() *AppError {
	return New(ErrCodeNotLoggedIn, "You are not logged in.")
}

func RateLimited() *AppError {
	return New(ErrCodeRateLimited, "Too many login attempts. Please try again later.")
}

func NotFound() *AppError {
	return New(ErrCodeNotFound, "Unrecognized request.")
}

func MethodNotAllowed() *AppError {
	return New(ErrCodeMethodNotAllowed, "Method not allowed.")
}

func RemoteUnavailable(cause error) *AppError {
	return Wrap(ErrCodeRemoteUnavailable, "Failed to start the Telegram session.", cause)
}

func Unknown(message string, cause error) *AppError {
	return Wrap(ErrCodeUnknown, message, cause)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeUnknown
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeUnknown
}

func statusFromCode(code ErrorCode) int {
	switch code {
	// 400 Bad Request
	case ErrCodeJSONInvalid,
		ErrCodeMXIDInvalid,
		ErrCodePhoneNumberInvalid,
		ErrCodePasswordInvalid:
		return http.StatusBadRequest

	// 401 Unauthorized
	case ErrCodeSharedSecretInvalid,
		ErrCodePhoneNumberBanned,
		ErrCodePhoneNumberSignupBlocked,
		ErrCodeBotTokenInvalid:
		return http.StatusUnauthorized

	// 403 Forbidden
	case ErrCodeNotWhitelisted,
		ErrCodeNotLoggedIn,
		ErrCodePhoneCodeInvalid,
		ErrCodePhoneCodeExpired,
		ErrCodeBotTokenExpired:
		return http.StatusForbidden

	// 404 Not Found
	case ErrCodeNotFound,
		ErrCodePhoneNumberUnoccupied:
		return http.StatusNotFound

	// 405 Method Not Allowed
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed

	// 413 Request Entity Too Large
	case ErrCodeBodyTooLarge:
		return http.StatusRequestEntityTooLarge

	// 429 Too Many Requests
	case ErrCodeRateLimited,
		ErrCodePhoneNumberFlood,
		ErrCodeFloodWait:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case ErrCodeRemoteUnavailable:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
