package telegram

import (
	"errors"
	"fmt"
)

// RPC error codes reported by the login worker. They mirror Telegram's own
// error names.
const (
	CodePhoneNumberInvalid            = "PHONE_NUMBER_INVALID"
	CodePhoneNumberUnoccupied         = "PHONE_NUMBER_UNOCCUPIED"
	CodePhoneNumberFlood              = "PHONE_NUMBER_FLOOD"
	CodePhoneNumberBanned             = "PHONE_NUMBER_BANNED"
	CodePhoneNumberAppSignupForbidden = "PHONE_NUMBER_APP_SIGNUP_FORBIDDEN"
	CodePhoneCodeInvalid              = "PHONE_CODE_INVALID"
	CodePhoneCodeExpired              = "PHONE_CODE_EXPIRED"
	CodeSessionPasswordNeeded         = "SESSION_PASSWORD_NEEDED"
	CodePasswordHashInvalid           = "PASSWORD_HASH_INVALID"
	CodeAccessTokenInvalid            = "ACCESS_TOKEN_INVALID"
	CodeAccessTokenExpired            = "ACCESS_TOKEN_EXPIRED"
	CodeFloodWait                     = "FLOOD_WAIT"
	CodeAuthKeyUnregistered           = "AUTH_KEY_UNREGISTERED"
	CodeSessionRevoked                = "SESSION_REVOKED"
)

// ErrPasswordNeeded is returned by SignInCode when the account has
// two-factor authentication enabled.
var ErrPasswordNeeded = errors.New("telegram: two-factor password needed")

// RPCError is a structured failure reported by the login worker.
//
//	var rpcErr *telegram.RPCError
//	if errors.As(err, &rpcErr) && rpcErr.Code == telegram.CodePhoneCodeInvalid { ... }
type RPCError struct {
	Code    string `json:"errcode"`
	Message string `json:"error"`
	// Seconds is set for FLOOD_WAIT.
	Seconds    int `json:"seconds,omitempty"`
	StatusCode int `json:"-"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("telegram: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsRPCError checks whether err is an *RPCError with the given code.
func IsRPCError(err error, code string) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == code
	}
	return false
}
