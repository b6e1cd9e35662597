package authcore

import (
	"errors"
)

// Code is the public error taxonomy returned to callers.
type Code string

const (
	// CodeInvalidCredentials covers both an unknown identity and a wrong secret.
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"
	CodeTenantInactive     Code = "TENANT_INACTIVE"
	CodeTenantMismatch     Code = "TENANT_MISMATCH"
	CodeMFARequired        Code = "MFA_REQUIRED"
	CodeInvalidRefresh     Code = "INVALID_REFRESH_TOKEN"
	CodeRefreshExpired     Code = "REFRESH_TOKEN_EXPIRED"
	// CodeRefreshReused is returned only after the device lineage was revoked.
	CodeRefreshReused Code = "REFRESH_TOKEN_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
)

var publicMessages = map[Code]string{
	CodeInvalidCredentials: "invalid credentials",
	CodeAccountInactive:    "account inactive",
	CodeTenantInactive:     "tenant inactive",
	CodeTenantMismatch:     "tenant not available to this account",
	CodeMFARequired:        "multi-factor verification required",
	CodeInvalidRefresh:     "invalid refresh token",
	CodeRefreshExpired:     "refresh token expired",
	CodeRefreshReused:      "refresh token reused",
	CodeInternal:           "internal error",
}

// Error is a taxonomy error. Error() returns only the public message; the
// underlying cause is reachable through errors.Unwrap for logging.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if msg, ok := publicMessages[e.Code]; ok {
		return msg
	}
	return publicMessages[CodeInternal]
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials}
	ErrAccountInactive    = &Error{Code: CodeAccountInactive}
	ErrTenantInactive     = &Error{Code: CodeTenantInactive}
	ErrTenantMismatch     = &Error{Code: CodeTenantMismatch}
	ErrMFARequired        = &Error{Code: CodeMFARequired}
	ErrInvalidRefresh     = &Error{Code: CodeInvalidRefresh}
	ErrRefreshExpired     = &Error{Code: CodeRefreshExpired}
	ErrRefreshReused      = &Error{Code: CodeRefreshReused}
	ErrInternal           = &Error{Code: CodeInternal}

	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

func newError(code Code, cause error) *Error {
	return &Error{Code: code, cause: cause}
}

// CodeOf maps err to its taxonomy code. Errors outside the taxonomy map to
// CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if _, ok := publicMessages[e.Code]; ok {
			return e.Code
		}
	}
	return CodeInternal
}

// Response is the structured result the HTTP layer renders.
type Response struct {
	Success bool `json:"success"`
	Code    Code `json:"code,omitempty"`
}

// Respond builds the caller-facing result for err. It never carries storage
// identifiers or driver messages.
func Respond(err error) Response {
	if err == nil {
		return Response{Success: true}
	}
	return Response{Success: false, Code: CodeOf(err)}
}
