package gourdianguard

import (
	"errors"
	"net/http"
)

// ErrorCode is the stable machine-readable identifier carried by every error the
// service returns to its callers.
type ErrorCode string

const (
	CodeConfiguration     ErrorCode = "configuration_error"
	CodeMissingCredential ErrorCode = "missing_credential"
	CodeInvalidSignature  ErrorCode = "invalid_signature"
	CodeGuardMismatch     ErrorCode = "guard_mismatch"
	CodeNotYetValid       ErrorCode = "not_yet_valid"
	CodeExpired           ErrorCode = "expired"
	CodeMalformedClaims   ErrorCode = "malformed_claims"
	CodeSigning           ErrorCode = "signing_error"
	CodeStoreUnavailable  ErrorCode = "store_unavailable"
)

// Error is the error type returned across the Service boundary.
//
// Two errors are considered equal by errors.Is when their codes match, so callers
// compare against the exported sentinels:
//
//	if errors.Is(err, gourdianguard.ErrExpired) { ... }
//
// The underlying cause is deliberately not unwrappable; it is logged where the
// translation happens.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is reports whether target carries the same code. A guard mismatch also
// matches ErrInvalidSignature.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return e.Code == CodeGuardMismatch && t.Code == CodeInvalidSignature
}

// HTTPStatus returns the status code callers should surface for err, or 500 for
// errors outside the taxonomy.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

var (
	ErrConfiguration     = &Error{Code: CodeConfiguration, Status: http.StatusInternalServerError, Message: "invalid configuration"}
	ErrMissingCredential = &Error{Code: CodeMissingCredential, Status: http.StatusUnauthorized, Message: "authorization token not found"}
	ErrInvalidSignature  = &Error{Code: CodeInvalidSignature, Status: http.StatusUnauthorized, Message: "authentication token is invalid"}
	ErrGuardMismatch     = &Error{Code: CodeGuardMismatch, Status: http.StatusUnauthorized, Message: "authentication token belongs to another guard"}
	ErrNotYetValid       = &Error{Code: CodeNotYetValid, Status: http.StatusForbidden, Message: "authentication token is not valid yet"}
	ErrExpired           = &Error{Code: CodeExpired, Status: http.StatusPaymentRequired, Message: "authentication session has expired, please log in again"}
	ErrMalformedClaims   = &Error{Code: CodeMalformedClaims, Status: http.StatusUnauthorized, Message: "token claims are malformed"}
	ErrSigning           = &Error{Code: CodeSigning, Status: http.StatusInternalServerError, Message: "failed to sign token"}
	ErrStoreUnavailable  = &Error{Code: CodeStoreUnavailable, Status: http.StatusServiceUnavailable, Message: "session store unavailable"}
)

// newError derives an error from a sentinel with a more specific message.
func newError(base *Error, message string) *Error {
	if message == "" {
		message = base.Message
	}
	return &Error{Code: base.Code, Status: base.Status, Message: message}
}

// Store-level errors. The Service never returns these; it translates them.
var (
	// ErrSessionNotFound is returned by ConfirmMembership and ReplaceAccess when
	// no live session matches.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreConflict is returned when an optimistic update keeps losing races.
	ErrStoreConflict = errors.New("session store conflict: too many concurrent updates")

	// ErrCorruptSessionSet is returned when a stored session set cannot be decoded.
	ErrCorruptSessionSet = errors.New("corrupt session set")
)
