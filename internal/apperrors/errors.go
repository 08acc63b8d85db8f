// Package apperrors defines the error taxonomy shared by the realtime
// protocol and the REST surface. Components wrap these sentinels with
// fmt.Errorf("...: %w", err) and callers classify with errors.Is.
package apperrors

import (
	"errors"
	"net/http"
)

// Connection-level authentication failures. These terminate the transport.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("expired credential")
	ErrPrincipalNotFound = errors.New("principal not found")
)

// Call-level failures. These are returned in the error envelope of the
// originating call and never affect other connections or conversations.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("principal is not a party to this conversation")
	ErrInvalidTransition = errors.New("invalid conversation transition")
	ErrCapacityExceeded  = errors.New("responder is at capacity")
	ErrValidation        = errors.New("invalid payload")
)

// Code returns the protocol error code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "MISSING_CREDENTIAL"
	case errors.Is(err, ErrExpiredCredential):
		return "EXPIRED_CREDENTIAL"
	case errors.Is(err, ErrInvalidCredential):
		return "INVALID_CREDENTIAL"
	case errors.Is(err, ErrPrincipalNotFound):
		return "PRINCIPAL_NOT_FOUND"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	}
	return "INTERNAL"
}

// HTTPStatus maps err onto the REST surface.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrInvalidCredential),
		errors.Is(err, ErrExpiredCredential),
		errors.Is(err, ErrPrincipalNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
