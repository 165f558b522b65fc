// Package serviceerr defines the error codes the gateway renders to its clients.
// Codes follow the backend's `{ok:false,error:CODE}` envelope so that the
// presentation layer can humanise local and downstream errors the same way.
package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInvalidCredentials  Code = "INVALID_CREDENTIALS"
	CodeInvalidSlug         Code = "INVALID_SLUG"
	CodeInvalidPayload      Code = "INVALID_PAYLOAD"
	CodeInvalidCSRFToken    Code = "INVALID_CSRF_TOKEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnknown             Code = "UNKNOWN_ERROR"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
)

// Error is a client facing error. Status overrides the status derived from
// the code; it is set for errors propagated from the backend.
type Error struct {
	Err         Code
	Description string
	Status      int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}

	switch e.Err {
	case CodeUnauthorized, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeInvalidSlug, CodeInvalidPayload:
		return http.StatusBadRequest
	case CodeInvalidCSRFToken:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrUnauthorized        = &Error{Err: CodeUnauthorized, Description: "no usable credential"}
	ErrInvalidCredentials  = &Error{Err: CodeInvalidCredentials}
	ErrInvalidSlug         = &Error{Err: CodeInvalidSlug, Description: "clinic slug is empty or malformed"}
	ErrInvalidPayload      = &Error{Err: CodeInvalidPayload}
	ErrInvalidCSRFToken    = &Error{Err: CodeInvalidCSRFToken, Description: "csrf token is missing or invalid"}
	ErrNotFound            = &Error{Err: CodeNotFound}
	ErrUnknown             = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrUpstreamUnavailable = &Error{Err: CodeUpstreamUnavailable, Description: "backend unreachable or malformed response"}
)

// Downstream wraps an error code returned by the backend together with the
// status the backend answered with.
func Downstream(code string, status int) *Error {
	return &Error{Err: Code(code), Status: status}
}

// As returns the service error in the chain of err, or ErrUnknown.
func As(err error) *Error {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	return ErrUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var serviceErr *Error
	if !errors.As(err, &serviceErr) {
		return false
	}

	return serviceErr.Err == code
}
