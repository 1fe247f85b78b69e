// Package apierror holds the client-visible error taxonomy. Every failure that
// reaches the HTTP layer is rendered as {"name": ..., "message": ...}.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	NameNotFound     = "NotFoundError"
	NameUnauthorized = "UnauthorizedError"
	NameForbidden    = "ForbiddenError"
	NameBadRequest   = "BadRequestError"
	NameValidation   = "ValidationError"
	NameTimeout      = "TimeoutError"
	NameInternal     = "InternalServerError"
	NameConflict     = "ConflictError"
	NameRateLimited  = "TooManyRequestsError"
)

// Error is a classified error carrying the HTTP status it maps to.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...any) *Error {
	return &Error{Name: NameNotFound, Message: fmt.Sprintf(format, args...), Status: http.StatusNotFound}
}

func Unauthorized(message string) *Error {
	return &Error{Name: NameUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

func Forbidden(message string) *Error {
	return &Error{Name: NameForbidden, Message: message, Status: http.StatusForbidden}
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Name: NameBadRequest, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

func Validation(message string) *Error {
	return &Error{Name: NameValidation, Message: message, Status: http.StatusBadRequest}
}

func Conflict(message string) *Error {
	return &Error{Name: NameConflict, Message: message, Status: http.StatusConflict}
}

func Timeout() *Error {
	return &Error{Name: NameTimeout, Message: "request timed out", Status: http.StatusRequestTimeout}
}

func RateLimited() *Error {
	return &Error{Name: NameRateLimited, Message: "too many attempts, slow down", Status: http.StatusTooManyRequests}
}

// Internal wraps an unexpected cause. The cause is logged but never sent to the client.
func Internal(err error) *Error {
	return &Error{Name: NameInternal, Message: "internal server error", Status: http.StatusInternalServerError, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is classified as NotFoundError.
func IsNotFound(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Name == NameNotFound
}
