package evmvc

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why dispatch of a request was aborted, per §7.
type ErrorKind uint8

// Error kinds.
const (
	ErrKindParse ErrorKind = iota
	ErrKindRouteMiss
	ErrKindPolicyDenied
	ErrKindHandler
	ErrKindStream
	ErrKindFatal
)

// HTTPError is a status-carrying error, in the style of the teacher's
// DefaultNotFoundHandler/DefaultMethodNotAllowedHandler (air.go), which set
// res.Status and return a plain error built from http.StatusText. Here the
// status and message travel together so a centralized ErrorHandler (§7)
// doesn't need to read response.Status out-of-band.
type HTTPError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Cause   error
}

// NewHTTPError returns an *HTTPError for status, with http.StatusText(status)
// as its message.
func NewHTTPError(status int) *HTTPError {
	return &HTTPError{Status: status, Message: http.StatusText(status)}
}

// NewHTTPErrorf returns an *HTTPError for status with a formatted message.
func NewHTTPErrorf(status int, format string, args ...interface{}) *HTTPError {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

func (e *HTTPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap lets errors.Is/errors.As see through to e.Cause.
func (e *HTTPError) Unwrap() error {
	return e.Cause
}

// WithKind returns a copy of e tagged with kind.
func (e *HTTPError) WithKind(kind ErrorKind) *HTTPError {
	c := *e
	c.Kind = kind
	return &c
}

// WithCause returns a copy of e with cause attached.
func (e *HTTPError) WithCause(cause error) *HTTPError {
	c := *e
	c.Cause = cause
	return &c
}

// statusForError resolves the status code an arbitrary dispatch-stage
// error should surface as, per §7's propagation rules and Design Note
// (a)'s default: *HTTPError carries its own status; a policy-stage error
// defaults to 403; every other handler-stage error defaults to 500.
func statusForError(err error, kind ErrorKind) (status int, message string) {
	var he *HTTPError
	if errors.As(err, &he) && he.Status != 0 {
		return he.Status, he.Message
	}

	switch kind {
	case ErrKindPolicyDenied:
		return http.StatusForbidden, err.Error()
	case ErrKindRouteMiss:
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// Well-known keys exposed in Response.Data for centralized error
// rendering, per §7.
const (
	DataErrStatus     = "_err_status"
	DataErrStatusDesc = "_err_status_desc"
	DataErrMessage    = "_err_message"
	DataErrHasStack   = "_err_has_stack"
	DataErrStack      = "_err_stack"
)

// ErrNotFound is the sentinel route-miss error (§7).
var ErrNotFound = (&HTTPError{
	Kind:    ErrKindRouteMiss,
	Status:  http.StatusNotFound,
	Message: http.StatusText(http.StatusNotFound),
}).WithKind(ErrKindRouteMiss)

// ErrMethodNotAllowed is returned when a route's path matches but not its
// method (§4.3 step 4).
var ErrMethodNotAllowed = &HTTPError{
	Kind:    ErrKindRouteMiss,
	Status:  http.StatusMethodNotAllowed,
	Message: http.StatusText(http.StatusMethodNotAllowed),
}
