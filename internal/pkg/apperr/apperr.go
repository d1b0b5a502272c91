package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of error classes the backend surfaces.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindFailedPrecondition Kind = "failed_precondition"
	KindUpstream           Kind = "upstream_error"
	KindNotFound           Kind = "not_found"
	KindPermissionDenied   Kind = "permission_denied"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Set for KindPayloadTooLarge so callers can report the measured
	// size against the limit.
	Size  int
	Limit int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Kind == KindPayloadTooLarge && e.Limit > 0:
		return fmt.Sprintf("%s: %s (size=%d limit=%d)", e.Kind, e.Msg, e.Size, e.Limit)
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// TooLarge builds a payload_too_large error carrying the measured size
// and the limit the caller must fit under.
func TooLarge(msg string, size, limit int) *Error {
	return &Error{Kind: KindPayloadTooLarge, Msg: msg, Size: size, Limit: limit}
}

// KindOf returns the classified kind, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindUpstream
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindFailedPrecondition:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
