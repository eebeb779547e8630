// Package errs defines the error taxonomy for the tile server.
//
// Every failure the request path can produce maps to exactly one Kind,
// and every Kind maps to exactly one HTTP status. No Kind is retried
// inside this service; retries belong to the caller or the CDN.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// Validation covers bad tile indices, unknown datasets/versions,
	// unknown implementations and out-of-world envelopes.
	Validation Kind = iota
	// Malformed covers path or query parameters that cannot be parsed at all.
	Malformed
	// InvalidRange covers date ranges with start > end or spans over the limit.
	InvalidRange
	// NotFound covers geostore non-intersection and missing source tiles.
	NotFound
	// Timeout covers server-side query cancellation and upstream deadline expiry.
	Timeout
	// Upstream covers unexpected responses from the geostore or metadata services.
	Upstream
	// StorageWrite covers background cache-store failures. Logged, never surfaced.
	StorageWrite
)

// Error carries a Kind alongside the message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error { return newf(Validation, format, args...) }

func Malformedf(format string, args ...any) *Error { return newf(Malformed, format, args...) }

func InvalidRangef(format string, args ...any) *Error { return newf(InvalidRange, format, args...) }

func NotFoundf(format string, args ...any) *Error { return newf(NotFound, format, args...) }

func Timeoutf(format string, args ...any) *Error { return newf(Timeout, format, args...) }

func Upstreamf(format string, args ...any) *Error { return newf(Upstream, format, args...) }

func StorageWritef(format string, args ...any) *Error { return newf(StorageWrite, format, args...) }

// Wrap attaches a cause to a typed error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatus maps an error to the status code the tile endpoints return.
// 524 mirrors the CDN convention for origin processing timeouts.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Malformed:
		return http.StatusUnprocessableEntity
	case InvalidRange:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Timeout:
		return 524
	default:
		return http.StatusInternalServerError
	}
}
