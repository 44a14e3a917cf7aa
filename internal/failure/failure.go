// Package failure defines the error taxonomy surfaced by the scrape core.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind identifies a failure class. The zero value means "no failure".
type Kind string

const (
	KindNone          Kind = ""
	KindTransport     Kind = "TRANSPORT"
	KindInvalidFormat Kind = "INVALID_FORMAT"
	KindEmptyOK       Kind = "EMPTY_OK"
	KindNoData        Kind = "NO_DATA"
	KindRunaway       Kind = "RUNAWAY"
	KindBlackout      Kind = "BLACKOUT"
)

// Sentinels usable with errors.Is.
var (
	ErrTransport     = &Error{Kind: KindTransport}
	ErrInvalidFormat = &Error{Kind: KindInvalidFormat}
	ErrEmptyOK       = &Error{Kind: KindEmptyOK}
	ErrNoData        = &Error{Kind: KindNoData}
	ErrRunaway       = &Error{Kind: KindRunaway}
	ErrBlackout      = &Error{Kind: KindBlackout}
)

// Error wraps an underlying cause with its taxonomy kind.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	// Status is the HTTP status for transport failures caused by a response.
	Status  int
	Details map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches another *Error of the same kind, or the underlying cause.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return errors.Is(e.Underlying, target)
}

// GetStatusCode exposes the HTTP status to the retry package.
func (e *Error) GetStatusCode() int {
	return e.Status
}

// Timeout reports whether the underlying cause was a timeout.
func (e *Error) Timeout() bool {
	var ne net.Error
	if errors.As(e.Underlying, &ne) {
		return ne.Timeout()
	}
	return errors.Is(e.Underlying, context.DeadlineExceeded)
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Underlying: err}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Transport wraps a network level failure.
func Transport(message string, err error) *Error {
	return New(KindTransport, message, err)
}

// HTTPStatus builds a transport failure for a non-2xx response.
func HTTPStatus(status int, url string) *Error {
	e := Newf(KindTransport, "HTTP %d from %s", status, url)
	e.Status = status
	return e
}

// InvalidFormat reports a page whose minimum template did not match.
func InvalidFormat(format string, args ...any) *Error {
	return Newf(KindInvalidFormat, format, args...)
}

// NoData reports a detail page lacking the minimum required fields.
func NoData(format string, args ...any) *Error {
	return Newf(KindNoData, format, args...)
}

// Blackout reports a run refused by the adapter's availability predicate.
func Blackout(authority string) *Error {
	return Newf(KindBlackout, "%s is inside its blackout window", authority)
}

// KindOf returns the taxonomy kind of err. Context cancellation and
// deadline errors that did not pass through the taxonomy map to
// KindNone and KindTransport respectively.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransport
	}
	return KindNone
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
