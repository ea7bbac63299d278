package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a fetch failure for retry decisions.
type Kind int

const (
	// Transient failures may succeed on retry: timeouts, connection
	// resets, 5xx responses, and 429 throttling.
	Transient Kind = iota
	// Permanent failures will reproduce on retry: 4xx responses other
	// than 429, and malformed response shapes.
	Permanent
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// Error is a typed fetch failure. The fetcher classifies; the coordinator
// decides whether to retry.
type Error struct {
	Kind       Kind
	StatusCode int // 0 when the failure happened below HTTP
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a fetch error worth retrying.
func IsTransient(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == Transient
}

// Classify wraps a transport-level error or non-2xx status into an Error.
// status is 0 for transport errors.
func Classify(status int, err error) *Error {
	switch {
	case err != nil:
		// Timeouts and resets are transient; context cancellation is
		// propagated as transient so an aborting run does not mark the
		// page permanently failed.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &Error{Kind: Transient, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &Error{Kind: Transient, Err: err}
		}
		return &Error{Kind: Transient, Err: err}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: Transient, StatusCode: status, Err: fmt.Errorf("rate limited")}
	case status >= 500:
		return &Error{Kind: Transient, StatusCode: status, Err: fmt.Errorf("server error")}
	case status >= 400:
		return &Error{Kind: Permanent, StatusCode: status, Err: fmt.Errorf("client error")}
	default:
		return &Error{Kind: Permanent, StatusCode: status, Err: fmt.Errorf("unexpected status")}
	}
}

// PermanentErr marks a payload-shape failure as non-retryable.
func PermanentErr(err error) *Error {
	return &Error{Kind: Permanent, Err: err}
}
