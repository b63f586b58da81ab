package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNotReady means the provider has not finished indexing the Item yet.
	ErrNotReady = errors.New("transactions not ready")
	// ErrTransient covers network failures and overloaded upstreams.
	ErrTransient = errors.New("transient gateway failure")
	// ErrMalformedResponse is returned when a 2xx body cannot be read.
	ErrMalformedResponse = errors.New("malformed response")
	ErrEmptyToken        = errors.New("empty token")
)

// HTTPError carries the status and raw body of a non-2xx response.
type HTTPError struct {
	Op     string
	Status int
	Body   string
	kind   error
}

func (e *HTTPError) Error() string {
	body := e.Body
	if body == "" {
		body = "<no body>"
	}
	return fmt.Sprintf("%s failed: HTTP %d - %s", e.Op, e.Status, truncate(body, 2000))
}

// Unwrap exposes ErrNotReady / ErrTransient for errors.Is.
func (e *HTTPError) Unwrap() error { return e.kind }

// IsRetryable reports whether a fetch error should be retried with backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotReady) || errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
