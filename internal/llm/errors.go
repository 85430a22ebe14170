package llm

import (
	"errors"
	"fmt"

	"github.com/shpitdev/site-classifier/pkg/pipeline/core"
)

// HTTPError is a normal HTTP rejection from an inference backend. Callers treat
// it as recoverable by retrying without the strict-JSON constraint. Every other
// backend error is a transport failure.
type HTTPError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "llm: http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("llm: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: http status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsHTTPError reports whether err carries an HTTP status rejection.
func IsHTTPError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he)
}

// markTransient wraps retryable status failures so worker pools back off.
func markTransient(he *HTTPError) error {
	if core.RetryableStatus(he.StatusCode) {
		return &core.TransientError{Err: he}
	}
	return he
}
