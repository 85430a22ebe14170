package research

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shpitdev/site-classifier/pkg/pipeline/core"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// StatusError is a non-2xx response from a search or fetch endpoint.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// checkStatus turns a non-2xx response into a StatusError, marking 429/5xx as
// transient. It drains a bounded amount of the body for the message.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := &StatusError{
		URL:        resp.Request.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(b)),
	}
	if core.RetryableStatus(resp.StatusCode) {
		return &core.TransientError{Err: err}
	}
	return err
}

func clampCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > 20 {
		return 20
	}
	return n
}
