package tracking

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel error kinds for the tracking client.
var (
	ErrEmptyCustomerID = errors.New("customer id is empty")
	ErrTransport       = errors.New("tracking transport failure")
)

// StatusError is returned when the Track API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tracking api returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
