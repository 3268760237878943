package dispatch

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel error kinds for the dispatcher.
var (
	// ErrWaitTimeout is returned when no in-flight row completes within the
	// configured wait timeout.
	ErrWaitTimeout = errors.New("timed out waiting for in-flight rows")
	// ErrInterrupted is returned when the run context is canceled mid-run.
	ErrInterrupted = errors.New("dispatch interrupted")
)

// WorkerError is a tracking failure for one row. Unwrap yields the original
// error unchanged.
type WorkerError struct {
	Index  int
	UserID string
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("row %d (user %s): %v", e.Index, e.UserID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
