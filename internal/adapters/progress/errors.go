package progress

import "github.com/cockroachdb/errors"

// Sentinel error kinds for progress storage.
var (
	ErrUnknownDriver = errors.New("unknown progress driver")
	ErrBadCursor     = errors.New("stored cursor is not a non-negative integer")
	ErrStore         = errors.New("progress store failure")
)
