package source

import "github.com/cockroachdb/errors"

// Sentinel error kinds for CSV sources.
var (
	ErrBadURI = errors.New("unsupported source uri")
	ErrOpen   = errors.New("open source failed")
)
