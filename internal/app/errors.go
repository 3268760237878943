package app

import "github.com/cockroachdb/errors"

// ErrPercentiles marks failures to read the percentile table.
var ErrPercentiles = errors.New("percentile table unavailable")
