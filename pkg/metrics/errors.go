package metrics

import (
	"github.com/cockroachdb/errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrPushFailed = errors.New("metrics push failed")
)
