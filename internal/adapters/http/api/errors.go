package api

import "github.com/cockroachdb/errors"

// ErrServe marks failures to start or stop the ops server.
var ErrServe = errors.New("ops server failed")
