package model

import "github.com/cockroachdb/errors"

// ErrInputFormat marks any failure to parse upstream CSV input.
var ErrInputFormat = errors.New("input format error")

// InputFormatf builds an error marked with ErrInputFormat.
func InputFormatf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInputFormat)
}
