package cli

import (
	"time"

	"github.com/cockroachdb/errors"
)

const dateLayout = "2006-01-02"

// parseDate reads a scheduled execution date.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("--execution-date is required")
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "--execution-date %q", s)
	}
	return t, nil
}
