// Package percentile loads the weekly coding-hours percentile breakpoints and
// classifies a user's hours against them.
package percentile

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/domain/model"
)

// Count is the number of breakpoints in a table (pct_1 .. pct_99).
const Count = 99

const columnPrefix = "pct_"

// Table is an immutable, percentile-ordered set of breakpoints.
type Table struct {
	entries []model.PercentileEntry
}

// New builds a table from values, where values[i] is the breakpoint of
// percentile i+1.
func New(values []float64) (*Table, error) {
	if len(values) != Count {
		return nil, model.InputFormatf("percentile table needs %d values, got %d", Count, len(values))
	}
	entries := make([]model.PercentileEntry, Count)
	for i, v := range values {
		entries[i] = model.PercentileEntry{Percentile: i + 1, Value: v}
	}
	return &Table{entries: entries}, nil
}

// Load reads the single-row percentile CSV. Columns are matched by name, so
// their order does not matter; extra columns are ignored.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read percentile header"), model.ErrInputFormat)
	}
	row, err := cr.Read()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read percentile row"), model.ErrInputFormat)
	}

	byName := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(row) {
			byName[strings.TrimSpace(name)] = row[i]
		}
	}

	values := make([]float64, Count)
	for p := 1; p <= Count; p++ {
		col := columnPrefix + strconv.Itoa(p)
		raw, ok := byName[col]
		if !ok {
			return nil, model.InputFormatf("percentile column %s missing", col)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "percentile column %s", col), model.ErrInputFormat)
		}
		values[p-1] = v
	}
	return New(values)
}

// Entries returns a copy of the breakpoints in ascending percentile order.
func (t *Table) Entries() []model.PercentileEntry {
	out := make([]model.PercentileEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Value returns the breakpoint for percentile p (1..99).
func (t *Table) Value(p int) (float64, bool) {
	if p < 1 || p > len(t.entries) {
		return 0, false
	}
	return t.entries[p-1].Value, true
}

// Classify returns the greatest percentile whose breakpoint is <= hours, or 0
// when hours is below every breakpoint. Ties resolve to the higher percentile.
func (t *Table) Classify(hours float64) int {
	result := 0
	for _, e := range t.entries {
		if e.Value <= hours {
			result = e.Percentile
		}
	}
	return result
}
