package devdata

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/domain/model"
	"github.com/okian/statsmail/internal/domain/statsrow"
)

// WritePercentiles writes the single-row percentile CSV, values[i] being the
// breakpoint of percentile i+1.
func WritePercentiles(w io.Writer, values []float64) error {
	header := make([]string, len(values))
	row := make([]string, len(values))
	for i, v := range values {
		header[i] = pctPrefix + strconv.Itoa(i+1)
		row[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll([][]string{header, row}); err != nil {
		return errors.Wrap(err, "write percentiles")
	}
	return nil
}

// WriteStats writes rows as a stats CSV with the canonical header.
func WriteStats(w io.Writer, rows []model.CodingStatRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(statsrow.Columns); err != nil {
		return errors.Wrap(err, "write stats header")
	}

	record := make([]string, len(statsrow.Columns))
	for i, row := range rows {
		fields := statsrow.Format(row)
		for c, name := range statsrow.Columns {
			record[c] = fields[name]
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write stats row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush stats")
}
