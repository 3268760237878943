// Package statsrow parses one user's six-week aggregate from the stats CSV.
//
// The map-valued columns arrive as a stringified mapping. Both the Athena
// rendering ({0=4.0, 1=2.0}) and dict-like renderings ({0: 4.0, '1': 2}) are
// accepted; they are normalised to a YAML flow mapping and decoded with
// gopkg.in/yaml.v3.
package statsrow

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// Stats CSV column names.
const (
	ColUserID              = "userid"
	ColTotalWeeks          = "total_weeks"
	ColStreak              = "streak"
	ColCodingHours         = "coding_hours"
	ColPythonHours         = "python_hours"
	ColCompletionsSelected = "completions_selected"
)

// Columns lists the stats CSV header in its canonical order.
var Columns = []string{
	ColUserID, ColTotalWeeks, ColStreak, ColCodingHours, ColPythonHours, ColCompletionsSelected,
}

// Parse converts one CSV record, keyed by column name, into a CodingStatRow.
func Parse(fields map[string]string) (model.CodingStatRow, error) {
	var row model.CodingStatRow

	userID, err := column(fields, ColUserID)
	if err != nil {
		return row, err
	}
	if strings.TrimSpace(userID) == "" {
		return row, model.InputFormatf("column %s is empty", ColUserID)
	}
	row.UserID = userID

	if row.TotalWeeks, err = intColumn(fields, ColTotalWeeks); err != nil {
		return row, err
	}
	if row.Streak, err = intColumn(fields, ColStreak); err != nil {
		return row, err
	}

	raw, err := column(fields, ColCodingHours)
	if err != nil {
		return row, err
	}
	if row.CodingHours, err = DecodeHours(raw); err != nil {
		return row, errors.Wrapf(err, "column %s", ColCodingHours)
	}

	if raw, err = column(fields, ColPythonHours); err != nil {
		return row, err
	}
	if row.PythonHours, err = DecodeHours(raw); err != nil {
		return row, errors.Wrapf(err, "column %s", ColPythonHours)
	}

	if raw, err = column(fields, ColCompletionsSelected); err != nil {
		return row, err
	}
	if row.CompletionsSelected, err = DecodeCounts(raw); err != nil {
		return row, errors.Wrapf(err, "column %s", ColCompletionsSelected)
	}
	return row, nil
}

// Format renders a row back into CSV fields, the inverse of Parse.
func Format(row model.CodingStatRow) map[string]string {
	return map[string]string{
		ColUserID:              row.UserID,
		ColTotalWeeks:          strconv.Itoa(row.TotalWeeks),
		ColStreak:              strconv.Itoa(row.Streak),
		ColCodingHours:         EncodeHours(row.CodingHours),
		ColPythonHours:         EncodeHours(row.PythonHours),
		ColCompletionsSelected: EncodeCounts(row.CompletionsSelected),
	}
}

// DecodeHours decodes a stringified week->hours mapping. Keys outside the
// graph window are discarded.
func DecodeHours(s string) (model.WeeklyHours, error) {
	out := model.WeeklyHours{}
	err := decode(s, func(week int, v float64) error {
		out[week] = v
		return nil
	})
	return out, err
}

// DecodeCounts decodes a stringified week->count mapping. Values must be
// integral ("3" or "3.0").
func DecodeCounts(s string) (model.WeeklyCounts, error) {
	out := model.WeeklyCounts{}
	err := decode(s, func(week int, v float64) error {
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return model.InputFormatf("count %v for week %d is not an integer", v, week)
		}
		out[week] = int64(v)
		return nil
	})
	return out, err
}

// EncodeHours renders hours in the Athena map form, keys ascending.
func EncodeHours(h model.WeeklyHours) string {
	parts := make([]string, 0, len(h))
	for _, k := range sortedKeys(h) {
		parts = append(parts, strconv.Itoa(k)+"="+strconv.FormatFloat(h[k], 'g', -1, 64))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// EncodeCounts renders counts in the Athena map form, keys ascending.
func EncodeCounts(c model.WeeklyCounts) string {
	keys := make([]int, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(c))
	for _, k := range keys {
		parts = append(parts, strconv.Itoa(k)+"="+strconv.FormatInt(c[k], 10))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func decode(s string, put func(week int, v float64) error) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// {0=4.0, 1=2.0} and {0:4.0,1:2.0} -> {0: 4.0, 1: 2.0}
	s = strings.NewReplacer("=", ": ", ":", ": ").Replace(s)

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return errors.Mark(errors.Wrapf(err, "decode mapping %q", s), model.ErrInputFormat)
	}
	if doc.Kind == 0 {
		return nil
	}
	node := &doc
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return model.InputFormatf("value %q is not a mapping", s)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		week, err := strconv.Atoi(strings.TrimSpace(key.Value))
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "week key %q", key.Value), model.ErrInputFormat)
		}
		if val.Kind != yaml.ScalarNode {
			return model.InputFormatf("value for week %d is not a number", week)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val.Value), 64)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "value for week %d", week), model.ErrInputFormat)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.InputFormatf("value for week %d is not finite", week)
		}
		if week < 0 || week >= model.Weeks {
			continue
		}
		if err := put(week, v); err != nil {
			return err
		}
	}
	return nil
}

func column(fields map[string]string, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", model.InputFormatf("column %s missing", name)
	}
	return v, nil
}

func intColumn(fields map[string]string, name string) (int, error) {
	raw, err := column(fields, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "column %s", name), model.ErrInputFormat)
	}
	return n, nil
}

func sortedKeys(h model.WeeklyHours) []int {
	keys := make([]int, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
