package statsrow

import "github.com/okian/statsmail/internal/domain/model"

// IsInactive reports whether a user had neither coding time nor selected
// completions in the current and previous week. Older weeks are ignored.
func IsInactive(row model.CodingStatRow) bool {
	return row.CodingHours.Get(0)+row.CodingHours.Get(1) == 0 &&
		row.CompletionsSelected.Get(0)+row.CompletionsSelected.Get(1) == 0
}
