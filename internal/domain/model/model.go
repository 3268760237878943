// Package model contains domain models passed between layers.
package model

// Weeks is the number of weekly buckets in a coding-time graph.
const Weeks = 6

// PercentileEntry is one breakpoint of the weekly coding-hours distribution.
type PercentileEntry struct {
	Percentile int     // 1..99
	Value      float64 // hours at this percentile
}

// WeeklyHours maps a week index (0 = current week) to hours.
// Missing keys mean zero.
type WeeklyHours map[int]float64

// Get returns the hours for week w, or 0 when absent.
func (h WeeklyHours) Get(w int) float64 {
	return h[w]
}

// Max returns the largest value, or 0 for an empty map.
func (h WeeklyHours) Max() float64 {
	var m float64
	first := true
	for _, v := range h {
		if first || v > m {
			m = v
			first = false
		}
	}
	return m
}

// WeeklyCounts maps a week index to an integer count.
type WeeklyCounts map[int]int64

// Get returns the count for week w, or 0 when absent.
func (c WeeklyCounts) Get(w int) int64 {
	return c[w]
}

// CodingStatRow is one user's six-week aggregate as produced by the stats query.
type CodingStatRow struct {
	UserID              string
	TotalWeeks          int
	Streak              int
	CodingHours         WeeklyHours
	PythonHours         WeeklyHours
	CompletionsSelected WeeklyCounts
}

// WeekBucket is one week of the coding-time graph.
// Timestamps are epoch seconds.
type WeekBucket struct {
	StartDate         int64   `json:"start_date"`
	EndDate           int64   `json:"end_date"`
	CodingHours       float64 `json:"coding_hours"`
	ScaledCodingHours float64 `json:"scaled_coding_hours"`
	PyHours           float64 `json:"py_hours"`
	ScaledPyHours     float64 `json:"scaled_py_hours"`
	CompletionsUsed   int64   `json:"completions_used"`
	TimeSaved         float64 `json:"time_saved"`
}

// Event is the per-user payload delivered to the tracking service.
type Event struct {
	AllTimeWeeks         int          `json:"all_time_weeks"`
	Streak               int          `json:"streak"`
	CodingTimePercentile int          `json:"coding_time_percentile"`
	CodingTimeGraph      []WeekBucket `json:"coding_time_graph"`
}
