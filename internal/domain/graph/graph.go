// Package graph builds the six-week coding-time graph of a user.
//
// Buckets run Sunday 00:00:00 through Saturday 23:59:59 in the job's time
// zone. The anchor is the execution date plus one week, so the newest bucket
// is the week that ended just before the job ran.
package graph

import (
	"time"

	"github.com/okian/statsmail/internal/domain/model"
)

// TimeSavedPerPythonHour converts Python coding hours into hours saved.
const TimeSavedPerPythonHour = 0.18

// NewestWeek is the week index of the most recent bucket.
const NewestWeek = 0

const daysPerWeek = 7

// Anchor returns midnight of the execution date's calendar day plus seven
// days, in loc.
func Anchor(executionDate time.Time, loc *time.Location) time.Time {
	y, m, d := executionDate.Date()
	return time.Date(y, m, d+daysPerWeek, 0, 0, 0, 0, loc)
}

// Week returns the bounds of week index w (0 = newest) relative to anchor.
func Week(anchor time.Time, w int) (start, end time.Time) {
	wd := mondayWeekday(anchor)
	satOff := mod(wd-5, daysPerWeek)

	y, m, d := anchor.Date()
	loc := anchor.Location()
	start = time.Date(y, m, d-(daysPerWeek*w+satOff+6), 0, 0, 0, 0, loc)
	end = time.Date(y, m, d-(daysPerWeek*w+satOff), 23, 59, 59, 0, loc)
	return start, end
}

// Build returns model.Weeks buckets ordered oldest first.
func Build(row model.CodingStatRow, anchor time.Time) []model.WeekBucket {
	maxCoding := row.CodingHours.Max()
	maxPython := row.PythonHours.Max()

	buckets := make([]model.WeekBucket, 0, model.Weeks)
	for w := model.Weeks - 1; w >= NewestWeek; w-- {
		start, end := Week(anchor, w)
		coding := row.CodingHours.Get(w)
		python := row.PythonHours.Get(w)

		buckets = append(buckets, model.WeekBucket{
			StartDate:         start.Unix(),
			EndDate:           end.Unix(),
			CodingHours:       coding,
			ScaledCodingHours: scale(coding, maxCoding),
			PyHours:           python,
			ScaledPyHours:     scale(python, maxPython),
			CompletionsUsed:   row.CompletionsSelected.Get(w),
			TimeSaved:         python * TimeSavedPerPythonHour,
		})
	}
	return buckets
}

func scale(v, peak float64) float64 {
	if peak > 0 {
		return v / peak
	}
	return 0
}

// mondayWeekday numbers days Monday=0 .. Sunday=6.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % daysPerWeek
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
