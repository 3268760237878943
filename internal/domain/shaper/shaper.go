// Package shaper turns parsed stats rows into tracking events.
package shaper

import (
	"time"

	"github.com/okian/statsmail/internal/domain/graph"
	"github.com/okian/statsmail/internal/domain/model"
	"github.com/okian/statsmail/internal/domain/percentile"
	"github.com/okian/statsmail/internal/domain/statsrow"
)

// Shaper builds events for one run. It is safe for concurrent use.
type Shaper struct {
	table  *percentile.Table
	anchor time.Time
}

// New returns a Shaper for the given execution date, with weekly buckets in loc.
func New(table *percentile.Table, executionDate time.Time, loc *time.Location) *Shaper {
	return &Shaper{
		table:  table,
		anchor: graph.Anchor(executionDate, loc),
	}
}

// Shape returns the event for row, or false when the user is inactive and
// nothing should be sent.
func (s *Shaper) Shape(row model.CodingStatRow) (model.Event, bool) {
	if statsrow.IsInactive(row) {
		return model.Event{}, false
	}
	return model.Event{
		AllTimeWeeks:         row.TotalWeeks,
		Streak:               row.Streak,
		CodingTimePercentile: s.table.Classify(row.CodingHours.Get(graph.NewestWeek)),
		CodingTimeGraph:      graph.Build(row, s.anchor),
	}, true
}

// ShapeFields parses a raw CSV record and shapes it.
func (s *Shaper) ShapeFields(fields map[string]string) (userID string, ev model.Event, ok bool, err error) {
	row, err := statsrow.Parse(fields)
	if err != nil {
		return "", model.Event{}, false, err
	}
	ev, ok = s.Shape(row)
	return row.UserID, ev, ok, nil
}
