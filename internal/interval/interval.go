// Package interval decides whether two calendar time ranges conflict.
//
// Intervals are half-open, [Start, End). Ranges that only touch at an
// endpoint do not overlap, and a zero-width range [t, t) overlaps another
// range only when that range strictly contains t.
package interval

import (
	"time"

	"github.com/dukerupert/classdesk/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// FromEvent derives the interval an event occupies. A missing end is
// treated as equal to the start.
func FromEvent(e model.CalendarEvent) Interval {
	return Interval{Start: e.Start, End: e.EffectiveEnd()}
}

// Width returns End - Start.
func (iv Interval) Width() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether a and b share any instant.
// [s1, e1) and [s2, e2) overlap iff s1 < e2 && s2 < e1.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// FirstOverlap returns the first event in events whose interval overlaps iv.
// Events for which skip returns true are ignored; skip may be nil.
func FirstOverlap(iv Interval, events []model.CalendarEvent, skip func(model.CalendarEvent) bool) (model.CalendarEvent, bool) {
	for _, e := range events {
		if skip != nil && skip(e) {
			continue
		}
		if Overlaps(iv, FromEvent(e)) {
			return e, true
		}
	}
	return model.CalendarEvent{}, false
}
