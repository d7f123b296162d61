// Package slots lays a fixed grid of bookable slots over a time window.
package slots

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/classdesk/internal/interval"
	"github.com/dukerupert/classdesk/internal/model"
)

// MinSlotMinutes is the floor applied to the requested slot length.
const MinSlotMinutes = 5

const DefaultTitle = "Available"

var ErrInvalidClock = errors.New("time must be HH:MM")

// Clock is a time of day in minutes after midnight.
type Clock int

// Midnight is the end of the day, so a window can run up to "24:00".
const Midnight Clock = 24 * 60

// ParseClock parses a 24-hour "HH:MM" string. "24:00" is accepted as the
// end of the day.
func ParseClock(s string) (Clock, error) {
	if s == "24:00" {
		return Midnight, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant at this clock time on the given day, in day's
// location. Midnight is the start of the following day.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
}

type Request struct {
	OwnerID     string
	Date        time.Time
	WindowStart Clock
	WindowEnd   Clock
	SlotMinutes int
	Title       string
}

// Duration returns the slot length with the minimum applied.
func (r Request) Duration() time.Duration {
	m := r.SlotMinutes
	if m < MinSlotMinutes {
		m = MinSlotMinutes
	}
	return time.Duration(m) * time.Minute
}

// Generate enumerates [t, t+d) candidates from WindowStart, stepping by d,
// and keeps those that overlap no existing event. A trailing candidate that
// would end past WindowEnd is dropped. Conflicting candidates are skipped,
// not shifted, so survivors stay on the grid.
//
// The result is ordered by start and is empty (not an error) when the
// window is degenerate or every candidate conflicts.
func Generate(req Request, existing []model.CalendarEvent, newID func() string) []model.CalendarEvent {
	if req.WindowEnd <= req.WindowStart {
		return nil
	}

	title := req.Title
	if title == "" {
		title = DefaultTitle
	}

	d := req.Duration()
	windowStart := req.WindowStart.On(req.Date)
	windowEnd := req.WindowEnd.On(req.Date)

	var out []model.CalendarEvent
	for t := windowStart; !t.Add(d).After(windowEnd); t = t.Add(d) {
		candidate := interval.Interval{Start: t, End: t.Add(d)}
		if _, conflict := interval.FirstOverlap(candidate, existing, nil); conflict {
			continue
		}
		end := candidate.End
		out = append(out, model.CalendarEvent{
			ID:      newID(),
			OwnerID: req.OwnerID,
			Title:   title,
			Start:   candidate.Start,
			End:     &end,
			Status:  model.EventStatusAvailable,
			Color:   model.ColorAvailable,
		})
	}
	return out
}
