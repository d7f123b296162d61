// Package ics renders a calendar snapshot as an iCalendar feed.
package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/classdesk/internal/model"
)

const productID = "-//classdesk//calendar export//EN"

// Build converts events into a VCALENDAR. Point events without an end get a
// DTEND equal to DTSTART; all-day events use DATE values.
func Build(name string, events []model.CalendarEvent) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		ve := cal.AddEvent(e.ID + "@classdesk")
		ve.SetDtStampTime(e.UpdatedAt.UTC())
		ve.SetCreatedTime(e.CreatedAt.UTC())
		ve.SetModifiedAt(e.UpdatedAt.UTC())
		ve.SetSummary(summary(e))

		end := e.EffectiveEnd()
		if e.AllDay {
			ve.SetAllDayStartAt(e.Start)
			if end.After(e.Start) {
				ve.SetAllDayEndAt(end)
			}
		} else {
			ve.SetStartAt(e.Start.UTC())
			ve.SetEndAt(end.UTC())
		}

		switch e.Status {
		case model.EventStatusBooked:
			ve.SetStatus(ical.ObjectStatusConfirmed)
			ve.SetDescription("Booked by " + e.StudentName)
		case model.EventStatusAvailable, model.EventStatusPending:
			ve.SetStatus(ical.ObjectStatusTentative)
		}
	}
	return cal
}

// Write serializes the calendar for events to w.
func Write(w io.Writer, name string, events []model.CalendarEvent) error {
	_, err := io.WriteString(w, Build(name, events).Serialize())
	return err
}

func summary(e model.CalendarEvent) string {
	title := strings.TrimSpace(e.Title)
	if e.Status == model.EventStatusBooked && e.StudentName != "" {
		return title + ": " + e.StudentName
	}
	return title
}

// FileName is the download name for an export made at t.
func FileName(t time.Time) string {
	return "classdesk-" + t.Format("2006-01-02") + ".ics"
}
