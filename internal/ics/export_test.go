package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/classdesk/internal/model"
)

func parse(t *testing.T, events []model.CalendarEvent) map[string]*ical.VEvent {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, "Lessons", events); err != nil {
		t.Fatalf("write: %v", err)
	}
	cal, err := ical.ParseCalendar(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, buf.String())
	}
	out := make(map[string]*ical.VEvent)
	for _, ve := range cal.Events() {
		out[ve.GetProperty(ical.ComponentPropertyUniqueId).Value] = ve
	}
	return out
}

func TestWriteEvents(t *testing.T) {
	start := time.Date(2026, 2, 5, 14, 0, 0, 0, time.UTC)
	end := start.Add(20 * time.Minute)
	stamp := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	events := []model.CalendarEvent{
		{ID: "a", Title: "Available", Start: start, End: &end, Status: model.EventStatusAvailable, CreatedAt: stamp, UpdatedAt: stamp},
		{ID: "b", Title: "Lesson", Start: end, Status: model.EventStatusBooked, StudentName: "Sam", CreatedAt: stamp, UpdatedAt: stamp},
		{ID: "c", Title: "Field trip", Start: time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC), AllDay: true, CreatedAt: stamp, UpdatedAt: stamp},
	}
	got := parse(t, events)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}

	a := got["a@classdesk"]
	if a == nil {
		t.Fatal("missing event a")
	}
	if s, _ := a.GetStartAt(); !s.Equal(start) {
		t.Errorf("a start = %v, want %v", s, start)
	}
	if e, _ := a.GetEndAt(); !e.Equal(end) {
		t.Errorf("a end = %v, want %v", e, end)
	}
	if st := a.GetProperty(ical.ComponentPropertyStatus); st == nil || st.Value != string(ical.ObjectStatusTentative) {
		t.Errorf("a status = %+v", st)
	}

	b := got["b@classdesk"]
	if b == nil {
		t.Fatal("missing event b")
	}
	if s := b.GetProperty(ical.ComponentPropertySummary).Value; s != "Lesson: Sam" {
		t.Errorf("b summary = %q", s)
	}
	if e, _ := b.GetEndAt(); !e.Equal(end) {
		t.Errorf("point event end = %v, want its start %v", e, end)
	}

	c := got["c@classdesk"]
	if c == nil {
		t.Fatal("missing event c")
	}
	if v := c.GetProperty(ical.ComponentPropertyDtStart).Value; v != "20260206" {
		t.Errorf("all-day DTSTART = %q, want date value", v)
	}
	if c.GetProperty(ical.ComponentPropertyStatus) != nil {
		t.Error("plain event should carry no status")
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "", nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "BEGIN:VCALENDAR") || strings.Contains(out, "BEGIN:VEVENT") {
		t.Errorf("output = %q", out)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)); got != "classdesk-2026-03-09.ics" {
		t.Errorf("FileName = %q", got)
	}
}
