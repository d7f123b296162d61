package slots

import (
	"fmt"
	"testing"
	"time"

	"github.com/dukerupert/classdesk/internal/interval"
	"github.com/dukerupert/classdesk/internal/model"
)

func seqID() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("slot-%d", n)
	}
}

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("parse clock %q: %v", s, err)
	}
	return c
}

func at(h, m int) time.Time {
	return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC)
}

func TestGenerateEmptyCalendar(t *testing.T) {
	req := Request{
		Date:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowStart: mustClock(t, "14:00"),
		WindowEnd:   mustClock(t, "16:00"),
		SlotMinutes: 15,
	}

	got := Generate(req, nil, seqID())
	if len(got) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(got))
	}
	if !got[0].Start.Equal(at(14, 0)) || !got[0].End.Equal(at(14, 15)) {
		t.Errorf("first slot = %s-%s, want 14:00-14:15", got[0].Start.Format("15:04"), got[0].End.Format("15:04"))
	}
	last := got[len(got)-1]
	if !last.Start.Equal(at(15, 45)) || !last.End.Equal(at(16, 0)) {
		t.Errorf("last slot = %s-%s, want 15:45-16:00", last.Start.Format("15:04"), last.End.Format("15:04"))
	}

	seen := map[string]bool{}
	for i, s := range got {
		if s.Status != model.EventStatusAvailable {
			t.Errorf("slot %d status = %q, want available", i, s.Status)
		}
		if s.End.Sub(s.Start) != 15*time.Minute {
			t.Errorf("slot %d length = %v, want 15m", i, s.End.Sub(s.Start))
		}
		if s.Title != DefaultTitle {
			t.Errorf("slot %d title = %q, want %q", i, s.Title, DefaultTitle)
		}
		if seen[s.ID] {
			t.Errorf("duplicate id %q", s.ID)
		}
		seen[s.ID] = true
		for j := i + 1; j < len(got); j++ {
			if interval.Overlaps(interval.FromEvent(s), interval.FromEvent(got[j])) {
				t.Errorf("slots %d and %d overlap", i, j)
			}
		}
	}
}

func TestGenerateSkipsExistingEvent(t *testing.T) {
	end := at(15, 0)
	existing := []model.CalendarEvent{
		{ID: "booked", Start: at(14, 30), End: &end, Status: model.EventStatusBooked, StudentName: "Sam"},
	}
	req := Request{
		Date:        at(0, 0),
		WindowStart: mustClock(t, "14:00"),
		WindowEnd:   mustClock(t, "16:00"),
		SlotMinutes: 15,
	}

	got := Generate(req, existing, seqID())
	if len(got) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(got))
	}
	for _, s := range got {
		if s.Start.Equal(at(14, 30)) || s.Start.Equal(at(14, 45)) {
			t.Errorf("slot at %s should have been excluded", s.Start.Format("15:04"))
		}
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Start.Before(got[i].Start) {
			t.Errorf("slots not strictly ordered at %d", i)
		}
	}
}

func TestGenerateSkipsPlainAndPointEvents(t *testing.T) {
	existing := []model.CalendarEvent{
		// point event strictly inside the 14:00-14:15 slot
		{ID: "reminder", Start: at(14, 5)},
		// point event on a grid boundary touches but does not overlap
		{ID: "boundary", Start: at(14, 30)},
	}
	req := Request{
		Date:        at(0, 0),
		WindowStart: mustClock(t, "14:00"),
		WindowEnd:   mustClock(t, "15:00"),
		SlotMinutes: 15,
	}

	got := Generate(req, existing, seqID())
	if len(got) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(got))
	}
	if got[0].Start.Equal(at(14, 0)) {
		t.Error("slot containing a point event should be excluded")
	}
}

func TestGenerateDropsPartialTrailingSlot(t *testing.T) {
	req := Request{
		Date:        at(0, 0),
		WindowStart: mustClock(t, "09:00"),
		WindowEnd:   mustClock(t, "10:00"),
		SlotMinutes: 25,
	}
	got := Generate(req, nil, seqID())
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if !got[1].End.Equal(at(9, 50)) {
		t.Errorf("last slot ends %s, want 09:50", got[1].End.Format("15:04"))
	}
}

func TestGenerateClampsDuration(t *testing.T) {
	req := Request{
		Date:        at(0, 0),
		WindowStart: mustClock(t, "09:00"),
		WindowEnd:   mustClock(t, "09:30"),
		SlotMinutes: 1,
	}
	got := Generate(req, nil, seqID())
	if len(got) != 6 {
		t.Fatalf("expected 6 five-minute slots, got %d", len(got))
	}
	if got[0].End.Sub(got[0].Start) != MinSlotMinutes*time.Minute {
		t.Errorf("slot length = %v", got[0].End.Sub(got[0].Start))
	}
}

func TestGenerateDegenerateWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"equal", "10:00", "10:00"},
		{"reversed", "11:00", "10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{
				Date:        at(0, 0),
				WindowStart: mustClock(t, tt.start),
				WindowEnd:   mustClock(t, tt.end),
				SlotMinutes: 15,
			}
			if got := Generate(req, nil, seqID()); len(got) != 0 {
				t.Errorf("expected no slots, got %d", len(got))
			}
		})
	}
}

func TestGenerateUsesDateLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	req := Request{
		Date:        time.Date(2024, 3, 4, 0, 0, 0, 0, loc),
		WindowStart: mustClock(t, "08:00"),
		WindowEnd:   mustClock(t, "08:30"),
		SlotMinutes: 30,
		Title:       "Office hours",
		OwnerID:     "owner-1",
	}
	got := Generate(req, nil, seqID())
	if len(got) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(got))
	}
	want := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)
	if !got[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", got[0].Start, want)
	}
	if got[0].Title != "Office hours" || got[0].OwnerID != "owner-1" {
		t.Errorf("title/owner = %q/%q", got[0].Title, got[0].OwnerID)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", 0, false},
		{"14:30", 14*60 + 30, false},
		{"23:59", 23*60 + 59, false},
		{"24:00", Midnight, false},
		{"24:01", 0, true},
		{"25:00", 0, true},
		{"9am", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if s := Clock(14*60 + 5).String(); s != "14:05" {
		t.Errorf("String() = %q", s)
	}
}

func TestGenerateWindowEndingAtMidnight(t *testing.T) {
	req := Request{
		Date:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowStart: mustClock(t, "23:00"),
		WindowEnd:   mustClock(t, "24:00"),
		SlotMinutes: 30,
	}

	got := Generate(req, nil, seqID())
	if len(got) != 2 {
		t.Fatalf("got %d slots, want 2", len(got))
	}
	if !got[1].Start.Equal(at(23, 30)) {
		t.Errorf("last start = %s", got[1].Start)
	}
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC); !got[1].End.Equal(want) {
		t.Errorf("last end = %s, want %s", got[1].End, want)
	}
	if s := Midnight.String(); s != "24:00" {
		t.Errorf("Midnight.String() = %q", s)
	}
}
