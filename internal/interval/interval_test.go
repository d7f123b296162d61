package interval

import (
	"testing"
	"time"

	"github.com/dukerupert/classdesk/internal/model"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func mins(from, to int) Interval {
	return Interval{Start: base.Add(time.Duration(from) * time.Minute), End: base.Add(time.Duration(to) * time.Minute)}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"touching", mins(0, 30), mins(30, 60), false},
		{"overlapping", mins(0, 30), mins(15, 45), true},
		{"contained", mins(0, 60), mins(15, 30), true},
		{"identical", mins(0, 30), mins(0, 30), true},
		{"disjoint", mins(0, 10), mins(20, 30), false},
		{"point inside", mins(15, 15), mins(0, 30), true},
		{"point at start boundary", mins(0, 0), mins(0, 30), false},
		{"point at end boundary", mins(30, 30), mins(0, 30), false},
		{"two equal points", mins(10, 10), mins(10, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps(b, a) = %v, want %v (not symmetric)", got, tt.want)
			}
		})
	}
}

func TestOverlapsSelf(t *testing.T) {
	if !Overlaps(mins(0, 30), mins(0, 30)) {
		t.Error("positive-width interval should overlap itself")
	}
	if Overlaps(mins(5, 5), mins(5, 5)) {
		t.Error("zero-width interval should not overlap itself")
	}
}

func TestFromEventMissingEnd(t *testing.T) {
	e := model.CalendarEvent{Start: base}
	iv := FromEvent(e)
	if !iv.End.Equal(base) {
		t.Errorf("end = %v, want %v", iv.End, base)
	}
	if iv.Width() != 0 {
		t.Errorf("width = %v, want 0", iv.Width())
	}
}

func TestFirstOverlap(t *testing.T) {
	end1 := base.Add(30 * time.Minute)
	end2 := base.Add(90 * time.Minute)
	events := []model.CalendarEvent{
		{ID: "a", Start: base, End: &end1},
		{ID: "b", Start: base.Add(60 * time.Minute), End: &end2},
	}

	got, ok := FirstOverlap(mins(70, 80), events, nil)
	if !ok || got.ID != "b" {
		t.Fatalf("FirstOverlap = %q, %v; want b, true", got.ID, ok)
	}

	_, ok = FirstOverlap(mins(30, 60), events, nil)
	if ok {
		t.Error("gap between events should not overlap")
	}

	_, ok = FirstOverlap(mins(70, 80), events, func(e model.CalendarEvent) bool { return e.ID == "b" })
	if ok {
		t.Error("skipped event should not be reported")
	}
}
