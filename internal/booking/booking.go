// Package booking governs the available -> booked transition of calendar slots.
package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/classdesk/internal/interval"
	"github.com/dukerupert/classdesk/internal/model"
)

var (
	ErrNotFound        = errors.New("event not found")
	ErrNotAvailable    = errors.New("event is not an available slot")
	ErrStudentRequired = errors.New("student name is required")
)

// ConflictError is returned when the student already holds an overlapping booking.
type ConflictError struct {
	Student     string
	Conflicting model.CalendarEvent
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already booked for %q at %s",
		e.Student, e.Conflicting.Title, e.Conflicting.Start.Format("Mon, Jan 2 at 3:04 PM"))
}

// Action is what a click on an event means.
type Action string

const (
	ActionBook   Action = "book"
	ActionDelete Action = "delete"
)

// ActionFor maps an event to the action a click on it triggers. Only
// available slots can be booked; anything else is offered for deletion.
func ActionFor(e model.CalendarEvent) Action {
	if e.Status == model.EventStatusAvailable {
		return ActionBook
	}
	return ActionDelete
}

// Book validates booking eventID for studentName against snapshot and returns
// the patch to persist. The snapshot is never modified.
func Book(snapshot []model.CalendarEvent, eventID, studentName string) (model.EventPatch, error) {
	studentName = strings.TrimSpace(studentName)
	if studentName == "" {
		return model.EventPatch{}, ErrStudentRequired
	}

	target, ok := find(snapshot, eventID)
	if !ok {
		return model.EventPatch{}, ErrNotFound
	}

	if err := CheckTransition(target, studentName, snapshot); err != nil {
		return model.EventPatch{}, err
	}

	return BookedPatch(studentName), nil
}

// CheckTransition enforces the booking preconditions for target against the
// other events in events. studentName must already be trimmed.
func CheckTransition(target model.CalendarEvent, studentName string, events []model.CalendarEvent) error {
	if target.Status != model.EventStatusAvailable {
		return ErrNotAvailable
	}

	sameStudent := func(e model.CalendarEvent) bool {
		return e.ID == target.ID || e.Status != model.EventStatusBooked || e.StudentName != studentName
	}
	if other, found := interval.FirstOverlap(interval.FromEvent(target), events, sameStudent); found {
		return &ConflictError{Student: studentName, Conflicting: other}
	}
	return nil
}

// BookedPatch is the single write that moves a slot to booked.
func BookedPatch(studentName string) model.EventPatch {
	status := model.EventStatusBooked
	color := model.ColorBooked
	return model.EventPatch{
		Status:      &status,
		StudentName: &studentName,
		Color:       &color,
	}
}

func find(events []model.CalendarEvent, id string) (model.CalendarEvent, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return model.CalendarEvent{}, false
}
