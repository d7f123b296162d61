package model

import "time"

type EventStatus string

const (
	EventStatusNone      EventStatus = ""
	EventStatusAvailable EventStatus = "available"
	EventStatusBooked    EventStatus = "booked"
	EventStatusPending   EventStatus = "pending"
)

// Valid reports whether s is one of the known statuses, including none.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusNone, EventStatusAvailable, EventStatusBooked, EventStatusPending:
		return true
	}
	return false
}

// Display colors. Not load-bearing; the UI may ignore them.
const (
	ColorDefault   = "#3b82f6"
	ColorAvailable = "#10b981"
	ColorBooked    = "#ef4444"
)

type CalendarEvent struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	Start       time.Time   `json:"start"`
	End         *time.Time  `json:"end,omitempty"`
	AllDay      bool        `json:"all_day"`
	Status      EventStatus `json:"status,omitempty"`
	StudentName string      `json:"student_name,omitempty"`
	Color       string      `json:"color,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EffectiveEnd returns End, or Start when the event has no end.
func (e CalendarEvent) EffectiveEnd() time.Time {
	if e.End == nil {
		return e.Start
	}
	return *e.End
}

// EventPatch is a partial update. Nil fields are left untouched.
type EventPatch struct {
	Title       *string
	Start       *time.Time
	End         *time.Time
	ClearEnd    bool
	AllDay      *bool
	Status      *EventStatus
	StudentName *string
	Color       *string
}

// Apply returns a copy of e with the patch applied.
func (p EventPatch) Apply(e CalendarEvent) CalendarEvent {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.ClearEnd {
		e.End = nil
	} else if p.End != nil {
		end := *p.End
		e.End = &end
	}
	if p.AllDay != nil {
		e.AllDay = *p.AllDay
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.StudentName != nil {
		e.StudentName = *p.StudentName
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	return e
}

// Empty reports whether the patch would change nothing.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Start == nil && p.End == nil && !p.ClearEnd &&
		p.AllDay == nil && p.Status == nil && p.StudentName == nil && p.Color == nil
}
