package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/classdesk/internal/auth"
	"github.com/dukerupert/classdesk/internal/booking"
	"github.com/dukerupert/classdesk/internal/calendar"
	"github.com/dukerupert/classdesk/internal/ics"
	"github.com/dukerupert/classdesk/internal/model"
	"github.com/dukerupert/classdesk/internal/slots"
)

type CalendarEventHandler struct {
	calendars *calendar.Manager
	loc       *time.Location
	logger    *slog.Logger
}

func NewCalendarEventHandler(calendars *calendar.Manager, loc *time.Location, logger *slog.Logger) *CalendarEventHandler {
	return &CalendarEventHandler{calendars: calendars, loc: loc, logger: logger.With("component", "calendar_handler")}
}

// service resolves the caller's calendar, writing the error response itself
// when that fails.
func (h *CalendarEventHandler) service(w http.ResponseWriter, r *http.Request) (*calendar.Service, bool) {
	owner := auth.SubjectID(r.Context())
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no identity"})
		return nil, false
	}
	svc, err := h.calendars.For(r.Context(), owner)
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	return svc, true
}

func (h *CalendarEventHandler) List(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	events, err := svc.Snapshot(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

type eventRequest struct {
	Title  string `json:"title" validate:"notblank,max=200"`
	Start  string `json:"start" validate:"required"`
	End    string `json:"end"`
	AllDay bool   `json:"all_day"`
	Color  string `json:"color" validate:"omitempty,hexcolor"`
}

func (h *CalendarEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	start, err := parseFlexibleTime(req.Start, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be RFC3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD"})
		return
	}
	var end *time.Time
	if req.End != "" {
		t, err := parseFlexibleTime(req.End, h.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be RFC3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD"})
			return
		}
		end = &t
	}

	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	event, err := svc.CreateEvent(r.Context(), calendar.NewEvent{
		Title:  req.Title,
		Start:  start,
		End:    end,
		AllDay: req.AllDay,
		Color:  req.Color,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

type updateEventRequest struct {
	Title    *string `json:"title" validate:"omitempty,max=200"`
	Start    *string `json:"start"`
	End      *string `json:"end"`
	ClearEnd bool    `json:"clear_end"`
	AllDay   *bool   `json:"all_day"`
	Color    *string `json:"color" validate:"omitempty,hexcolor"`
}

func (h *CalendarEventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req updateEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	patch := model.EventPatch{
		Title:    req.Title,
		ClearEnd: req.ClearEnd,
		AllDay:   req.AllDay,
		Color:    req.Color,
	}
	if req.Start != nil {
		t, err := parseFlexibleTime(*req.Start, h.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start"})
			return
		}
		patch.Start = &t
	}
	if req.End != nil && !req.ClearEnd {
		t, err := parseFlexibleTime(*req.End, h.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end"})
			return
		}
		patch.End = &t
	}
	if patch.Empty() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nothing to update"})
		return
	}

	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	event, err := svc.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type slotsRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required,clock"`
	EndTime     string `json:"end_time" validate:"required,clock"`
	SlotMinutes int    `json:"slot_minutes" validate:"gte=0,lte=1440"`
	Title       string `json:"title" validate:"max=200"`
	Timezone    string `json:"timezone" validate:"max=64"`
}

// GenerateSlots creates available slots over a window on one day. A window
// that fits no slot, or whose every slot conflicts, reports created: 0.
func (h *CalendarEventHandler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	var req slotsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	loc := h.loc
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid timezone"})
			return
		}
		loc = l
	}
	day, _ := time.ParseInLocation("2006-01-02", req.Date, loc)
	windowStart, _ := slots.ParseClock(req.StartTime)
	windowEnd, _ := slots.ParseClock(req.EndTime)

	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	created, err := svc.GenerateSlots(r.Context(), slots.Request{
		Date:        day,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		SlotMinutes: req.SlotMinutes,
		Title:       req.Title,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if created == nil {
		created = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created": len(created),
		"events":  created,
	})
}

type bookRequest struct {
	StudentName string `json:"student_name" validate:"notblank,max=100"`
}

func (h *CalendarEventHandler) Book(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req bookRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.book(w, r, id, req.StudentName)
}

func (h *CalendarEventHandler) book(w http.ResponseWriter, r *http.Request, id, student string) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	event, err := svc.Book(r.Context(), id, strings.TrimSpace(student))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type actionRequest struct {
	StudentName string `json:"student_name" validate:"max=100"`
	Confirm     bool   `json:"confirm"`
}

// Action performs what a click on the event means: available slots are
// booked, everything else is deleted once the caller confirms.
func (h *CalendarEventHandler) Action(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req actionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	event, err := svc.Lookup(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	switch booking.ActionFor(event) {
	case booking.ActionBook:
		h.book(w, r, id, req.StudentName)
	default:
		if !req.Confirm {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "confirm is required to delete this event",
				"action": booking.ActionDelete,
				"event":  event,
			})
			return
		}
		h.delete(w, r, svc, id)
	}
}

func (h *CalendarEventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "confirm=true is required"})
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	h.delete(w, r, svc, id)
}

func (h *CalendarEventHandler) delete(w http.ResponseWriter, r *http.Request, svc *calendar.Service, id string) {
	if err := svc.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export serves the caller's calendar as an .ics download.
func (h *CalendarEventHandler) Export(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	events, err := svc.Snapshot(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ics.FileName(time.Now().In(h.loc))+`"`)
	if err := ics.Write(w, "classdesk", events); err != nil {
		h.logger.Error("write calendar export", "error", err)
	}
}
