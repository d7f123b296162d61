package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/classdesk/internal/blob"
	"github.com/dukerupert/classdesk/internal/booking"
	"github.com/dukerupert/classdesk/internal/calendar"
	"github.com/dukerupert/classdesk/internal/notes"
	"github.com/dukerupert/classdesk/internal/store"
)

var errInvalidID = errors.New("invalid id")

func parseIDParam(r *http.Request) (string, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return "", errInvalidID
	}
	return id.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP status. Anything unrecognized
// is a backend failure and is reported with its text.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		conflict   *booking.ConflictError
		calValErr  *calendar.ValidationError
		noteValErr *notes.ValidationError
	)
	switch {
	case errors.As(err, &calValErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": calValErr.Error(), "field": calValErr.Field})
	case errors.As(err, &noteValErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": noteValErr.Error(), "field": noteValErr.Field})
	case errors.Is(err, booking.ErrStudentRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "field": "student_name"})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{"error": conflict.Error(), "conflicting": conflict.Conflicting})
	case errors.Is(err, booking.ErrNotAvailable), errors.Is(err, store.ErrStaleStatus):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, calendar.ErrNotFound), errors.Is(err, notes.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, blob.ErrNotConfigured), errors.Is(err, calendar.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// parseFlexibleTime accepts RFC3339, a local "2006-01-02T15:04" in loc, or a
// bare date at midnight in loc.
func parseFlexibleTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

// HealthHandler reports liveness and whether attachments can be stored.
type HealthHandler struct {
	attachmentsEnabled func() bool
}

func NewHealthHandler(attachmentsEnabled func() bool) *HealthHandler {
	return &HealthHandler{attachmentsEnabled: attachmentsEnabled}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"attachments": h.attachmentsEnabled(),
	})
}
