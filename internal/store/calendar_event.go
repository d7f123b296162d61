package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/classdesk/internal/booking"
	"github.com/dukerupert/classdesk/internal/interval"
	"github.com/dukerupert/classdesk/internal/model"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrStaleStatus = errors.New("event status changed since it was read")
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, owner_id, title, start_time, end_time, all_day, status, student_name, color, created_at, updated_at`

func scanEvent(scanner interface{ Scan(...any) error }) (*model.CalendarEvent, error) {
	var e model.CalendarEvent
	var end sql.NullTime
	var allDay int
	var status string

	err := scanner.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Start, &end, &allDay, &status, &e.StudentName, &e.Color, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.AllDay = allDay != 0
	e.Status = model.EventStatus(status)
	if end.Valid {
		e.End = &end.Time
	}
	return &e, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, ex execer, e *model.CalendarEvent) error {
	var end sql.NullTime
	if e.End != nil {
		end = sql.NullTime{Time: e.End.UTC(), Valid: true}
	}
	var allDay int
	if e.AllDay {
		allDay = 1
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO calendar_events (`+eventCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Title, e.Start.UTC(), end, allDay, string(e.Status), e.StudentName, e.Color, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

// Create inserts e. CreatedAt and UpdatedAt are assigned here.
func (s *EventStore) Create(ctx context.Context, e *model.CalendarEvent) error {
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if err := insertEvent(ctx, s.db, e); err != nil {
		return fmt.Errorf("insert calendar event: %w", err)
	}
	return nil
}

// CreateSlots inserts the candidates of ownerID that overlap no committed
// event of that owner, in one transaction, and returns the ones stored.
// Overlaps are re-checked here so a caller working from a stale snapshot
// cannot persist a slot on top of an event it has not seen yet. A candidate
// that overlaps an earlier candidate of the same call is skipped too.
func (s *EventStore) CreateSlots(ctx context.Context, ownerID string, candidates []model.CalendarEvent) ([]model.CalendarEvent, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	committed, err := listEvents(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var stored []model.CalendarEvent
	for _, c := range candidates {
		if c.OwnerID != ownerID {
			return nil, fmt.Errorf("slot %s belongs to %q, not %q", c.ID, c.OwnerID, ownerID)
		}
		iv := interval.FromEvent(c)
		if _, conflict := interval.FirstOverlap(iv, committed, nil); conflict {
			continue
		}
		c.CreatedAt, c.UpdatedAt = now, now
		if err := insertEvent(ctx, tx, &c); err != nil {
			return nil, fmt.Errorf("insert calendar event %s: %w", c.ID, err)
		}
		committed = append(committed, c)
		stored = append(stored, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// GetByID returns the event, or nil if it does not exist.
func (s *EventStore) GetByID(ctx context.Context, id string) (*model.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM calendar_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar event: %w", err)
	}
	return e, nil
}

// List returns every event owned by ownerID ordered by start time.
func (s *EventStore) List(ctx context.Context, ownerID string) ([]model.CalendarEvent, error) {
	return listEvents(ctx, s.db, ownerID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listEvents(ctx context.Context, q queryer, ownerID string) ([]model.CalendarEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+eventCols+` FROM calendar_events WHERE owner_id = ? ORDER BY start_time ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	var events []model.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Update writes the non-nil fields of patch. Returns ErrNotFound if no row matched.
func (s *EventStore) Update(ctx context.Context, id string, patch model.EventPatch) error {
	if patch.Empty() {
		return nil
	}

	sets, args := patchClauses(patch)
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE calendar_events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update calendar event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Book moves an available slot to booked in one transaction. The event must
// still be available (ErrStaleStatus otherwise) and the student must hold no
// overlapping booking among committed rows (*booking.ConflictError).
func (s *EventStore) Book(ctx context.Context, id, studentName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	target, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventCols+` FROM calendar_events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get calendar event: %w", err)
	}
	if target.Status != model.EventStatusAvailable {
		return ErrStaleStatus
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+eventCols+` FROM calendar_events
		 WHERE owner_id = ? AND status = 'booked' AND student_name = ? AND id <> ?
		 ORDER BY start_time ASC`,
		target.OwnerID, studentName, id,
	)
	if err != nil {
		return fmt.Errorf("query student bookings: %w", err)
	}
	var booked []model.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan calendar event: %w", err)
		}
		booked = append(booked, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("query student bookings: %w", err)
	}

	if err := booking.CheckTransition(*target, studentName, booked); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE calendar_events SET status = 'booked', student_name = ?, color = ?, updated_at = ?
		 WHERE id = ? AND status = 'available'`,
		studentName, model.ColorBooked, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("book calendar event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return ErrStaleStatus
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes the event. Deleting a missing event is not an error.
func (s *EventStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

func patchClauses(p model.EventPatch) ([]string, []any) {
	var sets []string
	var args []any
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Start != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, p.Start.UTC())
	}
	if p.ClearEnd {
		sets = append(sets, "end_time = NULL")
	} else if p.End != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, p.End.UTC())
	}
	if p.AllDay != nil {
		v := 0
		if *p.AllDay {
			v = 1
		}
		sets = append(sets, "all_day = ?")
		args = append(args, v)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.StudentName != nil {
		sets = append(sets, "student_name = ?")
		args = append(args, *p.StudentName)
	}
	if p.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *p.Color)
	}
	return sets, args
}
