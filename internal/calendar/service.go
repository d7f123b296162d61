// Package calendar owns one owner's event snapshot and runs every calendar
// operation against it.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/classdesk/internal/booking"
	"github.com/dukerupert/classdesk/internal/interval"
	"github.com/dukerupert/classdesk/internal/live"
	"github.com/dukerupert/classdesk/internal/model"
	"github.com/dukerupert/classdesk/internal/slots"
)

var (
	ErrNotFound = errors.New("event not found")
	ErrClosed   = errors.New("calendar closed")
)

// ValidationError is returned for input rejected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Repository is the event document collection the service writes through.
// Every successful write must push a new snapshot to subscribers.
type Repository interface {
	Subscribe(ctx context.Context, ownerID string) (*live.Subscription[[]model.CalendarEvent], error)
	Create(ctx context.Context, e *model.CalendarEvent) error
	CreateSlots(ctx context.Context, ownerID string, candidates []model.CalendarEvent) ([]model.CalendarEvent, error)
	Update(ctx context.Context, ownerID, id string, patch model.EventPatch) error
	Book(ctx context.Context, ownerID, id, studentName string) error
	Delete(ctx context.Context, ownerID, id string) error
}

// Service holds the most recent snapshot pushed by the subscription and
// serializes operations for its owner. Pending snapshots are folded in at
// the start of every operation, so a write is always visible to the next one.
// A subscription left stale by a failed reload is resynced first.
type Service struct {
	repo    Repository
	ownerID string
	logger  *slog.Logger
	newID   func() string

	mu       sync.Mutex
	sub      *live.Subscription[[]model.CalendarEvent]
	snapshot []model.CalendarEvent
	closed   bool
}

// Open subscribes to ownerID's events and waits for the first snapshot.
func Open(ctx context.Context, repo Repository, ownerID string, logger *slog.Logger) (*Service, error) {
	sub, err := repo.Subscribe(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	var first []model.CalendarEvent
	select {
	case snap, ok := <-sub.C():
		if !ok {
			return nil, ErrClosed
		}
		first = snap
	case <-ctx.Done():
		sub.Close()
		return nil, ctx.Err()
	}

	return &Service{
		repo:     repo,
		ownerID:  ownerID,
		logger:   logger,
		newID:    uuid.NewString,
		sub:      sub,
		snapshot: first,
	}, nil
}

// Close releases the subscription. Later operations return ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.sub.Close()
}

// refresh replaces the snapshot with the newest one pushed. Caller holds mu.
func (s *Service) refresh(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.sub.Stale() {
		if err := s.sub.Resync(ctx); err != nil {
			return fmt.Errorf("resync snapshot: %w", err)
		}
	}
	for {
		select {
		case snap, ok := <-s.sub.C():
			if !ok {
				s.closed = true
				return ErrClosed
			}
			s.snapshot = snap
		default:
			return nil
		}
	}
}

// Snapshot returns a copy of the current event set.
func (s *Service) Snapshot(ctx context.Context) ([]model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	out := make([]model.CalendarEvent, len(s.snapshot))
	copy(out, s.snapshot)
	return out, nil
}

func (s *Service) find(id string) (model.CalendarEvent, bool) {
	for _, e := range s.snapshot {
		if e.ID == id {
			return e, true
		}
	}
	return model.CalendarEvent{}, false
}

// Lookup returns one event from the current snapshot.
func (s *Service) Lookup(ctx context.Context, id string) (model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return model.CalendarEvent{}, err
	}
	e, ok := s.find(id)
	if !ok {
		return model.CalendarEvent{}, ErrNotFound
	}
	return e, nil
}

type NewEvent struct {
	Title  string
	Start  time.Time
	End    *time.Time
	AllDay bool
	Color  string
}

func validateSpan(start time.Time, end *time.Time, allDay bool) error {
	if start.IsZero() {
		return &ValidationError{Field: "start", Message: "is required"}
	}
	if end == nil {
		return nil
	}
	if allDay {
		if end.Before(start) {
			return &ValidationError{Field: "end", Message: "must not be before start"}
		}
		return nil
	}
	if !end.After(start) {
		return &ValidationError{Field: "end", Message: "must be after start"}
	}
	return nil
}

// CreateEvent stores a plain event with no booking semantics.
func (s *Service) CreateEvent(ctx context.Context, in NewEvent) (model.CalendarEvent, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.CalendarEvent{}, &ValidationError{Field: "title", Message: "is required"}
	}
	if err := validateSpan(in.Start, in.End, in.AllDay); err != nil {
		return model.CalendarEvent{}, err
	}

	color := in.Color
	if color == "" {
		color = model.ColorDefault
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return model.CalendarEvent{}, err
	}

	e := model.CalendarEvent{
		ID:      s.newID(),
		OwnerID: s.ownerID,
		Title:   title,
		Start:   in.Start,
		End:     in.End,
		AllDay:  in.AllDay,
		Color:   color,
	}
	if err := s.repo.Create(ctx, &e); err != nil {
		return model.CalendarEvent{}, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created", "owner", s.ownerID, "id", e.ID)
	return e, nil
}

// GenerateSlots lays the slot grid over req's window and stores every
// candidate that conflicts with nothing in the snapshot. Zero slots is a
// normal outcome and is not an error.
func (s *Service) GenerateSlots(ctx context.Context, req slots.Request) ([]model.CalendarEvent, error) {
	if req.Date.IsZero() {
		return nil, &ValidationError{Field: "date", Message: "is required"}
	}
	req.OwnerID = s.ownerID
	req.Title = strings.TrimSpace(req.Title)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	candidates := slots.Generate(req, s.snapshot, s.newID)
	if len(candidates) == 0 {
		return nil, nil
	}
	created, err := s.repo.CreateSlots(ctx, s.ownerID, candidates)
	if err != nil {
		return nil, fmt.Errorf("create slots: %w", err)
	}
	if skipped := len(candidates) - len(created); skipped > 0 {
		s.logger.Warn("slots skipped for events missing from snapshot", "owner", s.ownerID, "skipped", skipped)
	}
	if len(created) == 0 {
		return nil, nil
	}
	s.logger.Info("slots generated", "owner", s.ownerID, "count", len(created),
		"date", req.Date.Format("2006-01-02"), "window", req.WindowStart.String()+"-"+req.WindowEnd.String())
	return created, nil
}

// Book moves an available slot to booked for studentName. The snapshot check
// names a local conflict without a round trip; the store re-checks the same
// rules inside its transaction so two clients cannot both win.
func (s *Service) Book(ctx context.Context, id, studentName string) (model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return model.CalendarEvent{}, err
	}

	patch, err := booking.Book(s.snapshot, id, studentName)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return model.CalendarEvent{}, ErrNotFound
		}
		return model.CalendarEvent{}, err
	}

	if err := s.repo.Book(ctx, s.ownerID, id, *patch.StudentName); err != nil {
		return model.CalendarEvent{}, fmt.Errorf("book event: %w", err)
	}

	target, _ := s.find(id)
	booked := patch.Apply(target)
	s.logger.Info("slot booked", "owner", s.ownerID, "id", id, "student", booked.StudentName)
	return booked, nil
}

// Update edits an event's title, color, or times. Status and student are
// only changed through Book.
func (s *Service) Update(ctx context.Context, id string, patch model.EventPatch) (model.CalendarEvent, error) {
	if patch.Status != nil || patch.StudentName != nil {
		return model.CalendarEvent{}, &ValidationError{Field: "status", Message: "cannot be changed directly"}
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return model.CalendarEvent{}, &ValidationError{Field: "title", Message: "is required"}
		}
		patch.Title = &title
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return model.CalendarEvent{}, err
	}

	current, ok := s.find(id)
	if !ok {
		return model.CalendarEvent{}, ErrNotFound
	}
	updated := patch.Apply(current)
	if err := validateSpan(updated.Start, updated.End, updated.AllDay); err != nil {
		return model.CalendarEvent{}, err
	}

	if updated.Status == model.EventStatusBooked {
		others := func(e model.CalendarEvent) bool {
			return e.ID == id || e.Status != model.EventStatusBooked || e.StudentName != updated.StudentName
		}
		if other, found := interval.FirstOverlap(interval.FromEvent(updated), s.snapshot, others); found {
			return model.CalendarEvent{}, &booking.ConflictError{Student: updated.StudentName, Conflicting: other}
		}
	}

	if err := s.repo.Update(ctx, s.ownerID, id, patch); err != nil {
		return model.CalendarEvent{}, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

// Delete removes an event regardless of status.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(ctx); err != nil {
		return err
	}

	if _, ok := s.find(id); !ok {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, s.ownerID, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.logger.Info("event deleted", "owner", s.ownerID, "id", id)
	return nil
}
