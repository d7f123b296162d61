package live

import (
	"context"
	"log/slog"

	"github.com/dukerupert/classdesk/internal/model"
	"github.com/dukerupert/classdesk/internal/store"
)

// EventAdapter is the calendar's document collection: writes go to the
// store, and every committed write pushes a fresh snapshot to the owner's
// subscribers, ordered by start time.
type EventAdapter struct {
	store *store.EventStore
	feed  *Feed[[]model.CalendarEvent]
}

func NewEventAdapter(s *store.EventStore, logger *slog.Logger) *EventAdapter {
	return &EventAdapter{
		store: s,
		feed:  NewFeed[[]model.CalendarEvent](s.List, logger),
	}
}

func (a *EventAdapter) Subscribe(ctx context.Context, ownerID string) (*Subscription[[]model.CalendarEvent], error) {
	return a.feed.Subscribe(ctx, ownerID)
}

func (a *EventAdapter) Create(ctx context.Context, e *model.CalendarEvent) error {
	if err := a.store.Create(ctx, e); err != nil {
		return err
	}
	a.feed.Notify(ctx, e.OwnerID)
	return nil
}

// CreateSlots stores the candidates that still fit ownerID's committed
// calendar and returns them.
func (a *EventAdapter) CreateSlots(ctx context.Context, ownerID string, candidates []model.CalendarEvent) ([]model.CalendarEvent, error) {
	stored, err := a.store.CreateSlots(ctx, ownerID, candidates)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		a.feed.Notify(ctx, ownerID)
	}
	return stored, nil
}

func (a *EventAdapter) Update(ctx context.Context, ownerID, id string, patch model.EventPatch) error {
	if err := a.store.Update(ctx, id, patch); err != nil {
		return err
	}
	a.feed.Notify(ctx, ownerID)
	return nil
}

func (a *EventAdapter) Book(ctx context.Context, ownerID, id, studentName string) error {
	if err := a.store.Book(ctx, id, studentName); err != nil {
		return err
	}
	a.feed.Notify(ctx, ownerID)
	return nil
}

func (a *EventAdapter) Delete(ctx context.Context, ownerID, id string) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	a.feed.Notify(ctx, ownerID)
	return nil
}

// Close ends every subscription.
func (a *EventAdapter) Close() {
	a.feed.Close()
}

// NoteAdapter does the same for notes, newest first.
type NoteAdapter struct {
	store *store.NoteStore
	feed  *Feed[[]model.Note]
}

func NewNoteAdapter(s *store.NoteStore, logger *slog.Logger) *NoteAdapter {
	return &NoteAdapter{
		store: s,
		feed:  NewFeed[[]model.Note](s.List, logger),
	}
}

func (a *NoteAdapter) Subscribe(ctx context.Context, ownerID string) (*Subscription[[]model.Note], error) {
	return a.feed.Subscribe(ctx, ownerID)
}

func (a *NoteAdapter) Get(ctx context.Context, id string) (*model.Note, error) {
	return a.store.GetByID(ctx, id)
}

func (a *NoteAdapter) List(ctx context.Context, ownerID string) ([]model.Note, error) {
	return a.store.List(ctx, ownerID)
}

func (a *NoteAdapter) Create(ctx context.Context, n *model.Note) error {
	if err := a.store.Create(ctx, n); err != nil {
		return err
	}
	a.feed.Notify(ctx, n.OwnerID)
	return nil
}

func (a *NoteAdapter) Update(ctx context.Context, ownerID, id, title, body string) error {
	if err := a.store.Update(ctx, id, title, body); err != nil {
		return err
	}
	a.feed.Notify(ctx, ownerID)
	return nil
}

func (a *NoteAdapter) Delete(ctx context.Context, ownerID, id string) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	a.feed.Notify(ctx, ownerID)
	return nil
}

func (a *NoteAdapter) Close() {
	a.feed.Close()
}
