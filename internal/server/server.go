package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/classdesk/internal/auth"
	"github.com/dukerupert/classdesk/internal/blob"
	"github.com/dukerupert/classdesk/internal/calendar"
	"github.com/dukerupert/classdesk/internal/config"
	"github.com/dukerupert/classdesk/internal/handler"
	"github.com/dukerupert/classdesk/internal/live"
	"github.com/dukerupert/classdesk/internal/middleware"
	"github.com/dukerupert/classdesk/internal/notes"
	"github.com/dukerupert/classdesk/internal/store"
	ws "github.com/dukerupert/classdesk/internal/websocket"
)

const (
	writeLimit  = 60
	uploadLimit = 20
	limitWindow = time.Minute

	// calendarIdle is how long an owner's calendar service stays open
	// without requests.
	calendarIdle = 30 * time.Minute
)

type Server struct {
	db             *sql.DB
	cfg            *config.Config
	hub            *ws.Hub
	events         *live.EventAdapter
	notes          *live.NoteAdapter
	calendars      *calendar.Manager
	identityStore  *store.IdentityStore
	rateLimiter    *middleware.RateLimiter
	calendarEventH *handler.CalendarEventHandler
	noteH          *handler.NoteHandler
	healthH        *handler.HealthHandler
	logger         *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, blobs *blob.Store, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	eventAdapter := live.NewEventAdapter(store.NewEventStore(db), logger.With("component", "event_feed"))
	noteAdapter := live.NewNoteAdapter(store.NewNoteStore(db), logger.With("component", "note_feed"))
	calendars := calendar.NewManager(eventAdapter, logger.With("component", "calendar"))
	noteSvc := notes.NewService(noteAdapter, blobs, logger)

	return &Server{
		db:             db,
		cfg:            cfg,
		hub:            hub,
		events:         eventAdapter,
		notes:          noteAdapter,
		calendars:      calendars,
		identityStore:  store.NewIdentityStore(db),
		rateLimiter:    middleware.NewRateLimiter(),
		calendarEventH: handler.NewCalendarEventHandler(calendars, cfg.Location(), logger),
		noteH:          handler.NewNoteHandler(noteSvc, hub, logger),
		healthH:        handler.NewHealthHandler(blobs.Enabled),
		logger:         logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// IdentityStore returns the identity store for cleanup tasks.
func (s *Server) IdentityStore() *store.IdentityStore {
	return s.identityStore
}

// Hub returns the live connection hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Close ends every calendar service and live subscription. Open WebSocket
// connections see their feeds close.
func (s *Server) Close() {
	s.calendars.CloseAll()
	s.events.Close()
	s.notes.Close()
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthH.Health)

	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)

	identity := middleware.EnsureIdentity(s.identityStore, s.logger.With("component", "identity"), middleware.IdentityOptions{
		Secure:  s.cfg.SecureCookies,
		Limiter: s.rateLimiter,
	})
	outerMux.Handle("/", identity(apiMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

// limited rate-limits h per caller subject.
func (s *Server) limited(scope string, limit int, h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		subject := auth.SubjectID(r.Context())
		if subject == "" {
			return ""
		}
		return scope + ":" + subject
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, limit, limitWindow)(h)
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Calendar
	mux.HandleFunc("GET /api/events", s.calendarEventH.List)
	mux.Handle("POST /api/events", s.limited("write", writeLimit, s.calendarEventH.Create))
	mux.Handle("PUT /api/events/{id}", s.limited("write", writeLimit, s.calendarEventH.Update))
	mux.Handle("DELETE /api/events/{id}", s.limited("write", writeLimit, s.calendarEventH.Delete))
	mux.Handle("POST /api/events/{id}/book", s.limited("write", writeLimit, s.calendarEventH.Book))
	mux.Handle("POST /api/events/{id}/action", s.limited("write", writeLimit, s.calendarEventH.Action))
	mux.Handle("POST /api/slots", s.limited("write", writeLimit, s.calendarEventH.GenerateSlots))
	mux.HandleFunc("GET /api/calendar.ics", s.calendarEventH.Export)

	// Notes
	mux.HandleFunc("GET /api/notes", s.noteH.List)
	mux.Handle("POST /api/notes", s.limited("upload", uploadLimit, s.noteH.Create))
	mux.Handle("PUT /api/notes/{id}", s.limited("write", writeLimit, s.noteH.Update))
	mux.Handle("DELETE /api/notes/{id}", s.limited("write", writeLimit, s.noteH.Delete))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.events, s.notes, s.cfg.AllowedOrigins))
}

// Housekeep drops expired rate-limit windows, closes idle calendar services,
// and deletes identities that have gone unused for the retention period and
// own nothing.
func (s *Server) Housekeep(ctx context.Context) {
	remaining := s.rateLimiter.Cleanup()
	evicted := s.calendars.EvictIdle(calendarIdle)
	deleted, err := s.identityStore.DeleteStale(ctx, time.Now().Add(-s.cfg.IdentityRetention))
	if err != nil {
		s.logger.Error("housekeeping", "error", err)
		return
	}
	s.logger.Info("housekeeping", "rate_limit_keys", remaining, "calendars_closed", evicted, "identities_deleted", deleted)
}
