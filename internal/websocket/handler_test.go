package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/classdesk/internal/auth"
	"github.com/dukerupert/classdesk/internal/database"
	"github.com/dukerupert/classdesk/internal/live"
	"github.com/dukerupert/classdesk/internal/model"
	"github.com/dukerupert/classdesk/internal/store"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func setupServer(t *testing.T) (*httptest.Server, *Hub, *live.EventAdapter) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	events := live.NewEventAdapter(store.NewEventStore(db), slog.Default())
	notes := live.NewNoteAdapter(store.NewNoteStore(db), slog.Default())
	hub := NewHub(slog.Default())

	handle := HandleWebSocket(hub, events, notes, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if owner := r.URL.Query().Get("owner"); owner != "" {
			r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{Subject: owner}))
		}
		handle(w, r)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(events.Close)
	t.Cleanup(notes.Close)
	return srv, hub, events
}

func readFrame(t *testing.T, ctx context.Context, conn *ws.Conn) frame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return f
}

func TestHandleWebSocketRequiresIdentity(t *testing.T) {
	srv, _, _ := setupServer(t)
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandleWebSocketStreamsSnapshots(t *testing.T) {
	srv, hub, events := setupServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?owner=alice"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[readFrame(t, ctx, conn).Type] = true
	}
	if !seen["events_snapshot"] || !seen["notes_snapshot"] {
		t.Fatalf("initial frames = %v", seen)
	}

	start := time.Date(2026, 2, 5, 14, 0, 0, 0, time.UTC)
	if err := events.Create(ctx, &model.CalendarEvent{
		ID: "e1", OwnerID: "alice", Title: "Lesson", Start: start, Status: model.EventStatusAvailable,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	f := readFrame(t, ctx, conn)
	if f.Type != "events_snapshot" {
		t.Fatalf("type = %s, want events_snapshot", f.Type)
	}
	var got []model.CalendarEvent
	if err := json.Unmarshal(f.Data, &got); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("events = %+v", got)
	}

	deadline := time.Now().Add(time.Second)
	for hub.OwnerClientCount("alice") != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.BroadcastTo("alice", ProgressMessage("u1", "a.pdf", 1, 2))
	if f := readFrame(t, ctx, conn); f.Type != "upload_progress" {
		t.Errorf("type = %s, want upload_progress", f.Type)
	}
}
