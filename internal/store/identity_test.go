package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/classdesk/internal/model"
)

func TestIdentityCreateAndLookup(t *testing.T) {
	s := NewIdentityStore(openTestDB(t))
	ctx := context.Background()

	id, token, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id.Subject == "" || token == "" {
		t.Fatal("subject and token should be set")
	}
	if id.TokenHash == token {
		t.Error("token should not be stored in the clear")
	}

	got, err := s.GetByToken(ctx, token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Subject != id.Subject {
		t.Fatalf("got %+v, want subject %q", got, id.Subject)
	}

	again, _ := s.GetByToken(ctx, token)
	if again.Subject != id.Subject {
		t.Error("lookup should be stable")
	}

	missing, err := s.GetByToken(ctx, "not-a-token")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("hash should be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("different tokens should hash differently")
	}
	if len(HashToken("abc")) != 64 {
		t.Errorf("hash length = %d, want 64", len(HashToken("abc")))
	}
}

func TestIdentityDeleteStale(t *testing.T) {
	db := openTestDB(t)
	s := NewIdentityStore(db)
	events := NewEventStore(db)
	ctx := context.Background()

	idle, _, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	owner, _, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e := model.CalendarEvent{ID: "e1", OwnerID: owner.Subject, Title: "Kept", Start: time.Now()}
	if err := events.Create(ctx, &e); err != nil {
		t.Fatalf("create event: %v", err)
	}

	n, err := s.DeleteStale(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete stale: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM identities WHERE subject = ?`, idle.Subject).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Error("idle identity should be deleted")
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM identities WHERE subject = ?`, owner.Subject).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Error("identity owning events should be kept")
	}
}
