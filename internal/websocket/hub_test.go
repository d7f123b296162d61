package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, owner string) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		owner:  owner,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "alice")
	c2 := mockClient(hub, "alice")
	c3 := mockClient(hub, "bob")

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if got := hub.ClientCount(); got != 3 {
		t.Fatalf("expected 3 clients, got %d", got)
	}
	if got := hub.OwnerClientCount("alice"); got != 2 {
		t.Fatalf("expected 2 clients for alice, got %d", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c3)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	if got := hub.OwnerClientCount("bob"); got != 0 {
		t.Fatalf("expected 0 clients for bob, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "alice")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastToOwnerOnly(t *testing.T) {
	hub := NewHub(slog.Default())

	mine := mockClient(hub, "alice")
	other := mockClient(hub, "bob")
	hub.Register(mine)
	hub.Register(other)
	defer hub.Unregister(mine)
	defer hub.Unregister(other)

	hub.BroadcastTo("alice", ProgressMessage("up-1", "quiz.pdf", 50, 200))

	select {
	case data := <-mine.send:
		var got struct {
			Type string         `json:"type"`
			ID   string         `json:"id"`
			Data UploadProgress `json:"data"`
		}
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "upload_progress" {
			t.Errorf("expected type upload_progress, got %s", got.Type)
		}
		if got.ID != "up-1" {
			t.Errorf("expected id up-1, got %s", got.ID)
		}
		if got.Data.Percent != 25 || got.Data.Sent != 50 || got.Data.Total != 200 {
			t.Errorf("progress = %+v", got.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}

	select {
	case <-other.send:
		t.Error("other owner should not receive the message")
	default:
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.BroadcastTo("nobody", NewMessage("upload", "progress", "x", nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "alice")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.BroadcastTo("alice", ProgressMessage("fill", "f", int64(i), 100))
	}

	// This should drop the message, not panic or block
	hub.BroadcastTo("alice", ProgressMessage("dropped", "f", 999, 100))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("events", "snapshot", "", []int{1})
	if msg.Type != "events_snapshot" {
		t.Errorf("expected type events_snapshot, got %s", msg.Type)
	}
	if msg.Entity != "events" {
		t.Errorf("expected entity events, got %s", msg.Entity)
	}
	if msg.Action != "snapshot" {
		t.Errorf("expected action snapshot, got %s", msg.Action)
	}
}

func TestProgressMessageZeroTotal(t *testing.T) {
	msg := ProgressMessage("u", "f", 10, 0)
	if p := msg.Data.(UploadProgress); p.Percent != 0 {
		t.Errorf("percent = %v, want 0", p.Percent)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "alice")
			hub.Register(c)
			hub.BroadcastTo("alice", NewMessage("test", "concurrent", "", nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
