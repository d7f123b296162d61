package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/classdesk/internal/live"
	"github.com/dukerupert/classdesk/internal/model"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// EventFeed supplies an owner's calendar snapshots.
type EventFeed interface {
	Subscribe(ctx context.Context, ownerID string) (*live.Subscription[[]model.CalendarEvent], error)
}

// NoteFeed supplies an owner's note snapshots.
type NoteFeed interface {
	Subscribe(ctx context.Context, ownerID string) (*live.Subscription[[]model.Note], error)
}

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	owner  string
	send   chan []byte
	logger *slog.Logger
}

// NewClient creates a Client for owner tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn, owner string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		owner:  owner,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger.With("owner", owner),
	}
}

// Run registers the client, subscribes it to the owner's feeds, starts the
// write pump, and runs the read pump. It blocks until the connection is
// closed, then unregisters.
func (c *Client) Run(ctx context.Context, events EventFeed, notes NoteFeed) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventSub, err := events.Subscribe(ctx, c.owner)
	if err != nil {
		c.logger.Error("subscribe events", "error", err)
		c.conn.Close(ws.StatusInternalError, "subscribe failed")
		return
	}
	defer eventSub.Close()

	noteSub, err := notes.Subscribe(ctx, c.owner)
	if err != nil {
		c.logger.Error("subscribe notes", "error", err)
		c.conn.Close(ws.StatusInternalError, "subscribe failed")
		return
	}
	defer noteSub.Close()

	c.hub.Register(c)

	// Forwarders must stop before Unregister closes the send channel.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		forward(ctx, c, eventSub, "events")
	}()
	go func() {
		defer wg.Done()
		forward(ctx, c, noteSub, "notes")
	}()
	go c.writePump(ctx)
	c.readPump(ctx)

	cancel()
	wg.Wait()
	c.hub.Unregister(c)
}

// forward turns each snapshot from sub into an <entity>_snapshot frame.
// It waits for buffer space rather than dropping: the feed already keeps
// only the newest snapshot, so the last state always reaches the browser.
func forward[T any](ctx context.Context, c *Client, sub *live.Subscription[T], entity string) {
	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(NewMessage(entity, "snapshot", "", snap))
			if err != nil {
				c.logger.Error("marshal snapshot", "entity", entity, "error", err)
				continue
			}
			select {
			case c.send <- data:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.CloseNow()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, ws.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
