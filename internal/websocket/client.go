package websocket

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/taskpay/internal/model"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Watcher produces a live feed of a child's tasks.
type Watcher interface {
	Watch(ctx context.Context, childID string) iter.Seq2[[]model.Task, error]
}

// Client represents a single WebSocket connection following one child.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	childID string
	send    chan []byte
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn, childID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		childID: childID,
		send:    make(chan []byte, sendBufferSize),
	}
}

// Run registers the client and streams task snapshots from w until the
// connection closes or the feed fails. It returns the feed error, if any.
func (c *Client) Run(ctx context.Context, w Watcher) error {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.writePump(ctx)
		cancel()
	}()
	go func() {
		c.readPump(ctx)
		cancel()
	}()

	for tasks, err := range w.Watch(ctx, c.childID) {
		if err != nil {
			c.enqueue(ctx, Message{Type: TypeError, ChildID: c.childID, Data: "task feed failed"})
			return err
		}
		if !c.enqueue(ctx, SnapshotMessage(c.childID, tasks)) {
			return nil
		}
	}
	return nil
}

// enqueue blocks until the message is queued or ctx is done. Snapshots are
// never dropped; the feed coalesces changes while the client catches up.
func (c *Client) enqueue(ctx context.Context, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-ctx.Done():
		return false
	}
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
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
