// Package session provides session token tracking and the outbound
// event channel bridging the game core to a live connection.
package session

import (
	"fmt"
	"sync"

	"github.com/crsh/server/internal/game/event"
)

// Conn buffers outbound events for one connected player. The gateway's
// write goroutine drains Events() and forwards each message to the
// socket.
type Conn struct {
	mu     sync.Mutex
	events chan event.Event
	closed bool
}

// NewConn creates a Conn with the given event buffer size.
//
// Postcondition: Returns a Conn with an open events channel.
func NewConn(bufferSize int) *Conn {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Conn{
		events: make(chan event.Event, bufferSize),
	}
}

// Push enqueues an event for delivery.
//
// Postcondition: The event is enqueued, or an error if the connection
// is closed or its buffer is full. Senders treat failures as a slow or
// dead client and drop the event.
func (c *Conn) Push(e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}
	select {
	case c.events <- e:
		return nil
	default:
		return fmt.Errorf("connection event buffer full")
	}
}

// Events returns the read-only events channel.
func (c *Conn) Events() <-chan event.Event {
	return c.events
}

// Close marks the connection closed and closes the events channel.
// Close is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
