package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a simple WebSocket test client for integration testing.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials the given ws:// URL and returns a test client.
//
// Precondition: url must point at a listening WebSocket endpoint.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// ReadUntilType reads JSON messages until one with the given type field
// arrives or the timeout elapses. It returns that message decoded into
// a map.
//
// Precondition: typ must be non-empty.
// Postcondition: Returns the first matching message, or fails on
// timeout or a read error.
func (c *WSClient) ReadUntilType(typ string, timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	var seen []string
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("reading until type %q: saw %v, error: %v", typ, seen, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.t.Fatalf("decoding message %q: %v", raw, err)
		}
		got, _ := msg["type"].(string)
		if got == typ {
			return msg
		}
		seen = append(seen, got)
	}
}

// Send writes v as a JSON text message.
//
// Postcondition: v is written to the connection, or the test fails.
func (c *WSClient) Send(v any) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("sending %v: %v", v, err)
	}
}

// SendCommand writes a {type, card_id} match command.
func (c *WSClient) SendCommand(typ string, cardID int64) {
	c.t.Helper()
	c.Send(map[string]any{"type": typ, "card_id": cardID})
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}

// WSURL converts an http(s) test server URL and path into ws form.
func WSURL(httpURL, path string) string {
	return fmt.Sprintf("ws%s%s", httpURL[len("http"):], path)
}
