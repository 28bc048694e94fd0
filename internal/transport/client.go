// Package transport manages live WebSocket connections and per-document
// broadcast, with bounded-channel backpressure instead of the
// fire-and-forget goroutine-per-send the teacher used. Grounded on
// teacher internal/ws/hub.go and internal/ws/client.go.
package transport

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/arashov/collabedit/internal/wire"
)

// outboundBufferSize bounds how many pending envelopes a client's writer
// goroutine will queue before the client is considered too slow.
const outboundBufferSize = 256

// ErrClientClosed names the condition of a client whose connection has
// been torn down. No function in this package returns it: TrySend reports
// a closed client by returning false.
var ErrClientClosed = errors.New("transport: client closed")

// Conn abstracts the subset of *websocket.Conn this package needs, for
// testability (matches teacher internal/ws.Conn: a WriteJSON/ReadJSON pair
// plus Close). Client only ever calls WriteJSON from its one writer
// goroutine, since gorilla/websocket requires a single writer per
// connection.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// gorillaConn adapts *websocket.Conn to Conn.
type gorillaConn struct {
	*websocket.Conn
}

// NewGorillaConn wraps an upgraded gorilla/websocket connection.
func NewGorillaConn(c *websocket.Conn) Conn {
	return gorillaConn{c}
}

// Client is one connected WebSocket session's transport handle. Every
// outbound envelope is queued on a bounded channel and drained by a single
// writer goroutine, so concurrent dispatcher broadcasts never race on the
// underlying connection and never block the dispatcher.
type Client struct {
	ID        string
	SessionID string

	conn Conn

	mu       sync.Mutex
	docID    string
	closed   bool
	outbound chan wire.Envelope
	done     chan struct{}
}

// NewClient creates a client wrapper and starts its writer goroutine.
func NewClient(id, sessionID string, conn Conn) *Client {
	c := &Client{
		ID:        id,
		SessionID: sessionID,
		conn:      conn,
		outbound:  make(chan wire.Envelope, outboundBufferSize),
		done:      make(chan struct{}),
	}

	go c.writeLoop()

	return c
}

func (c *Client) writeLoop() {
	for {
		select {
		case env, ok := <-c.outbound:
			if !ok {
				return
			}

			_ = c.conn.WriteJSON(env)
		case <-c.done:
			return
		}
	}
}

// TrySend enqueues env for delivery without blocking. It reports false if
// the client's outbound buffer is full (the caller decides the
// backpressure policy — disconnect for edit traffic, drop for presence)
// or the client is already closed.
func (c *Client) TrySend(env wire.Envelope) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return false
	}

	select {
	case c.outbound <- env:
		return true
	default:
		return false
	}
}

// Receive reads one envelope from the connection. It blocks on network
// I/O and must only be called from the connection's dedicated read
// goroutine.
func (c *Client) Receive() (wire.Envelope, error) {
	var env wire.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return wire.Envelope{}, err
	}

	return env, nil
}

// Close stops the writer goroutine and closes the underlying connection.
// Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	c.mu.Unlock()

	close(c.done)

	return c.conn.Close()
}

// DocID returns the document the client is currently subscribed to, or ""
// if none.
func (c *Client) DocID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.docID
}

// SetDocID records the document the client is currently subscribed to.
func (c *Client) SetDocID(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docID = docID
}
