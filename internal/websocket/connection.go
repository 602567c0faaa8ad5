package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"thoughtswap/pkg/types"
)

// Connection wraps a WebSocket with a single writer goroutine so concurrent
// event fan-out never races on the underlying socket. The handle ID is
// ephemeral; the identity is the durable key for authored content.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte // buffered so room broadcasts don't block on one slow client
	id        string
	role      string
	identity  types.Identity
	roomCode  string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex // protects roomCode
}

// NewConnection creates a connection wrapper with handshake credentials and
// starts its writer goroutine.
func NewConnection(conn *websocket.Conn, role string, identity types.Identity) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:     conn,
		writeCh:  make(chan []byte, 100),
		id:       uuid.New().String(),
		role:     role,
		identity: identity,
		ctx:      ctx,
		cancel:   cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	// The channel is never closed; cancelling the context is what stops
	// WriteJSON callers once the writer is gone. A close here would turn a
	// routine peer disconnect into a send-on-closed-channel panic for the
	// next fan-out.
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it for delivery. Safe for concurrent use.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		// The buffered send can win the race against cancellation; re-check
		// so a write after the writer exited reports closed instead of
		// silently queueing into a dead channel.
		if c.ctx.Err() != nil {
			return ErrConnectionClosed
		}
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts down the writer goroutine and the socket. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// ID returns the ephemeral connection handle.
func (c *Connection) ID() string {
	return c.id
}

// Role returns the declared role from the handshake.
func (c *Connection) Role() string {
	return c.role
}

// Identity returns the stable identity from the handshake.
func (c *Connection) Identity() types.Identity {
	return c.identity
}

// RoomCode returns the joined room's code, or "" when not in a room.
func (c *Connection) RoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

// SetRoom records or clears room membership on the connection.
func (c *Connection) SetRoom(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = code
}
