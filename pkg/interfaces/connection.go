package interfaces

import "thoughtswap/pkg/types"

// Connection represents one client connection. Implementations must make
// WriteJSON safe for concurrent use; everything else is read-mostly state
// set during the handshake and join.
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe).
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources.
	Close() error

	// ID returns the ephemeral connection handle, unique per process.
	ID() string

	// Role returns the declared role ("facilitator" or "participant").
	Role() string

	// Identity returns the stable identity from the auth collaborator.
	Identity() types.Identity

	// RoomCode returns the normalized code of the joined room, or "" when
	// the connection has not joined one.
	RoomCode() string

	// SetRoom records or clears room membership on the connection.
	SetRoom(code string)
}
