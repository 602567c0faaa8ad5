package websocket

import (
	"log"
	"sort"
	"sync"
	"time"

	"thoughtswap/pkg/types"
)

// Member is one participant's membership record in a room.
type Member struct {
	Conn     *Connection
	JoinedAt time.Time
	seq      uint64
}

// roomState holds the live membership of one room code.
type roomState struct {
	facilitator  *Connection
	participants map[string]*Member // connection ID -> member
}

// Registry is the room registry: it exclusively owns room membership for
// the lifetime of each connection. Command processing runs on the hub's
// single goroutine, but the HTTP API reads stats concurrently, so access
// stays mutex-guarded.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connection ID -> registered connection
	rooms       map[string]*roomState  // normalized code -> room
	joinSeq     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]*roomState),
	}
}

// Register records a connection's declared role and identity. A connection
// whose identity is missing is logged and left unregistered; it can hold a
// socket open but never join a room.
func (r *Registry) Register(conn *Connection) {
	if conn == nil {
		return
	}

	if err := conn.Identity().Validate(); err != nil {
		log.Printf("Connection %s has no usable identity, leaving unregistered: %v", conn.ID(), err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
}

// IsRegistered reports whether a connection completed registration.
func (r *Registry) IsRegistered(conn *Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[conn.ID()]
	return ok
}

// JoinRoom adds a registered connection to a room's membership set. The code
// must already be normalized and resolved against the course directory by
// the caller. A joining facilitator replaces any prior facilitator-of-record
// for the room; the stale handle stays connected but loses the role.
func (r *Registry) JoinRoom(conn *Connection, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.ID()]; !ok {
		return ErrNotRegistered
	}

	// A connection is a member of at most one room at a time.
	if prior := conn.RoomCode(); prior != "" && prior != code {
		r.removeLocked(conn, prior)
	}

	room := r.rooms[code]
	if room == nil {
		room = &roomState{participants: make(map[string]*Member)}
		r.rooms[code] = room
	}

	if conn.Role() == types.RoleFacilitator {
		room.facilitator = conn
	} else {
		r.joinSeq++
		room.participants[conn.ID()] = &Member{
			Conn:     conn,
			JoinedAt: time.Now(),
			seq:      r.joinSeq,
		}
	}

	conn.SetRoom(code)
	return nil
}

// LeaveRoom removes a connection from whatever room it is in. A leaving
// facilitator does not reset the session; the room persists until an
// explicit end.
func (r *Registry) LeaveRoom(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := conn.RoomCode()
	if code == "" {
		return
	}
	r.removeLocked(conn, code)
	conn.SetRoom("")
}

// Unregister removes a connection from its room and from the registry.
// Idempotent; safe to call for connections that never registered.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if code := conn.RoomCode(); code != "" {
		r.removeLocked(conn, code)
		conn.SetRoom("")
	}
	delete(r.connections, conn.ID())
}

// Participants returns a room's non-facilitator members in join order.
func (r *Registry) Participants(code string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[code]
	if room == nil {
		return nil
	}

	members := make([]Member, 0, len(room.participants))
	for _, m := range room.participants {
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })
	return members
}

// Facilitator returns the room's facilitator-of-record, if connected.
func (r *Registry) Facilitator(code string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[code]
	if room == nil || room.facilitator == nil {
		return nil, false
	}
	return room.facilitator, true
}

// RoomConnections returns every connection in a room, facilitator included.
func (r *Registry) RoomConnections(code string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[code]
	if room == nil {
		return nil
	}

	conns := make([]*Connection, 0, len(room.participants)+1)
	if room.facilitator != nil {
		conns = append(conns, room.facilitator)
	}
	for _, m := range room.participants {
		conns = append(conns, m.Conn)
	}
	return conns
}

// ClearRoom drops all membership records for a room and returns the
// connections that were members. Used by end-session teardown.
func (r *Registry) ClearRoom(code string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[code]
	if room == nil {
		return nil
	}

	var cleared []*Connection
	if room.facilitator != nil {
		room.facilitator.SetRoom("")
		cleared = append(cleared, room.facilitator)
	}
	for _, m := range room.participants {
		m.Conn.SetRoom("")
		cleared = append(cleared, m.Conn)
	}
	delete(r.rooms, code)
	return cleared
}

// Stats returns registry counts for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_rooms":      len(r.rooms),
	}
}

// removeLocked drops a connection's membership record. Caller holds r.mu.
// Empty rooms are deleted so dead codes do not accumulate.
func (r *Registry) removeLocked(conn *Connection, code string) {
	room := r.rooms[code]
	if room == nil {
		return
	}

	if room.facilitator == conn {
		room.facilitator = nil
	}
	delete(room.participants, conn.ID())

	if room.facilitator == nil && len(room.participants) == 0 {
		delete(r.rooms, code)
	}
}
