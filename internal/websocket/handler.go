package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"thoughtswap/pkg/types"
)

// WebSocket upgrader. Origins are left open; the deployment sits behind the
// course platform's own origin policy.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// CommandSink receives parsed commands and disconnect notices. The hub
// implements it; the handler never touches room state directly.
type CommandSink interface {
	SubmitCommand(conn *Connection, cmd *types.Command) error
	Disconnect(conn *Connection) error
}

// Handler upgrades HTTP requests to WebSocket connections and pumps inbound
// commands into the sink.
type Handler struct {
	registry *Registry
	sink     CommandSink
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, sink CommandSink) *Handler {
	return &Handler{
		registry: registry,
		sink:     sink,
	}
}

// HandleWebSocket handles WebSocket connection requests. The identity and
// role arrive as query parameters from the auth layer and are trusted as
// given; the core never re-verifies role claims.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	identity := types.Identity{
		Name:  r.URL.Query().Get("name"),
		Email: r.URL.Query().Get("email"),
	}

	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'participant' or 'facilitator'", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, role, identity)

	// Registration is tolerant of a missing identity: the socket stays open
	// for the client but join commands will be rejected.
	h.registry.Register(wsConn)
	log.Printf("Connection established: id=%s role=%s name=%s", wsConn.ID(), role, identity.Name)

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat for one connection.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if err := h.sink.Disconnect(conn); err != nil {
			// Hub already stopped; fall back to direct cleanup.
			h.registry.Unregister(conn)
		}
		_ = conn.Close()
	}()

	// 60-second read deadline with 30-second pings keeps half-dead
	// classroom connections from lingering in rosters.
	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var cmd types.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Printf("Malformed command from %s: %v", conn.ID(), err)
			_ = conn.WriteJSON(types.NewErrorEvent(types.ErrorCodeInvalidInput, "malformed command"))
			continue
		}

		if err := h.sink.SubmitCommand(conn, &cmd); err != nil {
			log.Printf("Command from %s not accepted: %v", conn.ID(), err)
			_ = conn.WriteJSON(types.NewErrorEvent(types.ErrorCodeInvalidInput, "server busy, retry"))
		}
	}
}
