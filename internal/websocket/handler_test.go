package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"thoughtswap/pkg/types"
)

// mockSink captures commands the read pump forwards.
type mockSink struct {
	mu          sync.Mutex
	commands    []*types.Command
	disconnects int
	rejectAll   bool
}

func (s *mockSink) SubmitCommand(conn *Connection, cmd *types.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectAll {
		return ErrNotRegistered
	}
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *mockSink) Disconnect(conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return nil
}

func (s *mockSink) commandCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

func startHandlerServer(t *testing.T, sink CommandSink) (*httptest.Server, *Registry) {
	t.Helper()
	registry := NewRegistry()
	handler := NewHandler(registry, sink)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	return server, registry
}

func TestHandler_RejectsInvalidRole(t *testing.T) {
	testCases := []struct {
		name  string
		query string
	}{
		{"missing role", "?name=Alice&email=alice@test.edu"},
		{"unknown role", "?role=admin&name=Alice&email=alice@test.edu"},
		{"teacher-style role", "?role=instructor&name=Alice&email=alice@test.edu"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &mockSink{}
			registry := NewRegistry()
			handler := NewHandler(registry, sink)

			req := httptest.NewRequest("GET", "/ws"+tc.query, nil)
			rec := httptest.NewRecorder()
			handler.HandleWebSocket(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandler_ForwardsCommands(t *testing.T) {
	sink := &mockSink{}
	server, registry := startHandlerServer(t, sink)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?role=participant&name=Alice&email=alice@test.edu"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	cmd := types.Command{Type: types.CommandJoin, Code: "ROOM1"}
	if err := client.WriteJSON(cmd); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.commandCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.commands) != 1 {
		t.Fatalf("Expected 1 forwarded command, got %d", len(sink.commands))
	}
	if sink.commands[0].Type != types.CommandJoin || sink.commands[0].Code != "ROOM1" {
		t.Errorf("Command mangled in transit: %+v", sink.commands[0])
	}

	if stats := registry.Stats(); stats["total_connections"] != 1 {
		t.Errorf("Expected 1 registered connection, got %d", stats["total_connections"])
	}
}

func TestHandler_MalformedCommandGetsErrorEvent(t *testing.T) {
	sink := &mockSink{}
	server, _ := startHandlerServer(t, sink)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?role=participant&name=Alice&email=alice@test.edu"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	var event types.Event
	if err := client.ReadJSON(&event); err != nil {
		t.Fatalf("Expected an error event, read failed: %v", err)
	}

	if event.Type != types.EventError {
		t.Errorf("Expected error event, got %s", event.Type)
	}
	if event.Payload["code"] != types.ErrorCodeInvalidInput {
		t.Errorf("Expected invalid_input code, got %v", event.Payload["code"])
	}
	if sink.commandCount() != 0 {
		t.Error("Malformed command must not reach the sink")
	}
}

func TestHandler_DisconnectReachesSink(t *testing.T) {
	sink := &mockSink{}
	server, _ := startHandlerServer(t, sink)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?role=participant&name=Alice&email=alice@test.edu"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		n := sink.disconnects
		sink.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Disconnect never reached the sink")
}

// A connection with a missing identity still upgrades; it simply stays
// unregistered and its join attempts fail later.
func TestHandler_MissingIdentityStaysUnregistered(t *testing.T) {
	sink := &mockSink{}
	server, registry := startHandlerServer(t, sink)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?role=participant"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	time.Sleep(50 * time.Millisecond)
	if stats := registry.Stats(); stats["total_connections"] != 0 {
		t.Errorf("Expected 0 registered connections, got %d", stats["total_connections"])
	}
}
