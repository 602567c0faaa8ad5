package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"thoughtswap/pkg/interfaces"
	"thoughtswap/pkg/types"
)

// Mock store for API tests.
type mockStore struct {
	mu               sync.RWMutex
	courses          map[string]*types.Course // by join code
	shouldFailHealth bool
	shouldFailInsert bool
}

func newMockStore() *mockStore {
	return &mockStore{courses: make(map[string]*types.Course)}
}

var _ interfaces.Store = (*mockStore)(nil)

func (m *mockStore) CreateCourse(ctx context.Context, course *types.Course) error {
	if m.shouldFailInsert {
		return errors.New("insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.courses[course.JoinCode]; exists {
		return errors.New("join code collision")
	}
	m.courses[course.JoinCode] = course
	return nil
}

func (m *mockStore) GetCourseByCode(ctx context.Context, code string) (*types.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	course, ok := m.courses[code]
	if !ok {
		return nil, interfaces.ErrCourseNotFound
	}
	return course, nil
}

func (m *mockStore) ListCourses(ctx context.Context) ([]*types.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var courses []*types.Course
	for _, course := range m.courses {
		courses = append(courses, course)
	}
	return courses, nil
}

func (m *mockStore) CreateSession(ctx context.Context, session *types.Session) error { return nil }
func (m *mockStore) UpdateSession(ctx context.Context, session *types.Session) error { return nil }
func (m *mockStore) FindActiveSession(ctx context.Context, courseID string) (*types.Session, error) {
	return nil, interfaces.ErrSessionNotFound
}
func (m *mockStore) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}
func (m *mockStore) CreatePrompt(ctx context.Context, prompt *types.Prompt) error { return nil }
func (m *mockStore) LatestPrompt(ctx context.Context, sessionID string) (*types.Prompt, error) {
	return nil, interfaces.ErrPromptNotFound
}
func (m *mockStore) MaxPromptID(ctx context.Context) (int64, error)            { return 0, nil }
func (m *mockStore) UpsertThought(ctx context.Context, t *types.Thought) error { return nil }
func (m *mockStore) ListThoughts(ctx context.Context, promptID int64) ([]*types.Thought, error) {
	return nil, nil
}

func (m *mockStore) HealthCheck(ctx context.Context) error {
	if m.shouldFailHealth {
		return errors.New("database unreachable")
	}
	return nil
}

func (m *mockStore) Close() error { return nil }

// mockRegistry satisfies the narrow monitoring view.
type mockRegistry struct {
	connections int
	rooms       int
}

func (m *mockRegistry) Stats() map[string]int {
	return map[string]int{
		"total_connections": m.connections,
		"active_rooms":      m.rooms,
	}
}

func newTestServer(store *mockStore) *Server {
	return NewServer(store, &mockRegistry{connections: 3, rooms: 1})
}

func TestCreateCourse(t *testing.T) {
	store := newMockStore()
	server := newTestServer(store)

	body, _ := json.Marshal(CreateCourseRequest{Title: "Philosophy 101"})
	req := httptest.NewRequest("POST", "/api/courses", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CreateCourseResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	course := resp.Course
	if course.Title != "Philosophy 101" {
		t.Errorf("Expected title to round-trip, got %q", course.Title)
	}
	if course.ID == "" {
		t.Error("Expected a generated course ID")
	}
	if len(course.JoinCode) != joinCodeLength {
		t.Errorf("Expected %d-character join code, got %q", joinCodeLength, course.JoinCode)
	}
	for _, r := range course.JoinCode {
		if !strings.ContainsRune(joinCodeAlphabet, r) {
			t.Errorf("Join code %q contains %q, outside the unambiguous alphabet", course.JoinCode, r)
		}
	}

	if _, err := store.GetCourseByCode(context.Background(), course.JoinCode); err != nil {
		t.Errorf("Course not persisted: %v", err)
	}
}

func TestCreateCourse_RejectsBadInput(t *testing.T) {
	server := newTestServer(newMockStore())

	req := httptest.NewRequest("POST", "/api/courses", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rec.Code)
	}

	body, _ := json.Marshal(CreateCourseRequest{Title: "   "})
	req = httptest.NewRequest("POST", "/api/courses", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank title, got %d", rec.Code)
	}
}

func TestCreateCourse_StoreFailure(t *testing.T) {
	store := newMockStore()
	store.shouldFailInsert = true
	server := newTestServer(store)

	body, _ := json.Marshal(CreateCourseRequest{Title: "Doomed"})
	req := httptest.NewRequest("POST", "/api/courses", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 when every insert attempt fails, got %d", rec.Code)
	}
}

func TestListCourses(t *testing.T) {
	store := newMockStore()
	server := newTestServer(store)

	// Empty list serializes as [], not null.
	req := httptest.NewRequest("GET", "/api/courses", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"courses":[]`) {
		t.Errorf("Expected empty array, got %s", rec.Body.String())
	}

	store.courses["PHIL42"] = &types.Course{
		ID: "course1", Title: "Philosophy 101", JoinCode: "PHIL42", CreatedAt: time.Now(),
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/courses", nil))

	var resp ListCoursesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Courses) != 1 || resp.Courses[0].JoinCode != "PHIL42" {
		t.Errorf("Unexpected course list: %+v", resp.Courses)
	}
}

func TestGetCourse(t *testing.T) {
	store := newMockStore()
	store.courses["PHIL42"] = &types.Course{
		ID: "course1", Title: "Philosophy 101", JoinCode: "PHIL42", CreatedAt: time.Now(),
	}
	server := newTestServer(store)

	// Lookup normalizes the code from the path.
	req := httptest.NewRequest("GET", "/api/courses/phil42", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp CreateCourseResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Course.Title != "Philosophy 101" {
		t.Errorf("Unexpected course: %+v", resp.Course)
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/courses/NOPE99", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown code, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(newMockStore())

	req := httptest.NewRequest("DELETE", "/api/courses", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	store := newMockStore()
	server := newTestServer(store)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Database != "ok" {
		t.Errorf("Expected healthy response, got %+v", resp)
	}
	if resp.Connections["total_connections"] != 3 {
		t.Errorf("Expected registry stats in response, got %v", resp.Connections)
	}
}

func TestHealthCheck_Degraded(t *testing.T) {
	store := newMockStore()
	store.shouldFailHealth = true
	server := newTestServer(store)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Expected degraded status, got %s", resp.Status)
	}
}

func TestCORSHeaders(t *testing.T) {
	server := newTestServer(newMockStore())

	req := httptest.NewRequest("OPTIONS", "/api/courses", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS origin header")
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Error("Expected JSON content type")
	}
}

func TestGenerateJoinCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateJoinCode()
		if err != nil {
			t.Fatalf("generateJoinCode failed: %v", err)
		}
		if len(code) != joinCodeLength {
			t.Fatalf("Expected %d characters, got %q", joinCodeLength, code)
		}
		if !types.IsValidRoomCode(code) {
			t.Errorf("Generated code %q fails room code validation", code)
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Errorf("Expected near-unique codes, got %d distinct of 100", len(seen))
	}
}
