package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"thoughtswap/pkg/interfaces"
	"thoughtswap/pkg/types"
)

// joinCodeAlphabet omits 0/O/1/I so codes read unambiguously off a slide.
const (
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
)

// Registry is the narrow view of connection state the API exposes for
// monitoring, avoiding a hard dependency on the websocket package.
type Registry interface {
	Stats() map[string]int
}

// Server is the course-directory HTTP API: no room-lifecycle logic, only
// course management, health and JSON plumbing.
type Server struct {
	store    interfaces.Store
	registry Registry
	router   *http.ServeMux
}

// NewServer creates the API server and sets up its routes.
func NewServer(store interfaces.Store, registry Registry) *Server {
	s := &Server{
		store:    store,
		registry: registry,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/courses", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleCourses))))
	s.router.Handle("/api/courses/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleCourseByCode))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createCourse(w, r)
	case http.MethodGet:
		s.listCourses(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCourseByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/api/courses/")
	code = strings.Split(code, "/")[0]
	if code == "" {
		s.sendError(w, "Course code required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getCourse(w, r, types.NormalizeRoomCode(code))
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// CreateCourseRequest is the POST /api/courses body.
type CreateCourseRequest struct {
	Title string `json:"title"`
}

// CreateCourseResponse wraps the created course.
type CreateCourseResponse struct {
	Course *types.Course `json:"course"`
}

// ListCoursesResponse wraps the course list.
type ListCoursesResponse struct {
	Courses []*types.Course `json:"courses"`
}

func (s *Server) createCourse(w http.ResponseWriter, r *http.Request) {
	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Join codes are random; retry a few times on the rare collision with
	// an existing course before giving up.
	var course *types.Course
	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			s.sendError(w, "Failed to generate join code", http.StatusInternalServerError)
			return
		}

		candidate := &types.Course{
			ID:        uuid.New().String(),
			Title:     strings.TrimSpace(req.Title),
			JoinCode:  code,
			CreatedAt: time.Now(),
		}
		if err := candidate.Validate(); err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := s.store.CreateCourse(ctx, candidate); err != nil {
			log.Printf("Course insert failed (attempt %d): %v", attempt+1, err)
			continue
		}
		course = candidate
		break
	}

	if course == nil {
		s.sendError(w, "Failed to create course", http.StatusInternalServerError)
		return
	}

	log.Printf("Created course: id=%s code=%s title=%q", course.ID, course.JoinCode, course.Title)
	s.sendJSON(w, CreateCourseResponse{Course: course}, http.StatusCreated)
}

func (s *Server) listCourses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		log.Printf("Failed to list courses: %v", err)
		s.sendError(w, "Failed to list courses", http.StatusInternalServerError)
		return
	}

	if courses == nil {
		courses = []*types.Course{}
	}
	s.sendJSON(w, ListCoursesResponse{Courses: courses}, http.StatusOK)
}

func (s *Server) getCourse(w http.ResponseWriter, r *http.Request, code string) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	course, err := s.store.GetCourseByCode(ctx, code)
	if err != nil {
		s.sendError(w, "Course not found", http.StatusNotFound)
		return
	}

	s.sendJSON(w, CreateCourseResponse{Course: course}, http.StatusOK)
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status      string         `json:"status"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Timestamp   time.Time      `json:"timestamp"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:      "ok",
		Database:    "ok",
		Connections: s.registry.Stats(),
		Timestamp:   time.Now(),
	}

	status := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	s.sendJSON(w, resp, status)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}, status int) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, map[string]string{"error": message}, status)
}

// generateJoinCode produces a short random code over the unambiguous
// alphabet, e.g. "AB12CD" shapes.
func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	code := make([]byte, joinCodeLength)
	for i, b := range buf {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code), nil
}
