package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"thoughtswap/pkg/interfaces"
	"thoughtswap/pkg/types"

	dbconfig "thoughtswap/pkg/database"
)

// Manager implements the Store interface over SQLite. Reads run concurrently
// against the pool; writes funnel through a single goroutine to avoid SQLite
// write contention.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents one queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db) // Retry once
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateCourse inserts a course directory entry.
func (m *Manager) CreateCourse(ctx context.Context, course *types.Course) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO courses (id, title, join_code, created_at)
			VALUES (?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			course.ID,
			course.Title,
			course.JoinCode,
			course.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert course: %w", err)
		}
		return nil
	})
}

// GetCourseByCode resolves a normalized join code to a course.
func (m *Manager) GetCourseByCode(ctx context.Context, code string) (*types.Course, error) {
	query := `
		SELECT id, title, join_code, created_at
		FROM courses
		WHERE join_code = ?
	`

	var course types.Course
	err := m.db.QueryRowContext(ctx, query, code).Scan(
		&course.ID,
		&course.Title,
		&course.JoinCode,
		&course.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to query course: %w", err)
	}

	return &course, nil
}

// ListCourses returns all courses, newest first.
func (m *Manager) ListCourses(ctx context.Context) ([]*types.Course, error) {
	query := `
		SELECT id, title, join_code, created_at
		FROM courses
		ORDER BY created_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var courses []*types.Course
	for rows.Next() {
		var course types.Course
		if err := rows.Scan(&course.ID, &course.Title, &course.JoinCode, &course.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course row: %w", err)
		}
		courses = append(courses, &course)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating course rows: %w", err)
	}

	return courses, nil
}

// CreateSession inserts a session record.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (id, course_id, status, started_at)
			VALUES (?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.CourseID,
			session.Status,
			session.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// UpdateSession persists a session's status and end time.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE sessions
			SET status = ?, ended_at = ?
			WHERE id = ?
		`
		_, err := db.ExecContext(ctx, query,
			session.Status,
			session.EndedAt,
			session.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
}

// FindActiveSession returns the active session for a course, if any.
func (m *Manager) FindActiveSession(ctx context.Context, courseID string) (*types.Session, error) {
	query := `
		SELECT id, course_id, status, started_at, ended_at
		FROM sessions
		WHERE course_id = ? AND status = 'active'
		ORDER BY started_at DESC
		LIMIT 1
	`

	return m.scanSession(m.db.QueryRowContext(ctx, query, courseID))
}

// ListActiveSessions returns all active sessions for boot-time restoration.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	query := `
		SELECT id, course_id, status, started_at, ended_at
		FROM sessions
		WHERE status = 'active'
		ORDER BY started_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		var endedAt sql.NullTime
		err := rows.Scan(&session.ID, &session.CourseID, &session.Status, &session.StartedAt, &endedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, &session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// CreatePrompt inserts a prompt with its caller-assigned monotonic ID.
func (m *Manager) CreatePrompt(ctx context.Context, prompt *types.Prompt) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO prompts (id, session_id, content, created_at)
			VALUES (?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			prompt.ID,
			prompt.SessionID,
			prompt.Content,
			prompt.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert prompt: %w", err)
		}
		return nil
	})
}

// LatestPrompt returns the most recent prompt for a session.
func (m *Manager) LatestPrompt(ctx context.Context, sessionID string) (*types.Prompt, error) {
	query := `
		SELECT id, session_id, content, created_at
		FROM prompts
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var prompt types.Prompt
	err := m.db.QueryRowContext(ctx, query, sessionID).Scan(
		&prompt.ID,
		&prompt.SessionID,
		&prompt.Content,
		&prompt.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to query latest prompt: %w", err)
	}

	return &prompt, nil
}

// MaxPromptID returns the highest prompt ID ever assigned, 0 when none.
func (m *Manager) MaxPromptID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := m.db.QueryRowContext(ctx, `SELECT MAX(id) FROM prompts`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max prompt id: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// UpsertThought stores a thought, replacing the author's earlier submission
// for the same prompt. The latest response is authoritative.
func (m *Manager) UpsertThought(ctx context.Context, thought *types.Thought) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO thoughts (id, prompt_id, author, content, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(prompt_id, author)
			DO UPDATE SET content = excluded.content, created_at = excluded.created_at
		`
		_, err := db.ExecContext(ctx, query,
			thought.ID,
			thought.PromptID,
			thought.Author,
			thought.Content,
			thought.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert thought: %w", err)
		}
		return nil
	})
}

// ListThoughts returns all thoughts for a prompt in submission order.
func (m *Manager) ListThoughts(ctx context.Context, promptID int64) ([]*types.Thought, error) {
	query := `
		SELECT id, prompt_id, author, content, created_at
		FROM thoughts
		WHERE prompt_id = ?
		ORDER BY created_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thoughts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var thoughts []*types.Thought
	for rows.Next() {
		var thought types.Thought
		err := rows.Scan(&thought.ID, &thought.PromptID, &thought.Author, &thought.Content, &thought.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thought row: %w", err)
		}
		thoughts = append(thoughts, &thought)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thought rows: %w", err)
	}

	return thoughts, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	_, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM courses LIMIT 1")
	if err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait() // Wait for write loop to finish processing

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func (m *Manager) scanSession(row *sql.Row) (*types.Session, error) {
	var session types.Session
	var endedAt sql.NullTime

	err := row.Scan(&session.ID, &session.CourseID, &session.Status, &session.StartedAt, &endedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}

	return &session, nil
}
