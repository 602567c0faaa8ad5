package database

import (
	"database/sql"
	"fmt"
)

// Migration is one schema change. Migrations live in code so a fresh binary
// bootstraps its own schema without a migrations directory on disk.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are applied in slice order; versions are recorded in
// schema_migrations so reapplication is a no-op.
var migrations = []Migration{
	{
		Version:     "001_courses",
		Description: "course directory keyed by join code",
		SQL: `
			CREATE TABLE IF NOT EXISTS courses (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				join_code TEXT NOT NULL UNIQUE,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_courses_join_code ON courses(join_code);
		`,
	},
	{
		Version:     "002_sessions",
		Description: "classroom exercise sessions",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				course_id TEXT NOT NULL REFERENCES courses(id),
				status TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				ended_at DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_course_status ON sessions(course_id, status);
			CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
		`,
	},
	{
		Version:     "003_prompts",
		Description: "prompts with monotonic caller-assigned IDs",
		SQL: `
			CREATE TABLE IF NOT EXISTS prompts (
				id INTEGER PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_prompts_session ON prompts(session_id, id);
		`,
	},
	{
		Version:     "004_thoughts",
		Description: "thoughts, one row per (prompt, author)",
		SQL: `
			CREATE TABLE IF NOT EXISTS thoughts (
				id TEXT PRIMARY KEY,
				prompt_id INTEGER NOT NULL REFERENCES prompts(id),
				author TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				UNIQUE(prompt_id, author)
			);
			CREATE INDEX IF NOT EXISTS idx_thoughts_prompt ON thoughts(prompt_id);
		`,
	},
}

// MigrationManager applies and tracks schema migrations.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for a database handle.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in order. Each migration
// runs in its own transaction together with its version record.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}
