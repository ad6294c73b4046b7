package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const migrationScript = `
CREATE TABLE IF NOT EXISTS lab_sessions (
	id TEXT PRIMARY KEY,
	lab_key TEXT NOT NULL,
	student_id TEXT NOT NULL,
	db_path TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_lab_sessions_active
	ON lab_sessions (lab_key, student_id, is_active);

CREATE TABLE IF NOT EXISTS lab_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	lab_key TEXT NOT NULL,
	query TEXT NOT NULL,
	success INTEGER NOT NULL,
	error_message TEXT,
	execution_time_ms REAL NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lab_attempts_session
	ON lab_attempts (session_id);

CREATE TABLE IF NOT EXISTS question_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id TEXT NOT NULL,
	question_key TEXT NOT NULL,
	query TEXT NOT NULL,
	success INTEGER NOT NULL,
	correct INTEGER NOT NULL,
	error_message TEXT,
	execution_time_ms REAL NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_question_attempts_owner
	ON question_attempts (student_id, question_key);
`

// SQLiteStore implements SessionStore and AttemptStore on a SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the metadata database and
// applies the migration script.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
	}

	if _, err := db.Exec(migrationScript); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lab_sessions (id, lab_key, student_id, db_path, is_active, started_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		session.ID, session.LabKey, session.StudentID, session.DBPath, session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	session.Active = true
	return nil
}

func (s *SQLiteStore) ActiveSession(ctx context.Context, labKey, studentID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lab_key, student_id, db_path, is_active, started_at, ended_at
		 FROM lab_sessions
		 WHERE lab_key = ? AND student_id = ? AND is_active = 1`,
		labKey, studentID,
	)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) ActiveSessionsForLab(ctx context.Context, labKey string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lab_key, student_id, db_path, is_active, started_at, ended_at
		 FROM lab_sessions
		 WHERE lab_key = ? AND is_active = 1`,
		labKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) ActiveSessionPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT db_path FROM lab_sessions WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query session paths: %w", err)
	}
	defer rows.Close()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan session path: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session paths: %w", err)
	}
	return paths, nil
}

func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE lab_sessions SET is_active = 0, ended_at = ? WHERE id = ?`,
		endedAt, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

func (s *SQLiteStore) RecordLabAttempt(ctx context.Context, attempt *LabAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lab_attempts (session_id, lab_key, query, success, error_message, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.SessionID, attempt.LabKey, attempt.Query, attempt.Success,
		attempt.ErrorMessage, attempt.ExecutionTimeMS, attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record lab attempt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordQuestionAttempt(ctx context.Context, attempt *QuestionAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO question_attempts (student_id, question_key, query, success, correct, error_message, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.StudentID, attempt.QuestionKey, attempt.Query, attempt.Success,
		attempt.Correct, attempt.ErrorMessage, attempt.ExecutionTimeMS, attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record question attempt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteLabAttemptsBySession(ctx context.Context, sessionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM lab_attempts WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete lab attempts: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete lab attempts: %w", err)
	}
	return deleted, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		session Session
		active  int
		endedAt sql.NullTime
	)
	err := row.Scan(&session.ID, &session.LabKey, &session.StudentID,
		&session.DBPath, &active, &session.StartedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	session.Active = active != 0
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}
