package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sqldojo/sqldojo/config"
)

// Reference-build and session-copy failure classes
var (
	ErrSchema           = errors.New("schema sql execution failed")
	ErrSeed             = errors.New("seed sql execution failed")
	ErrEmptySchema      = errors.New("no tables were created")
	ErrReferenceMissing = errors.New("reference database not found")
	ErrCopyFailed       = errors.New("session database copy failed")
)

// DirPermission is the mode for created database directories
const DirPermission = 0755

// countUserTables reports how many non-system tables a database contains
const countUserTablesSQL = `SELECT count(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`

// FileSystem defines an interface for the file operations used by the Manager
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	FileExists(path string) (bool, error)
	CopyFile(src, dst string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// CopyFile performs a byte-level copy of src to dst, truncating dst if it exists
func (RealFileSystem) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Manager owns reference and session database files on disk
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config
	fs     FileSystem
}

// ManagerOption defines a functional option for Manager
type ManagerOption func(*Manager)

// WithFileSystem sets the FileSystem for Manager
func WithFileSystem(fs FileSystem) ManagerOption {
	return func(m *Manager) {
		m.fs = fs
	}
}

// NewManager creates a Manager with default implementations and optional interfaces
func NewManager(logger *zap.Logger, cfg *config.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger: logger,
		cfg:    cfg,
		fs:     &RealFileSystem{}, // Default implementation
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ReferencePath returns the on-disk location of a reference database
func (m *Manager) ReferencePath(key string) string {
	return filepath.Join(m.cfg.TemplateDir(), fmt.Sprintf("%s_template.db", key))
}

// SessionPath returns the on-disk location of a student's session database
func (m *Manager) SessionPath(key, studentID string) string {
	return filepath.Join(m.cfg.SessionDir(), fmt.Sprintf("%s_student_%s.db", key, studentID))
}

// CreateReference builds a reference database from schema and seed SQL.
//
// Any pre-existing file for the key is deleted first; references are always
// rebuilt from scratch. The schema script runs before the seed script, and
// the build fails with ErrEmptySchema when no user table exists afterwards.
// Every failure path removes the partial file before returning.
func (m *Manager) CreateReference(ctx context.Context, key, schemaSQL, seedSQL string) (string, error) {
	path := m.ReferencePath(key)

	if err := m.fs.MkdirAll(filepath.Dir(path), DirPermission); err != nil {
		return "", fmt.Errorf("failed to create template directory: %w", err)
	}

	exists, err := m.fs.FileExists(path)
	if err != nil {
		return "", err
	}
	if exists {
		if err := m.fs.Remove(path); err != nil {
			return "", fmt.Errorf("failed to remove existing reference database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		m.discard(db, path)
		return "", fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if strings.TrimSpace(seedSQL) != "" {
		if _, err := db.ExecContext(ctx, seedSQL); err != nil {
			m.discard(db, path)
			return "", fmt.Errorf("%w: %v", ErrSeed, err)
		}
	}

	var tables int
	if err := db.QueryRowContext(ctx, countUserTablesSQL).Scan(&tables); err != nil {
		m.discard(db, path)
		return "", fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if tables == 0 {
		m.discard(db, path)
		return "", fmt.Errorf("%w: check your schema SQL", ErrEmptySchema)
	}

	if err := db.Close(); err != nil {
		m.logger.Warn("failed to close reference database handle",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	m.logger.Info("reference database created",
		zap.String("key", key),
		zap.String("path", path),
		zap.Int("tables", tables),
	)

	return path, nil
}

// discard closes the handle and removes the partial database file
func (m *Manager) discard(db *sql.DB, path string) {
	db.Close()
	if err := m.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove partial database file",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// CopyReferenceToSession creates a student's private session database as a
// byte-for-byte copy of the key's reference database. An existing session
// file for the same (key, student) pair is replaced. Callers enforce
// session idempotency by checking for an active session record before
// invoking the copy.
func (m *Manager) CopyReferenceToSession(key, studentID string) (string, error) {
	refPath := m.ReferencePath(key)

	exists, err := m.fs.FileExists(refPath)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrReferenceMissing, key)
	}

	sessionPath := m.SessionPath(key, studentID)
	if err := m.fs.MkdirAll(filepath.Dir(sessionPath), DirPermission); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	sessionExists, err := m.fs.FileExists(sessionPath)
	if err != nil {
		return "", err
	}
	if sessionExists {
		if err := m.fs.Remove(sessionPath); err != nil {
			return "", fmt.Errorf("failed to remove existing session database: %w", err)
		}
	}

	if err := m.fs.CopyFile(refPath, sessionPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}

	copied, err := m.fs.FileExists(sessionPath)
	if err != nil {
		return "", err
	}
	if !copied {
		return "", fmt.Errorf("%w: session database was not created", ErrCopyFailed)
	}

	m.logger.Info("session database created",
		zap.String("key", key),
		zap.String("student_id", studentID),
		zap.String("path", sessionPath),
	)

	return sessionPath, nil
}

// ResetSession discards all student mutations by replacing the session
// database with a fresh copy of the current reference.
func (m *Manager) ResetSession(key, studentID string) (string, error) {
	sessionPath := m.SessionPath(key, studentID)

	exists, err := m.fs.FileExists(sessionPath)
	if err != nil {
		return "", err
	}
	if exists {
		if err := m.fs.Remove(sessionPath); err != nil {
			return "", fmt.Errorf("failed to remove session database: %w", err)
		}
	}

	return m.CopyReferenceToSession(key, studentID)
}

// DeleteReference removes a reference database. Cleanup is best effort:
// failures are logged, never surfaced.
func (m *Manager) DeleteReference(key string) {
	m.deleteFile(m.ReferencePath(key))
}

// DeleteSession removes a session database file. Cleanup is best effort:
// failures are logged, never surfaced.
func (m *Manager) DeleteSession(path string) {
	m.deleteFile(path)
}

func (m *Manager) deleteFile(path string) {
	exists, err := m.fs.FileExists(path)
	if err != nil || !exists {
		return
	}
	if err := m.fs.Remove(path); err != nil {
		m.logger.Warn("failed to delete database file",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("database file deleted", zap.String("path", path))
}
