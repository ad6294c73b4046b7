package reaper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/store"
)

// FileSystem defines an interface for the file operations used by the Reaper
type FileSystem interface {
	Remove(path string) error
	FileExists(path string) (bool, error)
	Glob(pattern string) ([]string, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

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

func (RealFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// Reaper terminates sessions and sweeps orphaned session files
type Reaper struct {
	logger   *zap.Logger
	cfg      *config.Config
	sessions store.SessionStore
	attempts store.AttemptStore
	fs       FileSystem
}

// ReaperOption defines a functional option for Reaper
type ReaperOption func(*Reaper)

// WithFileSystem sets the FileSystem for Reaper
func WithFileSystem(fs FileSystem) ReaperOption {
	return func(r *Reaper) {
		r.fs = fs
	}
}

// NewReaper creates a Reaper with default implementations and optional interfaces
func NewReaper(logger *zap.Logger, cfg *config.Config, sessions store.SessionStore, attempts store.AttemptStore, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		logger:   logger,
		cfg:      cfg,
		sessions: sessions,
		attempts: attempts,
		fs:       &RealFileSystem{}, // Default implementation
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// TerminateSession ends one session.
//
// The attempt history is deleted first; a failure there aborts the whole
// operation and leaves the session active. The inactive mark is committed
// before any file work so a file-lock problem can never leave a session
// ambiguously active. File deletion is best effort with bounded retry; a
// leaked file is logged and the termination still succeeds.
func (r *Reaper) TerminateSession(ctx context.Context, session *store.Session) error {
	deleted, err := r.attempts.DeleteLabAttemptsBySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to delete attempt history for session %s: %w", session.ID, err)
	}
	r.logger.Info("deleted session attempt history",
		zap.String("session_id", session.ID),
		zap.Int64("attempts", deleted),
	)

	endedAt := time.Now().UTC()
	if err := r.sessions.EndSession(ctx, session.ID, endedAt); err != nil {
		return fmt.Errorf("failed to mark session %s ended: %w", session.ID, err)
	}
	session.Active = false
	session.EndedAt = &endedAt

	r.removeFileWithRetry(session.DBPath)
	return nil
}

// removeFileWithRetry deletes a session database file, retrying on failure
// with a resource-reclaim pass between attempts. Execution paths close their
// handles synchronously, so the GC pass is a safety net against a lingering
// handle from a recently-abandoned worker, not the primary mechanism.
func (r *Reaper) removeFileWithRetry(path string) {
	exists, err := r.fs.FileExists(path)
	if err != nil {
		r.logger.Warn("failed to stat session database file",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	if !exists {
		return
	}

	retries := r.cfg.Cleanup.MaxDeleteRetries
	delay := r.cfg.GetDeleteRetryDelay()

	for attempt := 1; attempt <= retries; attempt++ {
		runtime.GC()

		if err := r.fs.Remove(path); err == nil {
			r.logger.Info("deleted session database file", zap.String("path", path))
			return
		} else if attempt < retries {
			r.logger.Warn("session database file locked, retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", retries),
				zap.Error(err),
			)
			time.Sleep(delay)
		} else {
			// The session is already marked ended; a leaked file is a
			// cleanup miss, not a correctness failure.
			r.logger.Error("leaking session database file after retries exhausted",
				zap.String("path", path),
				zap.Int("max_retries", retries),
				zap.Error(err),
			)
		}
	}
}

// TerminateAllSessions terminates every active session of a lab. A failure
// on one session does not prevent attempting the others. Returns the number
// of sessions successfully terminated.
func (r *Reaper) TerminateAllSessions(ctx context.Context, labKey string) (int, error) {
	sessions, err := r.sessions.ActiveSessionsForLab(ctx, labKey)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions for lab %s: %w", labKey, err)
	}

	terminated := 0
	for i := range sessions {
		if err := r.TerminateSession(ctx, &sessions[i]); err != nil {
			r.logger.Error("failed to terminate session",
				zap.String("session_id", sessions[i].ID),
				zap.String("lab_key", labKey),
				zap.Error(err),
			)
			continue
		}
		terminated++
	}

	return terminated, nil
}

// SweepOrphanFiles deletes session database files that no active session
// record references.
func (r *Reaper) SweepOrphanFiles(ctx context.Context) (int, error) {
	pattern := filepath.Join(r.cfg.SessionDir(), "*_student_*.db")
	files, err := r.fs.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to list session files: %w", err)
	}

	activePaths, err := r.sessions.ActiveSessionPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active session paths: %w", err)
	}
	active := make(map[string]struct{}, len(activePaths))
	for _, p := range activePaths {
		active[p] = struct{}{}
	}

	cleaned := 0
	for _, file := range files {
		if _, ok := active[file]; ok {
			continue
		}
		if err := r.fs.Remove(file); err != nil {
			r.logger.Error("failed to delete orphan session file",
				zap.String("path", file),
				zap.Error(err),
			)
			continue
		}
		r.logger.Info("deleted orphan session file", zap.String("path", file))
		cleaned++
	}

	return cleaned, nil
}
