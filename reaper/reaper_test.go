package reaper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/store"
)

// MockAttemptStore implements store.AttemptStore for testing
type MockAttemptStore struct {
	deleteErr    error
	deletedFor   []string
	deletedCount int64
}

func (m *MockAttemptStore) RecordLabAttempt(context.Context, *store.LabAttempt) error { return nil }

func (m *MockAttemptStore) RecordQuestionAttempt(context.Context, *store.QuestionAttempt) error {
	return nil
}

func (m *MockAttemptStore) DeleteLabAttemptsBySession(_ context.Context, sessionID string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deletedFor = append(m.deletedFor, sessionID)
	return m.deletedCount, nil
}

// FlakyFileSystem fails Remove a configured number of times before succeeding
type FlakyFileSystem struct {
	RealFileSystem
	failuresLeft int
	removeCalls  int
}

func (f *FlakyFileSystem) Remove(path string) error {
	f.removeCalls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("file is locked")
	}
	return f.RealFileSystem.Remove(path)
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{
			DataDir:    t.TempDir(),
			MetadataDB: "unused",
		},
		Cleanup: config.CleanupConfig{
			MaxDeleteRetries: 5,
			RetryDelayMS:     1,
		},
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// startSession creates an active session record plus a session file on disk
func startSession(t *testing.T, cfg *config.Config, s store.SessionStore, labKey, studentID string) *store.Session {
	t.Helper()

	dir := cfg.SessionDir()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, labKey+"_student_"+studentID+".db")
	require.NoError(t, os.WriteFile(path, []byte("session data"), 0644))

	session := &store.Session{
		ID:        uuid.NewString(),
		LabKey:    labKey,
		StudentID: studentID,
		DBPath:    path,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
	return session
}

func TestTerminateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("DeletesFileAndHistory", func(t *testing.T) {
		cfg := newTestConfig(t)
		s := newTestStore(t)
		session := startSession(t, cfg, s, "lab_1", "42")
		require.NoError(t, s.RecordLabAttempt(ctx, &store.LabAttempt{
			SessionID: session.ID,
			LabKey:    "lab_1",
			Query:     "SELECT 1",
			Success:   true,
		}))

		reaper := NewReaper(zaptest.NewLogger(t), cfg, s, s)
		require.NoError(t, reaper.TerminateSession(ctx, session))

		assert.False(t, session.Active)
		assert.NotNil(t, session.EndedAt)

		active, err := s.ActiveSession(ctx, "lab_1", "42")
		require.NoError(t, err)
		assert.Nil(t, active)

		_, err = os.Stat(session.DBPath)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("AttemptHistoryFailureAborts", func(t *testing.T) {
		cfg := newTestConfig(t)
		s := newTestStore(t)
		session := startSession(t, cfg, s, "lab_1", "42")

		attempts := &MockAttemptStore{deleteErr: errors.New("metadata store down")}
		reaper := NewReaper(zaptest.NewLogger(t), cfg, s, attempts)

		err := reaper.TerminateSession(ctx, session)
		require.Error(t, err)

		// The session stays active and its file stays on disk.
		active, lookupErr := s.ActiveSession(ctx, "lab_1", "42")
		require.NoError(t, lookupErr)
		require.NotNil(t, active)
		_, statErr := os.Stat(session.DBPath)
		assert.NoError(t, statErr)
	})

	t.Run("TransientLockRetriesThenDeletes", func(t *testing.T) {
		cfg := newTestConfig(t)
		s := newTestStore(t)
		session := startSession(t, cfg, s, "lab_1", "42")

		fs := &FlakyFileSystem{failuresLeft: 3}
		reaper := NewReaper(zaptest.NewLogger(t), cfg, s, s, WithFileSystem(fs))

		require.NoError(t, reaper.TerminateSession(ctx, session))
		assert.Equal(t, 4, fs.removeCalls)
		_, err := os.Stat(session.DBPath)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("ExhaustedRetriesStillSucceeds", func(t *testing.T) {
		cfg := newTestConfig(t)
		s := newTestStore(t)
		session := startSession(t, cfg, s, "lab_1", "42")

		fs := &FlakyFileSystem{failuresLeft: 100}
		reaper := NewReaper(zaptest.NewLogger(t), cfg, s, s, WithFileSystem(fs))

		// The leaked file is logged; termination still reports success and
		// the logical state is ended.
		require.NoError(t, reaper.TerminateSession(ctx, session))
		assert.Equal(t, cfg.Cleanup.MaxDeleteRetries, fs.removeCalls)

		active, err := s.ActiveSession(ctx, "lab_1", "42")
		require.NoError(t, err)
		assert.Nil(t, active)
	})
}

func TestTerminateAllSessions(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	s := newTestStore(t)

	startSession(t, cfg, s, "lab_1", "1")
	startSession(t, cfg, s, "lab_1", "2")
	startSession(t, cfg, s, "lab_2", "1")

	reaper := NewReaper(zaptest.NewLogger(t), cfg, s, s)

	terminated, err := reaper.TerminateAllSessions(ctx, "lab_1")
	require.NoError(t, err)
	assert.Equal(t, 2, terminated)

	remaining, err := s.ActiveSessionsForLab(ctx, "lab_2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestSweepOrphanFiles(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	s := newTestStore(t)

	active := startSession(t, cfg, s, "lab_1", "1")

	// Two orphans: files on disk without an active session record.
	orphanA := filepath.Join(cfg.SessionDir(), "lab_1_student_9.db")
	orphanB := filepath.Join(cfg.SessionDir(), "lab_2_student_3.db")
	require.NoError(t, os.WriteFile(orphanA, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(orphanB, []byte("x"), 0644))

	// An unrelated file that does not match the session naming scheme.
	unrelated := filepath.Join(cfg.SessionDir(), "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0644))

	reaper := NewReaper(zaptest.NewLogger(t), cfg, s, s)

	cleaned, err := reaper.SweepOrphanFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleaned)

	_, err = os.Stat(active.DBPath)
	assert.NoError(t, err)
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
	_, err = os.Stat(orphanA)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(orphanB)
	assert.True(t, os.IsNotExist(err))
}
