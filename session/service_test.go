package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/fingerprint"
	"github.com/sqldojo/sqldojo/lifecycle"
	"github.com/sqldojo/sqldojo/reaper"
	"github.com/sqldojo/sqldojo/store"
)

const (
	testSchema = "CREATE TABLE t (id INT, name TEXT);"
	testSeed   = "INSERT INTO t VALUES (1, 'a'), (2, 'b');"
)

type testEnv struct {
	service *Service
	manager *lifecycle.Manager
	store   *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DataDir:    dir,
			MetadataDB: filepath.Join(dir, "metadata.db"),
		},
		Executor: config.ExecutorConfig{
			ReadOnlyTimeoutSec: 5,
			LabTimeoutSec:      15,
		},
		Cleanup: config.CleanupConfig{
			MaxDeleteRetries: 5,
			RetryDelayMS:     1,
		},
	}

	logger := zaptest.NewLogger(t)
	manager := lifecycle.NewManager(logger, cfg)
	st, err := store.NewSQLiteStore(cfg.Storage.MetadataDB)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r := reaper.NewReaper(logger, cfg, st, st)
	return &testEnv{
		service: NewService(logger, cfg, manager, st, st, r),
		manager: manager,
		store:   st,
	}
}

func (e *testEnv) createLab(t *testing.T, labKey string) {
	t.Helper()
	_, err := e.manager.CreateReference(context.Background(), labKey, testSchema, testSeed)
	require.NoError(t, err)
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesSessionCopy", func(t *testing.T) {
		env := newTestEnv(t)
		env.createLab(t, "lab_1")

		session, err := env.service.Start(ctx, "lab_1", "42")
		require.NoError(t, err)
		assert.True(t, session.Active)

		_, err = os.Stat(session.DBPath)
		assert.NoError(t, err)
	})

	t.Run("IdempotentStart", func(t *testing.T) {
		env := newTestEnv(t)
		env.createLab(t, "lab_1")

		first, err := env.service.Start(ctx, "lab_1", "42")
		require.NoError(t, err)

		// Starting again returns the existing session, not a second copy.
		second, err := env.service.Start(ctx, "lab_1", "42")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("MissingReference", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.service.Start(ctx, "lab_unknown", "42")
		require.Error(t, err)
		assert.ErrorIs(t, err, lifecycle.ErrReferenceMissing)
	})
}

func TestExecuteLab(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLab(t, "lab_1")

	session, err := env.service.Start(ctx, "lab_1", "42")
	require.NoError(t, err)

	t.Run("NoSessionForStranger", func(t *testing.T) {
		_, err := env.service.ExecuteLab(ctx, "lab_1", "99", "SELECT 1")
		assert.ErrorIs(t, err, ErrNoActiveSession)
	})

	t.Run("MutateAndQuery", func(t *testing.T) {
		result, err := env.service.ExecuteLab(ctx, "lab_1", "42", "INSERT INTO t VALUES (3, 'c')")
		require.NoError(t, err)
		require.True(t, result.Success, "error: %s", result.ErrorMessage)

		result, err = env.service.ExecuteLab(ctx, "lab_1", "42", "SELECT count(*) AS n FROM t")
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Equal(t, int64(3), result.Rows[0][0])
	})

	t.Run("AttemptsAreRecorded", func(t *testing.T) {
		deleted, err := env.store.DeleteLabAttemptsBySession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
	})
}

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLab(t, "lab_1")

	_, err := env.service.Start(ctx, "lab_1", "42")
	require.NoError(t, err)

	_, err = env.service.ExecuteLab(ctx, "lab_1", "42", "DELETE FROM t")
	require.NoError(t, err)

	_, err = env.service.Reset(ctx, "lab_1", "42")
	require.NoError(t, err)

	result, err := env.service.ExecuteLab(ctx, "lab_1", "42", "SELECT count(*) AS n FROM t")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, int64(2), result.Rows[0][0])
}

func TestExecutePractice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	refPath, err := env.manager.CreateReference(ctx, "q_1", testSchema, testSeed)
	require.NoError(t, err)

	// The instructor's reference answer, fingerprinted at authoring time.
	reference, err := env.service.ExecutePractice(ctx, "q_1", "instructor", refPath, "SELECT id, name FROM t", "")
	require.NoError(t, err)
	require.True(t, reference.Result.Success)
	referenceFingerprint := fingerprint.Hash(reference.Result.Columns, reference.Result.Rows)

	t.Run("RowOrderDoesNotMatter", func(t *testing.T) {
		outcome, err := env.service.ExecutePractice(ctx, "q_1", "42", refPath,
			"SELECT id, name FROM t ORDER BY id DESC", referenceFingerprint)
		require.NoError(t, err)
		require.True(t, outcome.Result.Success)
		assert.True(t, outcome.Correct)
	})

	t.Run("ColumnReorderKeepsLabels", func(t *testing.T) {
		// A reordered projection keeps the same column labels, so the
		// canonical row objects are unchanged.
		outcome, err := env.service.ExecutePractice(ctx, "q_1", "42", refPath,
			"SELECT name, id FROM t", referenceFingerprint)
		require.NoError(t, err)
		require.True(t, outcome.Result.Success)
		assert.True(t, outcome.Correct)
	})

	t.Run("ColumnAliasChangesFingerprint", func(t *testing.T) {
		outcome, err := env.service.ExecutePractice(ctx, "q_1", "42", refPath,
			"SELECT id, name AS label FROM t", referenceFingerprint)
		require.NoError(t, err)
		require.True(t, outcome.Result.Success)
		assert.False(t, outcome.Correct)
	})

	t.Run("UnsafeQueryRejected", func(t *testing.T) {
		outcome, err := env.service.ExecutePractice(ctx, "q_1", "42", refPath,
			"DELETE FROM t", referenceFingerprint)
		require.NoError(t, err)
		assert.False(t, outcome.Result.Success)
		assert.False(t, outcome.Correct)
		assert.NotEmpty(t, outcome.Result.ErrorMessage)
	})
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLab(t, "lab_1")

	session, err := env.service.Start(ctx, "lab_1", "42")
	require.NoError(t, err)

	require.NoError(t, env.service.End(ctx, "lab_1", "42"))

	_, err = os.Stat(session.DBPath)
	assert.True(t, os.IsNotExist(err))

	err = env.service.End(ctx, "lab_1", "42")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEndAllForLab(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createLab(t, "lab_1")

	_, err := env.service.Start(ctx, "lab_1", "1")
	require.NoError(t, err)
	_, err = env.service.Start(ctx, "lab_1", "2")
	require.NoError(t, err)

	terminated, err := env.service.EndAllForLab(ctx, "lab_1")
	require.NoError(t, err)
	assert.Equal(t, 2, terminated)
}
