package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqldojo/sqldojo/authoring"
	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/lifecycle"
	"github.com/sqldojo/sqldojo/logger"
	"github.com/sqldojo/sqldojo/mcpserver"
	"github.com/sqldojo/sqldojo/reaper"
	"github.com/sqldojo/sqldojo/session"
	"github.com/sqldojo/sqldojo/store"
)

const integrationSchema = `
CREATE TABLE products (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    price REAL NOT NULL
);`

const integrationSeed = `
INSERT INTO products (id, name, price) VALUES
    (1, 'keyboard', 49.90),
    (2, 'mouse', 19.90),
    (3, 'monitor', 229.00);`

func newIntegrationConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Storage: config.StorageConfig{
			DataDir:    dataDir,
			MetadataDB: filepath.Join(dataDir, "metadata.db"),
		},
		Executor: config.ExecutorConfig{
			ReadOnlyTimeoutSec: 5,
			LabTimeoutSec:      15,
		},
		Cleanup: config.CleanupConfig{
			MaxDeleteRetries: 3,
			RetryDelayMS:     10,
		},
		Logging: config.LoggingConfig{
			Mode:  "development",
			Level: "info",
		},
	}
}

type integrationStack struct {
	cfg       *config.Config
	metadata  *store.SQLiteStore
	manager   *lifecycle.Manager
	reaper    *reaper.Reaper
	sessions  *session.Service
	authoring *authoring.Service
}

func newIntegrationStack(t *testing.T) *integrationStack {
	t.Helper()
	cfg := newIntegrationConfig(t)

	testLogger, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	require.NoError(t, err)

	metadata, err := store.NewSQLiteStore(cfg.Storage.MetadataDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	manager := lifecycle.NewManager(testLogger, cfg)
	r := reaper.NewReaper(testLogger, cfg, metadata, metadata)

	return &integrationStack{
		cfg:       cfg,
		metadata:  metadata,
		manager:   manager,
		reaper:    r,
		sessions:  session.NewService(testLogger, cfg, manager, metadata, metadata, r),
		authoring: authoring.NewService(testLogger, cfg, manager),
	}
}

// TestIntegrationPracticeFlow exercises the authoring-to-grading path: publish
// a question with a reference answer, then grade student queries against the
// stored fingerprint.
func TestIntegrationPracticeFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stack := newIntegrationStack(t)
	ctx := context.Background()

	published, err := stack.authoring.PublishReference(ctx, "products-q1",
		integrationSchema, integrationSeed, "SELECT name, price FROM products ORDER BY id")
	require.NoError(t, err)
	require.NotEmpty(t, published.AnswerFingerprint)
	require.FileExists(t, published.Path)

	t.Run("EquivalentQueryIsCorrect", func(t *testing.T) {
		// Row order and column order do not affect grading.
		outcome, err := stack.sessions.ExecutePractice(ctx, published.Key, "alice",
			published.Path, "SELECT price, name FROM products ORDER BY price DESC", published.AnswerFingerprint)
		require.NoError(t, err)
		assert.True(t, outcome.Result.Success)
		assert.True(t, outcome.Correct)
	})

	t.Run("WrongResultIsIncorrect", func(t *testing.T) {
		outcome, err := stack.sessions.ExecutePractice(ctx, published.Key, "alice",
			published.Path, "SELECT name, price FROM products WHERE price < 100", published.AnswerFingerprint)
		require.NoError(t, err)
		assert.True(t, outcome.Result.Success)
		assert.False(t, outcome.Correct)
	})

	t.Run("MutationIsRejected", func(t *testing.T) {
		outcome, err := stack.sessions.ExecutePractice(ctx, published.Key, "alice",
			published.Path, "DELETE FROM products", published.AnswerFingerprint)
		require.NoError(t, err)
		assert.False(t, outcome.Result.Success)
		assert.False(t, outcome.Correct)
	})
}

// TestIntegrationLabLifecycle walks a lab session from start through mutation,
// reset and termination, then sweeps the data directory.
func TestIntegrationLabLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stack := newIntegrationStack(t)
	ctx := context.Background()

	published, err := stack.authoring.PublishReference(ctx, "products-lab",
		integrationSchema, integrationSeed, "")
	require.NoError(t, err)
	assert.Empty(t, published.AnswerFingerprint)

	sess, err := stack.sessions.Start(ctx, "products-lab", "bob")
	require.NoError(t, err)
	require.FileExists(t, sess.DBPath)

	// Mutations hit the private copy, not the reference.
	result, err := stack.sessions.ExecuteLab(ctx, "products-lab", "bob", "DELETE FROM products WHERE price < 100")
	require.NoError(t, err)
	require.True(t, result.Success, result.ErrorMessage)

	result, err = stack.sessions.ExecuteLab(ctx, "products-lab", "bob", "SELECT count(*) AS n FROM products")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 1, result.Rows[0][0])

	// Reset restores the seeded state.
	_, err = stack.sessions.Reset(ctx, "products-lab", "bob")
	require.NoError(t, err)

	result, err = stack.sessions.ExecuteLab(ctx, "products-lab", "bob", "SELECT count(*) AS n FROM products")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.EqualValues(t, 3, result.Rows[0][0])

	require.NoError(t, stack.sessions.End(ctx, "products-lab", "bob"))
	assert.NoFileExists(t, sess.DBPath)

	// A stray session file with no backing record gets swept.
	orphan := filepath.Join(stack.cfg.SessionDir(), "products-lab_student_ghost.db")
	require.NoError(t, os.WriteFile(orphan, []byte("stale"), 0644))

	cleaned, err := stack.reaper.SweepOrphanFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)
	assert.NoFileExists(t, orphan)
}

// TestIntegrationServerConstruction wires the full stack into the MCP server.
func TestIntegrationServerConstruction(t *testing.T) {
	stack := newIntegrationStack(t)

	testLogger, err := logger.New(stack.cfg.Logging.Mode, stack.cfg.Logging.Level)
	require.NoError(t, err)

	server, err := mcpserver.New(stack.cfg, testLogger, stack.manager,
		stack.authoring, stack.sessions, stack.reaper)
	require.NoError(t, err)
	require.NotNil(t, server)
	require.NotNil(t, server.GetMCPServer())
}
