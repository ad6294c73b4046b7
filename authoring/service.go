package authoring

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/fingerprint"
	"github.com/sqldojo/sqldojo/lifecycle"
	"github.com/sqldojo/sqldojo/sandbox"
)

// Service handles instructor-side reference database publishing
type Service struct {
	logger   *zap.Logger
	manager  *lifecycle.Manager
	executor sandbox.QueryExecutor
}

// NewService creates the authoring service. The reference answer query runs
// in the same read-only sandbox students use, under the same timeout.
func NewService(logger *zap.Logger, cfg *config.Config, manager *lifecycle.Manager) *Service {
	return &Service{
		logger:   logger,
		manager:  manager,
		executor: sandbox.NewReadOnlyExecutor(logger, cfg.GetReadOnlyTimeout()),
	}
}

// NewQuestionKey returns a unique key for a newly authored question database
func NewQuestionKey() string {
	return uuid.NewString()
}

// PublishResult is the outcome of publishing a reference database
type PublishResult struct {
	Key               string `json:"key"`
	Path              string `json:"path"`
	AnswerFingerprint string `json:"answer_fingerprint,omitempty"`
}

// PublishReference builds (or wholesale rebuilds) a reference database from
// schema and seed SQL. When answerQuery is non-empty it is executed against
// the fresh reference and its result set fingerprinted; a reference answer
// that fails to execute rejects the publish and removes the built file.
// An empty answerQuery publishes a lab reference with no fingerprint.
func (s *Service) PublishReference(ctx context.Context, key, schemaSQL, seedSQL, answerQuery string) (*PublishResult, error) {
	path, err := s.manager.CreateReference(ctx, key, schemaSQL, seedSQL)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{Key: key, Path: path}
	if answerQuery == "" {
		return result, nil
	}

	execution := s.executor.Execute(ctx, path, answerQuery)
	if !execution.Success {
		s.manager.DeleteReference(key)
		return nil, fmt.Errorf("reference answer query failed: %s", execution.ErrorMessage)
	}

	result.AnswerFingerprint = fingerprint.Hash(execution.Columns, execution.Rows)
	s.logger.Info("reference published with answer fingerprint",
		zap.String("key", key),
		zap.Int("answer_rows", execution.RowCount),
	)
	return result, nil
}

// Unpublish removes a reference database. Best effort, mirroring the
// lifecycle manager's delete semantics.
func (s *Service) Unpublish(key string) {
	s.manager.DeleteReference(key)
}
