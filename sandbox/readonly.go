package sandbox

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// ReadOnlyExecutor executes a single SELECT statement against a question
// database under a short timeout. Two independent safety layers apply: the
// syntactic policy check in CheckReadOnly and the read-only file open mode.
type ReadOnlyExecutor struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewReadOnlyExecutor creates a ReadOnlyExecutor. A non-positive timeout
// falls back to DefaultReadOnlyTimeout.
func NewReadOnlyExecutor(logger *zap.Logger, timeout time.Duration) *ReadOnlyExecutor {
	if timeout <= 0 {
		timeout = DefaultReadOnlyTimeout
	}
	return &ReadOnlyExecutor{
		logger:  logger,
		timeout: timeout,
	}
}

// Execute runs one retrieval statement and returns its result. Policy
// violations, timeouts and backend errors are all folded into the
// ExecutionResult; the statement is never executed when the policy check
// fails.
func (e *ReadOnlyExecutor) Execute(ctx context.Context, dbPath, query string) ExecutionResult {
	if err := CheckReadOnly(query); err != nil {
		e.logger.Info("query rejected by read-only policy",
			zap.String("db_path", dbPath),
			zap.Error(err),
		)
		return failureResult(err.Error() +
			". Queries must not contain DROP, DELETE, INSERT, UPDATE, ALTER, CREATE, etc.")
	}

	db, err := sql.Open("sqlite3", readOnlyDSN(dbPath))
	if err != nil {
		return failureResult("SQL execution error: " + err.Error())
	}
	defer db.Close()

	// The sqlite3 driver interrupts a running statement when the context
	// expires, so the read-only path gets cooperative cancellation rather
	// than abandon-and-report.
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	columns, results, err := fetchRows(execCtx, db, query)
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			e.logger.Warn("read-only query timed out",
				zap.String("db_path", dbPath),
				zap.Duration("timeout", e.timeout),
			)
			return timeoutResult(e.timeout)
		}
		return failureResult("SQL execution error: " + err.Error())
	}

	return successResult(columns, results, elapsedMS(start))
}
