package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LabExecutor executes arbitrary statements against a student's private
// session database under a longer timeout. No statement-type restriction
// applies: the student owns the file exclusively, so the only risk is a
// runaway or self-destructive statement.
type LabExecutor struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewLabExecutor creates a LabExecutor. A non-positive timeout falls back
// to DefaultLabTimeout.
func NewLabExecutor(logger *zap.Logger, timeout time.Duration) *LabExecutor {
	if timeout <= 0 {
		timeout = DefaultLabTimeout
	}
	return &LabExecutor{
		logger:  logger,
		timeout: timeout,
	}
}

// labOutcome carries a worker's result back to the waiting caller
type labOutcome struct {
	columns []string
	results [][]any
	err     error
}

// Execute runs one statement of any kind against the session database.
//
// The statement runs on its own goroutine while the caller waits up to the
// configured timeout. On timeout the caller gets a timeout result
// immediately; the worker is abandoned, keeps running in the background and
// releases its own connection when the statement eventually finishes. The
// timeout is a bound on waiting, not a guarantee of termination.
func (e *LabExecutor) Execute(ctx context.Context, dbPath, query string) ExecutionResult {
	// Buffered so an abandoned worker can deliver its outcome and exit
	// instead of blocking forever.
	done := make(chan labOutcome, 1)

	go e.runStatement(dbPath, query, done)

	start := time.Now()
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			return failureResult("SQL execution error: " + outcome.err.Error())
		}
		return successResult(outcome.columns, outcome.results, elapsedMS(start))
	case <-timer.C:
		e.logger.Warn("lab query abandoned after timeout",
			zap.String("db_path", dbPath),
			zap.Duration("timeout", e.timeout),
		)
		return timeoutResult(e.timeout)
	case <-ctx.Done():
		return failureResult("SQL execution error: " + ctx.Err().Error())
	}
}

// runStatement executes the statement on the worker goroutine. It opens and
// closes its own connection so a lingering handle is released even after the
// caller has abandoned the wait.
func (e *LabExecutor) runStatement(dbPath, query string, done chan<- labOutcome) {
	defer func() {
		if r := recover(); r != nil {
			done <- labOutcome{err: fmt.Errorf("unexpected error: %v", r)}
		}
	}()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		done <- labOutcome{err: err}
		return
	}
	defer db.Close()

	// The worker deliberately runs without the caller's context: an
	// abandoned statement finishes on its own schedule.
	if isSelect(query) {
		columns, results, err := fetchRows(context.Background(), db, query)
		done <- labOutcome{columns: columns, results: results, err: err}
		return
	}

	// INSERT, UPDATE, DELETE, DDL: execute and report zero rows.
	if _, err := db.Exec(query); err != nil {
		done <- labOutcome{err: err}
		return
	}
	done <- labOutcome{columns: []string{}, results: [][]any{}}
}
