package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver for question, template and session database files.
	_ "github.com/mattn/go-sqlite3"
)

// Default execution timeouts per mode
const (
	DefaultReadOnlyTimeout = 5 * time.Second
	DefaultLabTimeout      = 15 * time.Second
)

// ExecutionResult represents the outcome of running one statement.
//
// A result is never partially valid: on success Columns and Rows are
// populated (possibly empty, for non-SELECT statements), on failure both
// are empty and ErrorMessage carries a human-readable cause.
type ExecutionResult struct {
	Success         bool     `json:"success"`
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"results"`
	ExecutionTimeMS float64  `json:"execution_time_ms"`
	RowCount        int      `json:"row_count"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// QueryExecutor defines the interface for statement execution
type QueryExecutor interface {
	Execute(ctx context.Context, dbPath, query string) ExecutionResult
}

// isSelect reports whether the trimmed statement begins with the retrieval keyword.
func isSelect(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")
}

// readOnlyDSN builds a URI DSN that opens the file in enforced read-only mode.
func readOnlyDSN(dbPath string) string {
	return fmt.Sprintf("file:%s?mode=ro", dbPath)
}

// fetchRows runs a retrieval statement and materializes columns and rows.
// Binary column values are decoded to text so results serialize cleanly.
func fetchRows(ctx context.Context, db *sql.DB, query string) ([]string, [][]any, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	results := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		results = append(results, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return columns, results, nil
}

// successResult builds a successful ExecutionResult
func successResult(columns []string, results [][]any, elapsedMS float64) ExecutionResult {
	if columns == nil {
		columns = []string{}
	}
	if results == nil {
		results = [][]any{}
	}
	return ExecutionResult{
		Success:         true,
		Columns:         columns,
		Rows:            results,
		ExecutionTimeMS: elapsedMS,
		RowCount:        len(results),
	}
}

// failureResult builds a failed ExecutionResult with the given message
func failureResult(message string) ExecutionResult {
	return ExecutionResult{
		Success:      false,
		Columns:      []string{},
		Rows:         [][]any{},
		ErrorMessage: message,
	}
}

// timeoutResult builds the distinct timeout failure. The reported elapsed
// time is the configured bound, not the actual runtime of the abandoned
// statement.
func timeoutResult(timeout time.Duration) ExecutionResult {
	result := failureResult(fmt.Sprintf("Query timeout: query execution exceeded %d seconds", int(timeout.Seconds())))
	result.ExecutionTimeMS = float64(timeout.Milliseconds())
	return result
}

// elapsedMS returns the wall-clock time since start in milliseconds
func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
