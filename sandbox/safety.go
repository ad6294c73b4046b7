package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeQuery signals that a statement failed the read-only policy check
var ErrUnsafeQuery = errors.New("unsafe query")

// blockedKeywords is the fixed set of mutation/DDL/pragma keywords rejected
// by the read-only sandbox. Loaded once, never mutated at runtime.
var blockedKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER",
	"CREATE", "TRUNCATE", "REPLACE", "PRAGMA",
	"ATTACH", "DETACH",
}

// CheckReadOnly validates that a statement is a single read-only retrieval.
//
// The check is a coarse, case-insensitive substring scan, not a parser: a
// well-formed SELECT whose text merely contains a blocked keyword (for
// example inside a string literal) is also rejected. That false positive is
// accepted, observable behavior. The check is only the first safety layer;
// the executor additionally opens the file read-only so a statement that
// slips past it still cannot mutate the database.
func CheckReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("%w: query must not be empty", ErrUnsafeQuery)
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return fmt.Errorf("%w: only SELECT queries are allowed", ErrUnsafeQuery)
	}

	for _, keyword := range blockedKeywords {
		if strings.Contains(upper, keyword) {
			return fmt.Errorf("%w: queries must not contain %s", ErrUnsafeQuery, keyword)
		}
	}

	return nil
}
