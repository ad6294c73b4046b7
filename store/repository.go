package store

import (
	"context"
	"time"
)

// SessionStore defines the repository interface for lab sessions
type SessionStore interface {
	// CreateSession inserts a new active session record
	CreateSession(ctx context.Context, session *Session) error
	// ActiveSession returns the active session for a (lab, student) pair,
	// or nil when there is none
	ActiveSession(ctx context.Context, labKey, studentID string) (*Session, error)
	// ActiveSessionsForLab returns all currently-active sessions of a lab
	ActiveSessionsForLab(ctx context.Context, labKey string) ([]Session, error)
	// ActiveSessionPaths returns the database file paths of every active session
	ActiveSessionPaths(ctx context.Context) ([]string, error)
	// EndSession marks a session inactive and stamps its end time
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error
}

// AttemptStore defines the repository interface for attempt records
type AttemptStore interface {
	// RecordLabAttempt appends one lab attempt
	RecordLabAttempt(ctx context.Context, attempt *LabAttempt) error
	// RecordQuestionAttempt appends one practice-question attempt
	RecordQuestionAttempt(ctx context.Context, attempt *QuestionAttempt) error
	// DeleteLabAttemptsBySession removes a terminated session's attempt
	// history and returns the number of rows deleted
	DeleteLabAttemptsBySession(ctx context.Context, sessionID string) (int64, error)
}
