package store

import "time"

// Session records one student's lab session. At most one active session
// exists per (lab, student) pair at any time.
type Session struct {
	ID        string     `json:"id"`
	LabKey    string     `json:"lab_key"`
	StudentID string     `json:"student_id"`
	DBPath    string     `json:"db_path"`
	Active    bool       `json:"active"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// LabAttempt is an append-only log entry for one statement executed in a
// lab session. Never mutated after insert.
type LabAttempt struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	LabKey          string    `json:"lab_key"`
	Query           string    `json:"query"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutionTimeMS float64   `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuestionAttempt is an append-only log entry for one practice-question
// submission, including whether the answer matched the reference
// fingerprint. Never mutated after insert.
type QuestionAttempt struct {
	ID              int64     `json:"id"`
	StudentID       string    `json:"student_id"`
	QuestionKey     string    `json:"question_key"`
	Query           string    `json:"query"`
	Success         bool      `json:"success"`
	Correct         bool      `json:"correct"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutionTimeMS float64   `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
