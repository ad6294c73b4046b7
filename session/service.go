package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sqldojo/sqldojo/config"
	"github.com/sqldojo/sqldojo/fingerprint"
	"github.com/sqldojo/sqldojo/lifecycle"
	"github.com/sqldojo/sqldojo/reaper"
	"github.com/sqldojo/sqldojo/sandbox"
	"github.com/sqldojo/sqldojo/store"
)

// ErrNoActiveSession signals an operation on a (lab, student) pair without
// an active session
var ErrNoActiveSession = errors.New("no active session")

// Service coordinates session state across the lifecycle manager, the
// metadata store, the executors and the reaper.
type Service struct {
	logger    *zap.Logger
	manager   *lifecycle.Manager
	sessions  store.SessionStore
	attempts  store.AttemptStore
	reaper    *reaper.Reaper
	labExec   sandbox.QueryExecutor
	queryExec sandbox.QueryExecutor
}

// NewService creates the session service. Executors are built from the
// configured timeouts.
func NewService(logger *zap.Logger, cfg *config.Config, manager *lifecycle.Manager,
	sessions store.SessionStore, attempts store.AttemptStore, r *reaper.Reaper) *Service {
	return &Service{
		logger:    logger,
		manager:   manager,
		sessions:  sessions,
		attempts:  attempts,
		reaper:    r,
		labExec:   sandbox.NewLabExecutor(logger, cfg.GetLabTimeout()),
		queryExec: sandbox.NewReadOnlyExecutor(logger, cfg.GetReadOnlyTimeout()),
	}
}

// Start begins a lab session for a student, copying the lab's reference
// database into a private session database. Starting a session that is
// already active is a no-op returning the existing session; the active-record
// check here is what makes the copy idempotent.
func (s *Service) Start(ctx context.Context, labKey, studentID string) (*store.Session, error) {
	existing, err := s.sessions.ActiveSession(ctx, labKey, studentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info("session already active",
			zap.String("lab_key", labKey),
			zap.String("student_id", studentID),
		)
		return existing, nil
	}

	path, err := s.manager.CopyReferenceToSession(labKey, studentID)
	if err != nil {
		return nil, err
	}

	session := &store.Session{
		ID:        uuid.NewString(),
		LabKey:    labKey,
		StudentID: studentID,
		DBPath:    path,
		StartedAt: time.Now().UTC(),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		s.manager.DeleteSession(path)
		return nil, err
	}

	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("lab_key", labKey),
		zap.String("student_id", studentID),
	)
	return session, nil
}

// Reset replaces the student's session database with a fresh copy of the
// current reference, discarding all mutations. The session record survives.
func (s *Service) Reset(ctx context.Context, labKey, studentID string) (*store.Session, error) {
	session, err := s.activeSession(ctx, labKey, studentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.manager.ResetSession(labKey, studentID); err != nil {
		return nil, err
	}
	return session, nil
}

// ExecuteLab runs one statement of any kind against the student's session
// database and appends an attempt record.
func (s *Service) ExecuteLab(ctx context.Context, labKey, studentID, query string) (sandbox.ExecutionResult, error) {
	session, err := s.activeSession(ctx, labKey, studentID)
	if err != nil {
		return sandbox.ExecutionResult{}, err
	}

	result := s.labExec.Execute(ctx, session.DBPath, query)

	attempt := &store.LabAttempt{
		SessionID:       session.ID,
		LabKey:          labKey,
		Query:           query,
		Success:         result.Success,
		ErrorMessage:    result.ErrorMessage,
		ExecutionTimeMS: result.ExecutionTimeMS,
	}
	if err := s.attempts.RecordLabAttempt(ctx, attempt); err != nil {
		// The student still gets their result; only the history entry is lost.
		s.logger.Warn("failed to record lab attempt",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}

	return result, nil
}

// PracticeOutcome is the graded result of a practice-question submission
type PracticeOutcome struct {
	Result  sandbox.ExecutionResult `json:"result"`
	Correct bool                    `json:"correct"`
}

// ExecutePractice runs a read-only practice query against a question
// database, grades it against the stored reference fingerprint, and appends
// an attempt record.
func (s *Service) ExecutePractice(ctx context.Context, questionKey, studentID, dbPath, query, referenceFingerprint string) (PracticeOutcome, error) {
	result := s.queryExec.Execute(ctx, dbPath, query)

	correct := false
	if result.Success && referenceFingerprint != "" {
		correct = fingerprint.Matches(result.Columns, result.Rows, referenceFingerprint)
	}

	attempt := &store.QuestionAttempt{
		StudentID:       studentID,
		QuestionKey:     questionKey,
		Query:           query,
		Success:         result.Success,
		Correct:         correct,
		ErrorMessage:    result.ErrorMessage,
		ExecutionTimeMS: result.ExecutionTimeMS,
	}
	if err := s.attempts.RecordQuestionAttempt(ctx, attempt); err != nil {
		s.logger.Warn("failed to record question attempt",
			zap.String("question_key", questionKey),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
	}

	return PracticeOutcome{Result: result, Correct: correct}, nil
}

// End terminates the student's active session
func (s *Service) End(ctx context.Context, labKey, studentID string) error {
	session, err := s.activeSession(ctx, labKey, studentID)
	if err != nil {
		return err
	}
	return s.reaper.TerminateSession(ctx, session)
}

// EndAllForLab terminates every active session of a lab, returning the
// number of sessions successfully terminated
func (s *Service) EndAllForLab(ctx context.Context, labKey string) (int, error) {
	return s.reaper.TerminateAllSessions(ctx, labKey)
}

func (s *Service) activeSession(ctx context.Context, labKey, studentID string) (*store.Session, error) {
	session, err := s.sessions.ActiveSession(ctx, labKey, studentID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w for lab %s and student %s", ErrNoActiveSession, labKey, studentID)
	}
	return session, nil
}
