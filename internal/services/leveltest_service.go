package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/leveltest-service/internal/adaptive"
	"github.com/SAP-F-2025/leveltest-service/internal/events"
	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

type levelTestService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	engine    *adaptive.Engine
	publisher events.EventPublisher
	locks     *sessionLocks
}

func NewLevelTestService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, engine *adaptive.Engine, publisher events.EventPublisher) LevelTestService {
	return &levelTestService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		engine:    engine,
		publisher: publisher,
		locks:     newSessionLocks(),
	}
}

// ===== CORE TEST FLOW =====

func (s *levelTestService) Start(ctx context.Context, req *StartTestRequest, learnerID string) (*SessionResponse, error) {
	s.logger.Info("Starting level test",
		"learner_id", learnerID,
		"start_level", req.StartLevel)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	startLevel := models.MinLevel()
	if req.StartLevel != "" {
		parsed, err := models.ParseCEFRLevel(req.StartLevel)
		if err != nil {
			return nil, ErrInvalidLevel
		}
		startLevel = parsed
	}

	// A learner runs at most one test at a time; starting again resumes
	// the active session instead of erroring.
	if active, err := s.repo.Session().GetActiveByLearner(ctx, nil, learnerID); err == nil {
		s.logger.Info("Resuming active session", "session_id", active.ID, "learner_id", learnerID)
		return s.buildSessionResponse(ctx, active)
	} else if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}

	session, err := s.engine.NewSession(learnerID, startLevel)
	if err != nil {
		return nil, ErrInvalidLevel
	}

	// Refuse to start when the bank has nothing at the start level. A
	// test that cannot serve its first question is a configuration
	// problem, not a learner error.
	firstQuestion, err := s.drawQuestion(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Session().Create(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.publishEvent(ctx, events.TestStarted, events.TestStartedEvent{
		SessionID:  session.PublicID,
		LearnerID:  learnerID,
		StartLevel: string(startLevel),
	})

	resp := s.toSessionResponse(session)
	resp.NextQuestion = firstQuestion.Sanitized()
	return resp, nil
}

func (s *levelTestService) SubmitAnswer(ctx context.Context, sessionID uint, req *SubmitAnswerRequest, learnerID string) (*SubmitAnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.loadOwnedSession(ctx, sessionID, learnerID)
	if err != nil {
		return nil, err
	}

	if session.IsCompleted || session.Status != models.SessionInProgress {
		return nil, ErrSessionCompleted
	}

	question, err := s.repo.Question().GetByID(ctx, nil, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	// Repeat submissions are rejected unless the bank is exhausted at the
	// current level, in which case drawQuestion re-served an old question
	// and answering it again is legitimate.
	for _, asked := range session.AskedQuestionIDs() {
		if asked != req.QuestionID {
			continue
		}
		if s.hasUnusedQuestion(ctx, session) {
			return nil, NewBusinessRuleError("question_already_answered",
				"this question was already answered in the session",
				map[string]any{"question_id": req.QuestionID})
		}
		break
	}

	answer := models.TestAnswer{
		QuestionID: question.ID,
		AnswerText: req.Answer,
		IsCorrect:  gradeAnswer(question, req.Answer),
		TimeTaken:  req.TimeTaken,
		AnsweredAt: time.Now(),
	}

	processResult, err := s.engine.ProcessAnswer(session, answer)
	if err != nil {
		if errors.Is(err, adaptive.ErrSessionCompleted) {
			return nil, ErrSessionCompleted
		}
		return nil, fmt.Errorf("failed to process answer: %w", err)
	}

	// Persist the appended answer and the updated session atomically.
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		stored := &session.Answers[len(session.Answers)-1]
		stored.SessionID = session.ID
		if err := txRepo.Answer().Create(ctx, nil, stored); err != nil {
			return fmt.Errorf("failed to store answer: %w", err)
		}
		if err := txRepo.Session().Update(ctx, nil, session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Answer processed",
		"session_id", session.ID,
		"question_id", question.ID,
		"correct", answer.IsCorrect,
		"level", session.CurrentLevel,
		"question_number", session.TotalQuestions)

	if processResult.LevelChanged {
		s.publishEvent(ctx, events.LevelChanged, events.LevelChangedEvent{
			SessionID:     session.PublicID,
			LearnerID:     learnerID,
			PreviousLevel: string(processResult.PreviousLevel),
			NewLevel:      string(processResult.NewLevel),
			QuestionCount: session.TotalQuestions,
		})
	}

	resp := &SubmitAnswerResponse{
		IsCorrect:      answer.IsCorrect,
		LevelChanged:   processResult.LevelChanged,
		PreviousLevel:  processResult.PreviousLevel,
		CurrentLevel:   session.CurrentLevel,
		QuestionNumber: session.TotalQuestions,
		TestCompleted:  processResult.TestCompleted,
	}

	if processResult.TestCompleted {
		result := s.engine.CalculateResult(session)
		resp.Result = result

		s.publishEvent(ctx, events.TestCompleted, events.TestCompletedEvent{
			SessionID:      session.PublicID,
			LearnerID:      learnerID,
			FinalLevel:     string(result.FinalLevel),
			EndReason:      result.EndReason,
			TotalQuestions: result.TotalQuestions,
			Score:          result.Score,
		})

		return resp, nil
	}

	next, err := s.drawQuestion(ctx, session)
	if err != nil {
		return nil, err
	}
	resp.NextQuestion = next.Sanitized()

	return resp, nil
}

func (s *levelTestService) Abandon(ctx context.Context, sessionID uint, learnerID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.loadOwnedSession(ctx, sessionID, learnerID)
	if err != nil {
		return err
	}

	if session.IsCompleted || session.Status != models.SessionInProgress {
		return ErrSessionNotActive
	}

	now := time.Now()
	final := session.CurrentLevel
	reason := models.EndReasonAbandoned
	session.Status = models.SessionAbandoned
	session.IsCompleted = true
	session.FinalLevel = &final
	session.EndReason = &reason
	session.CompletedAt = &now

	if err := s.repo.Session().Update(ctx, nil, session); err != nil {
		return fmt.Errorf("failed to abandon session: %w", err)
	}

	s.logger.Info("Session abandoned", "session_id", session.ID, "learner_id", learnerID)

	result := s.engine.CalculateResult(session)
	s.publishEvent(ctx, events.TestAbandoned, events.TestCompletedEvent{
		SessionID:      session.PublicID,
		LearnerID:      learnerID,
		FinalLevel:     string(result.FinalLevel),
		EndReason:      result.EndReason,
		TotalQuestions: result.TotalQuestions,
		Score:          result.Score,
	})

	return nil
}

// ===== QUERY OPERATIONS =====

func (s *levelTestService) GetByID(ctx context.Context, sessionID uint, learnerID string) (*SessionResponse, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, learnerID)
	if err != nil {
		return nil, err
	}
	return s.buildSessionResponse(ctx, session)
}

func (s *levelTestService) GetResult(ctx context.Context, sessionID uint, learnerID string) (*adaptive.TestResult, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, learnerID)
	if err != nil {
		return nil, err
	}

	if !session.IsCompleted {
		return nil, NewBusinessRuleError("result_requires_completion",
			"result is only available once the test has ended",
			map[string]any{"session_id": sessionID, "status": session.Status})
	}

	return s.engine.CalculateResult(session), nil
}

func (s *levelTestService) GetByLearner(ctx context.Context, learnerID string, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error) {
	return s.repo.Session().GetByLearner(ctx, nil, learnerID, filters)
}

func (s *levelTestService) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error) {
	return s.repo.Session().List(ctx, nil, filters)
}

func (s *levelTestService) GetStats(ctx context.Context) (*repositories.SessionStats, error) {
	return s.repo.Session().GetStats(ctx, nil)
}

// ===== HELPERS =====

// loadOwnedSession fetches a session with its answers and enforces
// ownership.
func (s *levelTestService) loadOwnedSession(ctx context.Context, sessionID uint, learnerID string) (*models.LevelTestSession, error) {
	session, err := s.repo.Session().GetByIDWithAnswers(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.LearnerID != learnerID {
		return nil, NewPermissionError("session", "access", "session belongs to another learner")
	}

	return session, nil
}

// drawQuestion selects the next random unused question at the session's
// current level. When every question at the level has been used it falls
// back to reuse, so a thin bank degrades instead of stalling an active
// test. Only a level with no active questions at all is an error.
func (s *levelTestService) drawQuestion(ctx context.Context, session *models.LevelTestSession) (*models.LevelQuestion, error) {
	filters := repositories.RandomQuestionFilters{
		Level:      session.CurrentLevel,
		ExcludeIDs: session.AskedQuestionIDs(),
	}

	question, err := s.repo.Question().GetRandomByLevel(ctx, nil, filters)
	if err == nil {
		return question, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to draw question: %w", err)
	}

	if len(filters.ExcludeIDs) > 0 {
		s.logger.Warn("Question bank exhausted at level, allowing reuse",
			"session_id", session.ID,
			"level", session.CurrentLevel)
		filters.ExcludeIDs = nil
		question, err = s.repo.Question().GetRandomByLevel(ctx, nil, filters)
		if err == nil {
			return question, nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to draw question: %w", err)
		}
	}

	return nil, ErrQuestionBankExhausted
}

// hasUnusedQuestion reports whether the current level still holds a
// question the session has not seen.
func (s *levelTestService) hasUnusedQuestion(ctx context.Context, session *models.LevelTestSession) bool {
	_, err := s.repo.Question().GetRandomByLevel(ctx, nil, repositories.RandomQuestionFilters{
		Level:      session.CurrentLevel,
		ExcludeIDs: session.AskedQuestionIDs(),
	})
	return err == nil
}

func (s *levelTestService) buildSessionResponse(ctx context.Context, session *models.LevelTestSession) (*SessionResponse, error) {
	resp := s.toSessionResponse(session)
	if session.Status == models.SessionInProgress {
		question, err := s.drawQuestion(ctx, session)
		if err != nil {
			return nil, err
		}
		resp.NextQuestion = question.Sanitized()
	}
	return resp, nil
}

func (s *levelTestService) toSessionResponse(session *models.LevelTestSession) *SessionResponse {
	return &SessionResponse{
		ID:             session.ID,
		PublicID:       session.PublicID,
		LearnerID:      session.LearnerID,
		Status:         session.Status,
		CurrentLevel:   session.CurrentLevel,
		StartLevel:     session.StartLevel,
		TotalQuestions: session.TotalQuestions,
		MaxQuestions:   session.MaxQuestions,
		IsCompleted:    session.IsCompleted,
		FinalLevel:     session.FinalLevel,
		EndReason:      session.EndReason,
		StartedAt:      session.StartedAt,
		CompletedAt:    session.CompletedAt,
	}
}

func (s *levelTestService) publishEvent(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	event := events.Event{Type: eventType, Data: data}
	if err := s.publisher.Publish(ctx, event); err != nil {
		// Events are best-effort; the test flow never fails on a broker
		// outage.
		s.logger.Error("Failed to publish event", "event_type", eventType, "error", err)
	}
}

// gradeAnswer compares a submitted answer to the question's canonical
// answer. Comparison is case-insensitive and whitespace-trimmed, which
// covers choice ids for multiple choice and free text for fill-in-blank.
func gradeAnswer(question *models.LevelQuestion, submitted string) bool {
	return strings.EqualFold(
		strings.TrimSpace(submitted),
		strings.TrimSpace(question.CorrectAnswer),
	)
}
