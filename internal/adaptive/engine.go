// Package adaptive implements the level-test state machine: a pure,
// synchronous reducer over a session value. Each call processes exactly
// one answer; all state lives in the session, never in the engine.
package adaptive

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
)

var (
	// ErrSessionCompleted is returned when an answer arrives for a session
	// that already reached a terminal state. The original flow never
	// defined this case; rejecting explicitly is the documented choice.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrInvalidLevel is returned when a session is constructed with a
	// level outside the ladder. Fail fast rather than clamp.
	ErrInvalidLevel = errors.New("level is not a member of the CEFR ladder")
)

// Config holds the streak thresholds driving level transitions.
type Config struct {
	// PromotionStreak consecutive correct answers move the level one step
	// up and reset the correct streak.
	PromotionStreak int
	// DemotionStreak consecutive incorrect answers move the level one step
	// down and reset the incorrect streak.
	DemotionStreak int
	// AbortRun consecutive incorrect answers (counted over history, not
	// the resettable streak) end the test.
	AbortRun int
	// AccelerationStreak consecutive correct answers trigger a double
	// jump of AccelerationJump ladder positions, clamped to the maximum.
	AccelerationStreak int
	AccelerationJump   int
	// MaxQuestions is the hard cap on answers per session.
	MaxQuestions int
}

// DefaultConfig mirrors the production test behaviour: promote on 2,
// demote on 2, abort on 3, double jump on 4, cap at 50 questions.
func DefaultConfig() Config {
	return Config{
		PromotionStreak:    2,
		DemotionStreak:     2,
		AbortRun:           3,
		AccelerationStreak: 4,
		AccelerationJump:   2,
		MaxQuestions:       models.DefaultMaxQuestions,
	}
}

// Engine applies answers to sessions. It carries configuration only; it is
// safe to share across goroutines because every method is a pure function
// of its arguments.
type Engine struct {
	config Config
}

func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

func NewDefaultEngine() *Engine {
	return NewEngine(DefaultConfig())
}

// ProcessResult reports what a single answer did to the session.
type ProcessResult struct {
	LevelChanged  bool             `json:"level_changed"`
	PreviousLevel models.CEFRLevel `json:"previous_level"`
	NewLevel      models.CEFRLevel `json:"new_level"`
	TestCompleted bool             `json:"test_completed"`
	EndReason     string           `json:"end_reason,omitempty"`
}

// NewSession constructs a fresh session for a learner. startLevel must be
// a ladder member; pass models.MinLevel() for the default placement start.
// The caller assigns the database identity and persists the value.
func (e *Engine) NewSession(learnerID string, startLevel models.CEFRLevel) (*models.LevelTestSession, error) {
	if !startLevel.IsValid() {
		return nil, ErrInvalidLevel
	}

	return &models.LevelTestSession{
		PublicID:     uuid.New().String(),
		LearnerID:    learnerID,
		Status:       models.SessionInProgress,
		CurrentLevel: startLevel,
		StartLevel:   startLevel,
		MaxQuestions: e.config.MaxQuestions,
		StartedAt:    time.Now(),
	}, nil
}

// ProcessAnswer appends one scored answer to the session and applies the
// level-transition rules. The answer must already carry its correctness
// flag; the engine never grades. The session is mutated in place and also
// returned through the result for caller convenience.
//
// Rule order per answer: history append, streak bookkeeping, promotion or
// demotion at a streak of two, acceleration at a level-up streak of four,
// termination checks (max-level exit, three-strikes abort, question cap).
func (e *Engine) ProcessAnswer(session *models.LevelTestSession, answer models.TestAnswer) (*ProcessResult, error) {
	if session.IsCompleted {
		return nil, ErrSessionCompleted
	}

	answer.Level = session.CurrentLevel
	if answer.AnsweredAt.IsZero() {
		answer.AnsweredAt = time.Now()
	}
	session.Answers = append(session.Answers, answer)
	session.TotalQuestions++
	session.CurrentQuestionIndex++

	result := &ProcessResult{PreviousLevel: session.CurrentLevel}

	if answer.IsCorrect {
		e.applyCorrect(session, result)
	} else {
		e.applyIncorrect(session, result)
	}

	// Global cap, independent of the branch outcome above.
	if session.TotalQuestions >= session.MaxQuestions && !result.TestCompleted {
		result.TestCompleted = true
		result.EndReason = models.EndReasonQuestionCap
	}

	if result.TestCompleted {
		e.complete(session, result.EndReason)
	}

	e.appendTrace(session)
	result.NewLevel = session.CurrentLevel
	result.LevelChanged = result.NewLevel != result.PreviousLevel

	return result, nil
}

func (e *Engine) applyCorrect(session *models.LevelTestSession, result *ProcessResult) {
	session.CorrectStreak++
	session.IncorrectStreak = 0
	session.LevelUpStreak++

	if session.CorrectStreak >= e.config.PromotionStreak {
		if next, ok := session.CurrentLevel.Next(); ok {
			session.CurrentLevel = next
		} else {
			// Two in a row while already at the top of the ladder: the
			// learner has nothing left to prove, end the test here.
			result.TestCompleted = true
			result.EndReason = models.EndReasonMaxLevel
		}
		session.CorrectStreak = 0
	}

	// Acceleration is evaluated independently of the single-step
	// promotion; both can fire on the same answer.
	if session.LevelUpStreak >= e.config.AccelerationStreak {
		session.CurrentLevel = session.CurrentLevel.Advance(e.config.AccelerationJump)
		session.LevelUpStreak = 0
	}
}

func (e *Engine) applyIncorrect(session *models.LevelTestSession, result *ProcessResult) {
	session.IncorrectStreak++
	session.CorrectStreak = 0
	session.LevelUpStreak = 0

	if session.IncorrectStreak >= e.config.DemotionStreak {
		if prev, ok := session.CurrentLevel.Previous(); ok {
			session.CurrentLevel = prev
		}
		// Reset regardless of whether a predecessor existed; at the
		// bottom of the ladder the level stays put but the streak clears.
		session.IncorrectStreak = 0
	}

	// The abort check deliberately ignores the demotion reset above: it
	// counts the trailing incorrect run in history, so the third strike
	// ends the test even though the stored streak was cleared on the
	// second.
	if session.TrailingIncorrectRun() >= e.config.AbortRun {
		result.TestCompleted = true
		result.EndReason = models.EndReasonThreeStrikes
	}
}

func (e *Engine) complete(session *models.LevelTestSession, endReason string) {
	final := session.CurrentLevel
	session.IsCompleted = true
	session.Status = models.SessionCompleted
	session.FinalLevel = &final
	if endReason != "" {
		session.EndReason = &endReason
	}
	now := time.Now()
	session.CompletedAt = &now
}

// appendTrace records the post-answer level in the session's JSONB trace.
func (e *Engine) appendTrace(session *models.LevelTestSession) {
	var trace []models.CEFRLevel
	if len(session.LevelTrace) > 0 {
		// A malformed trace would only come from a broken write path;
		// start over rather than fail the answer.
		_ = json.Unmarshal(session.LevelTrace, &trace)
	}
	trace = append(trace, session.CurrentLevel)
	if data, err := json.Marshal(trace); err == nil {
		session.LevelTrace = data
	}
}
