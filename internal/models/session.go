package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// Completion reasons recorded when a session reaches a terminal state.
const (
	EndReasonMaxLevel     = "max_level_reached"
	EndReasonThreeStrikes = "three_consecutive_incorrect"
	EndReasonQuestionCap  = "question_cap_reached"
	EndReasonAbandoned    = "abandoned"
)

// DefaultMaxQuestions is the hard cap on answers per test session.
const DefaultMaxQuestions = 50

// LevelTestSession tracks one learner's progress through an adaptive level
// test. The adaptive engine is the only writer of the counter and level
// fields; the service layer owns persistence and serializes writes per
// session.
type LevelTestSession struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	PublicID  string `json:"public_id" gorm:"uniqueIndex;size:36"`
	LearnerID string `json:"learner_id" gorm:"not null;index;size:255"`

	Status SessionStatus `json:"status" gorm:"default:in_progress;index"`

	// Adaptive state
	CurrentLevel         CEFRLevel `json:"current_level" gorm:"not null;size:8"`
	StartLevel           CEFRLevel `json:"start_level" gorm:"not null;size:8"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	TotalQuestions       int       `json:"total_questions"`
	MaxQuestions         int       `json:"max_questions" gorm:"default:50"`

	// Streak counters. CorrectStreak and IncorrectStreak are mutually
	// exclusive: whichever outcome arrives resets the other to zero.
	// LevelUpStreak counts consecutive correct answers independently of the
	// two-in-a-row promotion reset and drives the double jump.
	CorrectStreak   int `json:"correct_streak"`
	IncorrectStreak int `json:"incorrect_streak"`
	LevelUpStreak   int `json:"level_up_streak"`

	// Completion
	IsCompleted bool       `json:"is_completed" gorm:"index"`
	FinalLevel  *CEFRLevel `json:"final_level" gorm:"size:8"`
	EndReason   *string    `json:"end_reason" gorm:"size:64"`

	// LevelTrace records the level after each processed answer, oldest
	// first. Stored as a JSONB array of level strings.
	LevelTrace datatypes.JSON `json:"level_trace" gorm:"type:jsonb"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	Answers []TestAnswer `json:"answers" gorm:"foreignKey:SessionID"`
}

// TestAnswer is one learner response within a session. Records are
// append-only; nothing updates them after creation.
type TestAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	SessionID  uint `json:"session_id" gorm:"not null;index"`
	QuestionID uint `json:"question_id" gorm:"not null;index"`

	// Level is the ladder position the question was drawn from.
	Level      CEFRLevel `json:"level" gorm:"not null;size:8"`
	AnswerText string    `json:"answer_text" gorm:"type:text"`
	IsCorrect  bool      `json:"is_correct"`
	TimeTaken  int       `json:"time_taken"` // seconds
	AnsweredAt time.Time `json:"answered_at"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Session  LevelTestSession `json:"-" gorm:"foreignKey:SessionID"`
	Question LevelQuestion    `json:"-" gorm:"foreignKey:QuestionID"`
}

// AskedQuestionIDs returns the ids of every question already answered in
// this session, in answer order. Used to exclude repeats when drawing the
// next question.
func (s *LevelTestSession) AskedQuestionIDs() []uint {
	ids := make([]uint, len(s.Answers))
	for i, a := range s.Answers {
		ids[i] = a.QuestionID
	}
	return ids
}

// TrailingIncorrectRun returns the number of consecutive incorrect answers
// at the end of the session history. Unlike IncorrectStreak it is not
// reset by a demotion, which makes it the right input for the
// three-strikes abort check.
func (s *LevelTestSession) TrailingIncorrectRun() int {
	run := 0
	for i := len(s.Answers) - 1; i >= 0; i-- {
		if s.Answers[i].IsCorrect {
			break
		}
		run++
	}
	return run
}
