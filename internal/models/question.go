package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FillInBlank    QuestionType = "fill_blank"
	Listening      QuestionType = "listening"
	Reading        QuestionType = "reading"
)

// LevelQuestion is one item in the level-test question bank. Every
// question is pinned to a single CEFR sub-level; the engine asks the
// question repository for a random question at the session's current
// level, excluding ids already used.
type LevelQuestion struct {
	ID    uint         `json:"id" gorm:"primaryKey"`
	Type  QuestionType `json:"type" gorm:"not null;index"`
	Level CEFRLevel    `json:"level" gorm:"not null;index;size:8"`
	Text  string       `json:"text" gorm:"type:text;not null"`

	// Options stored as JSONB for flexibility across question types.
	Options datatypes.JSON `json:"options" gorm:"type:jsonb"`

	// CorrectAnswer is the canonical answer the service grades against.
	// It is stripped from any payload sent to a learner mid-test.
	CorrectAnswer string `json:"correct_answer,omitempty" gorm:"type:text;not null"`

	// Metadata
	Explanation *string   `json:"explanation" gorm:"type:text"`
	AudioURL    *string   `json:"audio_url" gorm:"size:500"`
	CreatedBy   string    `json:"created_by" gorm:"index;size:255"`
	IsActive    bool      `json:"is_active" gorm:"default:true;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Statistics (computed)
	UsageCount  int     `json:"usage_count" gorm:"-"`
	CorrectRate float64 `json:"correct_rate" gorm:"-"`
}

// MultipleChoiceOptions is the Options schema for multiple_choice
// questions.
type MultipleChoiceOptions struct {
	Choices   []Choice `json:"choices"`
	Randomize bool     `json:"randomize"`
}

type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Sanitized returns a copy of the question safe to send to a learner
// during an active test: the correct answer and explanation are removed.
func (q *LevelQuestion) Sanitized() *LevelQuestion {
	c := *q
	c.CorrectAnswer = ""
	c.Explanation = nil
	return &c
}
