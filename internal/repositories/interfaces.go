package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type SessionFilters struct {
	Status    *models.SessionStatus `json:"status"`
	LearnerID *string               `json:"learner_id"`
	Level     *models.CEFRLevel     `json:"level"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "started_at", "status"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type QuestionFilters struct {
	Type      *models.QuestionType `json:"type"`
	Level     *models.CEFRLevel    `json:"level"`
	CreatedBy *string              `json:"created_by"`
	IsActive  *bool                `json:"is_active"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`
	SortOrder string               `json:"sort_order"`
}

// RandomQuestionFilters selects one random question for the next step of a
// test. ExcludeIDs carries the session's already-asked questions.
type RandomQuestionFilters struct {
	Level      models.CEFRLevel     `json:"level"`
	Type       *models.QuestionType `json:"type"`
	ExcludeIDs []uint               `json:"exclude_ids"`
}

// ===== SHARED STATISTICS STRUCTS =====

type SessionStats struct {
	TotalSessions     int                            `json:"total_sessions"`
	CompletedSessions int                            `json:"completed_sessions"`
	AbandonedSessions int                            `json:"abandoned_sessions"`
	AverageQuestions  float64                        `json:"average_questions"`
	LevelDistribution map[models.CEFRLevel]int       `json:"level_distribution"`
	EndReasons        map[string]int                 `json:"end_reasons"`
	StatusBreakdown   map[models.SessionStatus]int64 `json:"status_breakdown"`
}

type QuestionStats struct {
	UsageCount       int     `json:"usage_count"`
	CorrectRate      float64 `json:"correct_rate"`
	AverageTimeTaken float64 `json:"average_time_taken"`
}

// IsNotFoundError reports whether err is the database's record-not-found
// error, letting services translate it into a domain sentinel.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
