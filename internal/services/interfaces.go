package services

import (
	"context"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/leveltest-service/internal/adaptive"
	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
)

// ===== REQUEST DTOs =====

// StartTestRequest starts a new level test. StartLevel is optional and
// defaults to the bottom of the ladder.
type StartTestRequest struct {
	StartLevel string `json:"start_level" validate:"omitempty,cefr_level"`
}

// SubmitAnswerRequest carries one answer for the session's pending
// question.
type SubmitAnswerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"required"`
	TimeTaken  int    `json:"time_taken" validate:"omitempty,time_taken"`
}

// CreateQuestionRequest adds a question to the level-test bank.
type CreateQuestionRequest struct {
	Type          string  `json:"type" validate:"required,oneof=multiple_choice fill_blank listening reading"`
	Level         string  `json:"level" validate:"required,cefr_level"`
	Text          string  `json:"text" validate:"required,min=3,max=5000"`
	Options       any     `json:"options"`
	CorrectAnswer string  `json:"correct_answer" validate:"required,max=2000"`
	Explanation   *string `json:"explanation" validate:"omitempty,max=5000"`
	AudioURL      *string `json:"audio_url" validate:"omitempty,url,max=500"`
}

// UpdateQuestionRequest updates an existing question. Nil fields are left
// unchanged.
type UpdateQuestionRequest struct {
	Type          *string `json:"type" validate:"omitempty,oneof=multiple_choice fill_blank listening reading"`
	Level         *string `json:"level" validate:"omitempty,cefr_level"`
	Text          *string `json:"text" validate:"omitempty,min=3,max=5000"`
	Options       any     `json:"options"`
	CorrectAnswer *string `json:"correct_answer" validate:"omitempty,max=2000"`
	Explanation   *string `json:"explanation" validate:"omitempty,max=5000"`
	AudioURL      *string `json:"audio_url" validate:"omitempty,url,max=500"`
	IsActive      *bool   `json:"is_active"`
}

// ===== RESPONSE DTOs =====

// SessionResponse is the learner-facing view of a session. NextQuestion is
// sanitized and nil once the session reaches a terminal state.
type SessionResponse struct {
	ID             uint                  `json:"id"`
	PublicID       string                `json:"public_id"`
	LearnerID      string                `json:"learner_id"`
	Status         models.SessionStatus  `json:"status"`
	CurrentLevel   models.CEFRLevel      `json:"current_level"`
	StartLevel     models.CEFRLevel      `json:"start_level"`
	TotalQuestions int                   `json:"total_questions"`
	MaxQuestions   int                   `json:"max_questions"`
	IsCompleted    bool                  `json:"is_completed"`
	FinalLevel     *models.CEFRLevel     `json:"final_level,omitempty"`
	EndReason      *string               `json:"end_reason,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	NextQuestion   *models.LevelQuestion `json:"next_question,omitempty"`
}

// SubmitAnswerResponse reports the outcome of one processed answer.
type SubmitAnswerResponse struct {
	IsCorrect      bool                  `json:"is_correct"`
	LevelChanged   bool                  `json:"level_changed"`
	PreviousLevel  models.CEFRLevel      `json:"previous_level"`
	CurrentLevel   models.CEFRLevel      `json:"current_level"`
	QuestionNumber int                   `json:"question_number"`
	TestCompleted  bool                  `json:"test_completed"`
	NextQuestion   *models.LevelQuestion `json:"next_question,omitempty"`
	Result         *adaptive.TestResult  `json:"result,omitempty"`
}

// ImportResult summarizes a bulk question import.
type ImportResult struct {
	TotalRows int      `json:"total_rows"`
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// ===== SERVICE INTERFACES =====

// LevelTestService runs adaptive level-test sessions.
type LevelTestService interface {
	// Core test flow
	Start(ctx context.Context, req *StartTestRequest, learnerID string) (*SessionResponse, error)
	SubmitAnswer(ctx context.Context, sessionID uint, req *SubmitAnswerRequest, learnerID string) (*SubmitAnswerResponse, error)
	Abandon(ctx context.Context, sessionID uint, learnerID string) error

	// Query operations
	GetByID(ctx context.Context, sessionID uint, learnerID string) (*SessionResponse, error)
	GetResult(ctx context.Context, sessionID uint, learnerID string) (*adaptive.TestResult, error)
	GetByLearner(ctx context.Context, learnerID string, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error)
	List(ctx context.Context, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error)

	// Statistics
	GetStats(ctx context.Context) (*repositories.SessionStats, error)
}

// QuestionService manages the level-test question bank.
type QuestionService interface {
	Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*models.LevelQuestion, error)
	GetByID(ctx context.Context, id uint, includeAnswer bool) (*models.LevelQuestion, error)
	Update(ctx context.Context, id uint, req *UpdateQuestionRequest, userID string) (*models.LevelQuestion, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.QuestionFilters) ([]*models.LevelQuestion, int64, error)
	CountByLevel(ctx context.Context) (map[models.CEFRLevel]int64, error)
	GetStats(ctx context.Context, id uint) (*repositories.QuestionStats, error)
}

// ImportExportService moves questions in and out of xlsx workbooks.
type ImportExportService interface {
	ImportQuestions(ctx context.Context, r io.Reader, creatorID string) (*ImportResult, error)
	ExportQuestions(ctx context.Context, filters repositories.QuestionFilters) (*excelize.File, error)
}

// ServiceManager owns service lifecycle and wiring.
type ServiceManager interface {
	LevelTest() LevelTestService
	Question() QuestionService
	ImportExport() ImportExportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
