package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
)

// SessionRepository persists level-test sessions. The tx parameter allows
// callers to run operations inside an existing transaction; pass nil to use
// the repository's own connection.
type SessionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, session *models.LevelTestSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelTestSession, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelTestSession, error)
	GetByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.LevelTestSession, error)
	Update(ctx context.Context, tx *gorm.DB, session *models.LevelTestSession) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters SessionFilters) ([]*models.LevelTestSession, int64, error)
	GetByLearner(ctx context.Context, tx *gorm.DB, learnerID string, filters SessionFilters) ([]*models.LevelTestSession, int64, error)
	GetActiveByLearner(ctx context.Context, tx *gorm.DB, learnerID string) (*models.LevelTestSession, error)

	// Statistics
	GetStats(ctx context.Context, tx *gorm.DB) (*SessionStats, error)
}

// AnswerRepository persists per-question answers. Answers are append-only.
type AnswerRepository interface {
	Create(ctx context.Context, tx *gorm.DB, answer *models.TestAnswer) error
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.TestAnswer, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error)
}
