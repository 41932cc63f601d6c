package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
)

// QuestionRepository interface for question bank operations
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question *models.LevelQuestion) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelQuestion, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.LevelQuestion) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Bulk operations
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.LevelQuestion) error
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.LevelQuestion, error)

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.LevelQuestion, int64, error)
	GetByLevel(ctx context.Context, tx *gorm.DB, level models.CEFRLevel, filters QuestionFilters) ([]*models.LevelQuestion, int64, error)
	GetRandomByLevel(ctx context.Context, tx *gorm.DB, filters RandomQuestionFilters) (*models.LevelQuestion, error)

	// Statistics
	CountByLevel(ctx context.Context, tx *gorm.DB) (map[models.CEFRLevel]int64, error)
	GetQuestionStats(ctx context.Context, tx *gorm.DB, id uint) (*QuestionStats, error)
}
