package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/leveltest-service/internal/cache"
	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.LevelQuestion) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return err
	}
	cache.InvalidateQuestionCache(ctx, q.cacheManager, question.ID, string(question.Level))
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelQuestion, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var question models.LevelQuestion

	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.LevelQuestion
		if err := db.WithContext(ctx).First(&dbQuestion, id).Error; err != nil {
			return nil, err
		}
		return &dbQuestion, nil
	})

	return &question, err
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.LevelQuestion) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(question).Error; err != nil {
		return err
	}
	cache.InvalidateQuestionCache(ctx, q.cacheManager, question.ID, string(question.Level))
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	var question models.LevelQuestion
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Delete(&models.LevelQuestion{}, id).Error; err != nil {
		return err
	}
	cache.InvalidateQuestionCache(ctx, q.cacheManager, id, string(question.Level))
	return nil
}

func (q *QuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.LevelQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	db := q.getDB(tx)
	if err := db.WithContext(ctx).CreateInBatches(questions, 100).Error; err != nil {
		return fmt.Errorf("failed to create questions in batch: %w", err)
	}
	cache.SafeInvalidatePattern(ctx, q.cacheManager.Question, "level:*")
	cache.SafeInvalidatePattern(ctx, q.cacheManager.Question, "list:*")
	return nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.LevelQuestion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := q.getDB(tx)
	var questions []*models.LevelQuestion
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.LevelQuestion, int64, error) {
	db := q.getDB(tx)
	var questions []*models.LevelQuestion
	var total int64

	query := db.WithContext(ctx).Model(&models.LevelQuestion{})
	query = q.helpers.ApplyQuestionFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count questions: %w", err)
	}

	query = q.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&questions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list questions: %w", err)
	}

	return questions, total, nil
}

func (q *QuestionPostgreSQL) GetByLevel(ctx context.Context, tx *gorm.DB, level models.CEFRLevel, filters repositories.QuestionFilters) ([]*models.LevelQuestion, int64, error) {
	filters.Level = &level
	return q.List(ctx, tx, filters)
}

// GetRandomByLevel draws one random active question at the given level,
// skipping ids the session has already used. Returns
// gorm.ErrRecordNotFound when the level's bank is exhausted.
func (q *QuestionPostgreSQL) GetRandomByLevel(ctx context.Context, tx *gorm.DB, filters repositories.RandomQuestionFilters) (*models.LevelQuestion, error) {
	db := q.getDB(tx)

	query := db.WithContext(ctx).
		Where("level = ? AND is_active = ?", filters.Level, true)

	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if len(filters.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", filters.ExcludeIDs)
	}

	var question models.LevelQuestion
	if err := query.Order("RANDOM()").First(&question).Error; err != nil {
		return nil, err
	}

	return &question, nil
}

func (q *QuestionPostgreSQL) CountByLevel(ctx context.Context, tx *gorm.DB) (map[models.CEFRLevel]int64, error) {
	db := q.getDB(tx)

	type levelRow struct {
		Level models.CEFRLevel
		Count int64
	}
	var rows []levelRow
	if err := db.WithContext(ctx).Model(&models.LevelQuestion{}).
		Select("level, count(*) as count").
		Where("is_active = ?", true).
		Group("level").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count questions by level: %w", err)
	}

	counts := make(map[models.CEFRLevel]int64, len(rows))
	for _, row := range rows {
		counts[row.Level] = row.Count
	}
	return counts, nil
}

func (q *QuestionPostgreSQL) GetQuestionStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.QuestionStats, error) {
	db := q.getDB(tx)
	stats := &repositories.QuestionStats{}

	cacheKey := fmt.Sprintf("question:%d", id)
	err := q.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		fresh := &repositories.QuestionStats{}

		var total int64
		if err := db.WithContext(ctx).Model(&models.TestAnswer{}).
			Where("question_id = ?", id).
			Count(&total).Error; err != nil {
			return nil, fmt.Errorf("failed to count question usage: %w", err)
		}
		fresh.UsageCount = int(total)

		if total > 0 {
			var correct int64
			if err := db.WithContext(ctx).Model(&models.TestAnswer{}).
				Where("question_id = ? AND is_correct = ?", id, true).
				Count(&correct).Error; err != nil {
				return nil, fmt.Errorf("failed to count correct answers: %w", err)
			}
			fresh.CorrectRate = float64(correct) / float64(total)

			var avg *float64
			if err := db.WithContext(ctx).Model(&models.TestAnswer{}).
				Select("avg(time_taken)").
				Where("question_id = ?", id).
				Scan(&avg).Error; err != nil {
				return nil, fmt.Errorf("failed to average time taken: %w", err)
			}
			if avg != nil {
				fresh.AverageTimeTaken = *avg
			}
		}

		return fresh, nil
	})

	return stats, err
}
