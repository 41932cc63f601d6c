package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/leveltest-service/internal/cache"
	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
)

type SessionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewSessionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SessionRepository {
	return &SessionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (s *SessionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.LevelTestSession) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(session).Error
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelTestSession, error) {
	db := s.getDB(tx)
	var session models.LevelTestSession
	if err := db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelTestSession, error) {
	db := s.getDB(tx)
	var session models.LevelTestSession
	if err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("test_answers.id ASC")
		}).
		First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.LevelTestSession, error) {
	db := s.getDB(tx)
	var session models.LevelTestSession
	if err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("test_answers.id ASC")
		}).
		Where("public_id = ?", publicID).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Update persists the session row only. Answers are append-only and
// written through the answer repository, never via association saves.
func (s *SessionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, session *models.LevelTestSession) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).Omit(clause.Associations).Save(session).Error; err != nil {
		return err
	}
	cache.InvalidateSessionCache(ctx, s.cacheManager, session.ID, session.LearnerID)
	return nil
}

func (s *SessionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error) {
	db := s.getDB(tx)
	var sessions []*models.LevelTestSession
	var total int64

	query := db.WithContext(ctx).Model(&models.LevelTestSession{})
	query = s.helpers.ApplySessionFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, total, nil
}

func (s *SessionPostgreSQL) GetByLearner(ctx context.Context, tx *gorm.DB, learnerID string, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error) {
	filters.LearnerID = &learnerID
	return s.List(ctx, tx, filters)
}

// GetActiveByLearner returns the learner's in-progress session, if any.
// At most one session per learner can be active at a time.
func (s *SessionPostgreSQL) GetActiveByLearner(ctx context.Context, tx *gorm.DB, learnerID string) (*models.LevelTestSession, error) {
	db := s.getDB(tx)
	var session models.LevelTestSession
	if err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("test_answers.id ASC")
		}).
		Where("learner_id = ? AND status = ?", learnerID, models.SessionInProgress).
		Order("started_at DESC").
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB) (*repositories.SessionStats, error) {
	db := s.getDB(tx)
	stats := &repositories.SessionStats{
		LevelDistribution: make(map[models.CEFRLevel]int),
		EndReasons:        make(map[string]int),
		StatusBreakdown:   make(map[models.SessionStatus]int64),
	}

	cacheKey := "sessions:global"
	err := s.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		fresh := &repositories.SessionStats{
			LevelDistribution: make(map[models.CEFRLevel]int),
			EndReasons:        make(map[string]int),
			StatusBreakdown:   make(map[models.SessionStatus]int64),
		}

		var total int64
		if err := db.WithContext(ctx).Model(&models.LevelTestSession{}).Count(&total).Error; err != nil {
			return nil, fmt.Errorf("failed to count sessions: %w", err)
		}
		fresh.TotalSessions = int(total)

		type statusRow struct {
			Status models.SessionStatus
			Count  int64
		}
		var statusRows []statusRow
		if err := db.WithContext(ctx).Model(&models.LevelTestSession{}).
			Select("status, count(*) as count").
			Group("status").
			Scan(&statusRows).Error; err != nil {
			return nil, fmt.Errorf("failed to group sessions by status: %w", err)
		}
		for _, row := range statusRows {
			fresh.StatusBreakdown[row.Status] = row.Count
			switch row.Status {
			case models.SessionCompleted:
				fresh.CompletedSessions = int(row.Count)
			case models.SessionAbandoned:
				fresh.AbandonedSessions = int(row.Count)
			}
		}

		type levelRow struct {
			FinalLevel models.CEFRLevel
			Count      int
		}
		var levelRows []levelRow
		if err := db.WithContext(ctx).Model(&models.LevelTestSession{}).
			Select("final_level, count(*) as count").
			Where("final_level IS NOT NULL").
			Group("final_level").
			Scan(&levelRows).Error; err != nil {
			return nil, fmt.Errorf("failed to group sessions by level: %w", err)
		}
		for _, row := range levelRows {
			fresh.LevelDistribution[row.FinalLevel] = row.Count
		}

		type reasonRow struct {
			EndReason string
			Count     int
		}
		var reasonRows []reasonRow
		if err := db.WithContext(ctx).Model(&models.LevelTestSession{}).
			Select("end_reason, count(*) as count").
			Where("end_reason IS NOT NULL").
			Group("end_reason").
			Scan(&reasonRows).Error; err != nil {
			return nil, fmt.Errorf("failed to group sessions by end reason: %w", err)
		}
		for _, row := range reasonRows {
			fresh.EndReasons[row.EndReason] = row.Count
		}

		var avg *float64
		if err := db.WithContext(ctx).Model(&models.LevelTestSession{}).
			Select("avg(total_questions)").
			Where("status = ?", models.SessionCompleted).
			Scan(&avg).Error; err != nil {
			return nil, fmt.Errorf("failed to average question counts: %w", err)
		}
		if avg != nil {
			fresh.AverageQuestions = *avg
		}

		return fresh, nil
	})

	return stats, err
}

// AnswerPostgreSQL implements the answer repository. Answers are written
// inside the same transaction as their session update, so this repository
// carries no cache.
type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AnswerPostgreSQL) Create(ctx context.Context, tx *gorm.DB, answer *models.TestAnswer) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(answer).Error
}

func (a *AnswerPostgreSQL) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.TestAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.TestAnswer
	if err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.TestAnswer{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
