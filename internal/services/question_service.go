package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuestionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) QuestionService {
	return &questionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

func (s *questionService) Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*models.LevelQuestion, error) {
	s.logger.Info("Creating question", "level", req.Level, "type", req.Type, "creator_id", creatorID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	level, err := models.ParseCEFRLevel(req.Level)
	if err != nil {
		return nil, ErrInvalidLevel
	}

	options, err := marshalOptions(req.Options)
	if err != nil {
		return nil, err
	}

	question := &models.LevelQuestion{
		Type:          models.QuestionType(req.Type),
		Level:         level,
		Text:          req.Text,
		Options:       options,
		CorrectAnswer: req.CorrectAnswer,
		Explanation:   req.Explanation,
		AudioURL:      req.AudioURL,
		CreatedBy:     creatorID,
		IsActive:      true,
	}

	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	return question, nil
}

// GetByID returns a question. includeAnswer controls whether the canonical
// answer and explanation are present; learner-facing callers pass false.
func (s *questionService) GetByID(ctx context.Context, id uint, includeAnswer bool) (*models.LevelQuestion, error) {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	if !includeAnswer {
		return question.Sanitized(), nil
	}
	return question, nil
}

func (s *questionService) Update(ctx context.Context, id uint, req *UpdateQuestionRequest, userID string) (*models.LevelQuestion, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	if req.Type != nil {
		question.Type = models.QuestionType(*req.Type)
	}
	if req.Level != nil {
		level, err := models.ParseCEFRLevel(*req.Level)
		if err != nil {
			return nil, ErrInvalidLevel
		}
		question.Level = level
	}
	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.Options != nil {
		options, err := marshalOptions(req.Options)
		if err != nil {
			return nil, err
		}
		question.Options = options
	}
	if req.CorrectAnswer != nil {
		question.CorrectAnswer = *req.CorrectAnswer
	}
	if req.Explanation != nil {
		question.Explanation = req.Explanation
	}
	if req.AudioURL != nil {
		question.AudioURL = req.AudioURL
	}
	if req.IsActive != nil {
		question.IsActive = *req.IsActive
	}

	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	s.logger.Info("Question updated", "question_id", id, "user_id", userID)
	return question, nil
}

// Delete removes a question from the bank. Questions referenced by
// historical answers are deactivated instead of deleted so past sessions
// stay reconstructable.
func (s *questionService) Delete(ctx context.Context, id uint, userID string) error {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}

	stats, err := s.repo.Question().GetQuestionStats(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to get question stats: %w", err)
	}

	if stats.UsageCount > 0 {
		question.IsActive = false
		if err := s.repo.Question().Update(ctx, nil, question); err != nil {
			return fmt.Errorf("failed to deactivate question: %w", err)
		}
		s.logger.Info("Question deactivated instead of deleted",
			"question_id", id, "usage_count", stats.UsageCount, "user_id", userID)
		return nil
	}

	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	s.logger.Info("Question deleted", "question_id", id, "user_id", userID)
	return nil
}

func (s *questionService) List(ctx context.Context, filters repositories.QuestionFilters) ([]*models.LevelQuestion, int64, error) {
	return s.repo.Question().List(ctx, nil, filters)
}

func (s *questionService) CountByLevel(ctx context.Context) (map[models.CEFRLevel]int64, error) {
	return s.repo.Question().CountByLevel(ctx, nil)
}

func (s *questionService) GetStats(ctx context.Context, id uint) (*repositories.QuestionStats, error) {
	stats, err := s.repo.Question().GetQuestionStats(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question stats: %w", err)
	}
	return stats, nil
}

func marshalOptions(options any) (datatypes.JSON, error) {
	if options == nil {
		return nil, nil
	}
	data, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question options: %w", err)
	}
	return data, nil
}
