package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
)

// In-memory repository doubles shared by the service tests.

type mockRepository struct {
	session  *mockSessionRepository
	answer   *mockAnswerRepository
	question *mockQuestionRepository
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		session:  &mockSessionRepository{sessions: make(map[uint]*models.LevelTestSession)},
		answer:   &mockAnswerRepository{},
		question: &mockQuestionRepository{stats: make(map[uint]*repositories.QuestionStats)},
	}
}

func (m *mockRepository) Session() repositories.SessionRepository   { return m.session }
func (m *mockRepository) Answer() repositories.AnswerRepository     { return m.answer }
func (m *mockRepository) Question() repositories.QuestionRepository { return m.question }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== SESSIONS =====

type mockSessionRepository struct {
	sessions map[uint]*models.LevelTestSession
	nextID   uint
}

func (m *mockSessionRepository) Create(ctx context.Context, tx *gorm.DB, session *models.LevelTestSession) error {
	m.nextID++
	session.ID = m.nextID
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelTestSession, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (m *mockSessionRepository) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelTestSession, error) {
	return m.GetByID(ctx, tx, id)
}

func (m *mockSessionRepository) GetByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.LevelTestSession, error) {
	for _, s := range m.sessions {
		if s.PublicID == publicID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSessionRepository) Update(ctx context.Context, tx *gorm.DB, session *models.LevelTestSession) error {
	if _, ok := m.sessions[session.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error) {
	var out []*models.LevelTestSession
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}

func (m *mockSessionRepository) GetByLearner(ctx context.Context, tx *gorm.DB, learnerID string, filters repositories.SessionFilters) ([]*models.LevelTestSession, int64, error) {
	var out []*models.LevelTestSession
	for _, s := range m.sessions {
		if s.LearnerID == learnerID {
			out = append(out, s)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockSessionRepository) GetActiveByLearner(ctx context.Context, tx *gorm.DB, learnerID string) (*models.LevelTestSession, error) {
	for _, s := range m.sessions {
		if s.LearnerID == learnerID && s.Status == models.SessionInProgress {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSessionRepository) GetStats(ctx context.Context, tx *gorm.DB) (*repositories.SessionStats, error) {
	return &repositories.SessionStats{TotalSessions: len(m.sessions)}, nil
}

// ===== ANSWERS =====

type mockAnswerRepository struct {
	answers []*models.TestAnswer
	nextID  uint
}

func (m *mockAnswerRepository) Create(ctx context.Context, tx *gorm.DB, answer *models.TestAnswer) error {
	m.nextID++
	answer.ID = m.nextID
	stored := *answer
	m.answers = append(m.answers, &stored)
	return nil
}

func (m *mockAnswerRepository) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.TestAnswer, error) {
	var out []*models.TestAnswer
	for _, a := range m.answers {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAnswerRepository) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	answers, _ := m.GetBySession(ctx, tx, sessionID)
	return int64(len(answers)), nil
}

// ===== QUESTIONS =====

type mockQuestionRepository struct {
	questions []*models.LevelQuestion
	stats     map[uint]*repositories.QuestionStats
	nextID    uint
	deleted   []uint
}

func (m *mockQuestionRepository) Create(ctx context.Context, tx *gorm.DB, question *models.LevelQuestion) error {
	m.nextID++
	question.ID = m.nextID
	m.questions = append(m.questions, question)
	return nil
}

func (m *mockQuestionRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LevelQuestion, error) {
	for _, q := range m.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockQuestionRepository) Update(ctx context.Context, tx *gorm.DB, question *models.LevelQuestion) error {
	for i, q := range m.questions {
		if q.ID == question.ID {
			m.questions[i] = question
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockQuestionRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	for i, q := range m.questions {
		if q.ID == id {
			m.questions = append(m.questions[:i], m.questions[i+1:]...)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockQuestionRepository) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.LevelQuestion) error {
	for _, q := range questions {
		if err := m.Create(ctx, tx, q); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockQuestionRepository) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.LevelQuestion, error) {
	var out []*models.LevelQuestion
	for _, id := range ids {
		if q, err := m.GetByID(ctx, tx, id); err == nil {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *mockQuestionRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.LevelQuestion, int64, error) {
	var out []*models.LevelQuestion
	for _, q := range m.questions {
		if filters.Level != nil && q.Level != *filters.Level {
			continue
		}
		if filters.IsActive != nil && q.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, q)
	}
	return out, int64(len(out)), nil
}

func (m *mockQuestionRepository) GetByLevel(ctx context.Context, tx *gorm.DB, level models.CEFRLevel, filters repositories.QuestionFilters) ([]*models.LevelQuestion, int64, error) {
	filters.Level = &level
	return m.List(ctx, tx, filters)
}

// GetRandomByLevel is deterministic in tests: it returns the first active
// non-excluded question at the level, in insertion order.
func (m *mockQuestionRepository) GetRandomByLevel(ctx context.Context, tx *gorm.DB, filters repositories.RandomQuestionFilters) (*models.LevelQuestion, error) {
	excluded := make(map[uint]bool, len(filters.ExcludeIDs))
	for _, id := range filters.ExcludeIDs {
		excluded[id] = true
	}

	for _, q := range m.questions {
		if q.Level != filters.Level || !q.IsActive || excluded[q.ID] {
			continue
		}
		if filters.Type != nil && q.Type != *filters.Type {
			continue
		}
		return q, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockQuestionRepository) CountByLevel(ctx context.Context, tx *gorm.DB) (map[models.CEFRLevel]int64, error) {
	counts := make(map[models.CEFRLevel]int64)
	for _, q := range m.questions {
		if q.IsActive {
			counts[q.Level]++
		}
	}
	return counts, nil
}

func (m *mockQuestionRepository) GetQuestionStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.QuestionStats, error) {
	if _, err := m.GetByID(ctx, tx, id); err != nil {
		return nil, err
	}
	if s, ok := m.stats[id]; ok {
		return s, nil
	}
	return &repositories.QuestionStats{}, nil
}

// seedQuestions adds n active questions at the given level, all with the
// canonical answer "a".
func seedQuestions(repo *mockRepository, level models.CEFRLevel, n int) {
	for i := 0; i < n; i++ {
		_ = repo.question.Create(context.Background(), nil, &models.LevelQuestion{
			Type:          models.MultipleChoice,
			Level:         level,
			Text:          fmt.Sprintf("%s question %d", level, i+1),
			CorrectAnswer: "a",
			CreatedBy:     "seeder",
			IsActive:      true,
		})
	}
}
