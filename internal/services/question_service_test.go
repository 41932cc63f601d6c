package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/repositories"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

func newTestQuestionService(repo *mockRepository) QuestionService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewQuestionService(repo, nil, logger, validator.New())
}

func validCreateRequest() *CreateQuestionRequest {
	return &CreateQuestionRequest{
		Type:          "multiple_choice",
		Level:         "B1_1",
		Text:          "Choose the correct form: She ___ to work every day.",
		Options:       models.MultipleChoiceOptions{Choices: []models.Choice{{ID: "a", Text: "goes"}, {ID: "b", Text: "go"}}},
		CorrectAnswer: "a",
	}
}

func TestQuestionService_Create(t *testing.T) {
	repo := newMockRepository()
	svc := newTestQuestionService(repo)

	question, err := svc.Create(context.Background(), validCreateRequest(), "teacher-1")
	require.NoError(t, err)

	assert.NotZero(t, question.ID)
	assert.Equal(t, models.MultipleChoice, question.Type)
	assert.Equal(t, models.CEFRLevel("B1_1"), question.Level)
	assert.Equal(t, "teacher-1", question.CreatedBy)
	assert.True(t, question.IsActive)
	assert.NotEmpty(t, question.Options)
}

func TestQuestionService_Create_Invalid(t *testing.T) {
	repo := newMockRepository()
	svc := newTestQuestionService(repo)

	req := validCreateRequest()
	req.Level = "B1_9"
	_, err := svc.Create(context.Background(), req, "teacher-1")
	require.Error(t, err)

	req = validCreateRequest()
	req.Text = ""
	_, err = svc.Create(context.Background(), req, "teacher-1")
	require.Error(t, err)
}

func TestQuestionService_GetByID_Sanitizes(t *testing.T) {
	repo := newMockRepository()
	svc := newTestQuestionService(repo)

	created, err := svc.Create(context.Background(), validCreateRequest(), "teacher-1")
	require.NoError(t, err)

	withAnswer, err := svc.GetByID(context.Background(), created.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "a", withAnswer.CorrectAnswer)

	sanitized, err := svc.GetByID(context.Background(), created.ID, false)
	require.NoError(t, err)
	assert.Empty(t, sanitized.CorrectAnswer)
	assert.Nil(t, sanitized.Explanation)
}

func TestQuestionService_GetByID_NotFound(t *testing.T) {
	repo := newMockRepository()
	svc := newTestQuestionService(repo)

	_, err := svc.GetByID(context.Background(), 404, true)
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestQuestionService_Update(t *testing.T) {
	repo := newMockRepository()
	svc := newTestQuestionService(repo)

	created, err := svc.Create(context.Background(), validCreateRequest(), "teacher-1")
	require.NoError(t, err)

	newText := "Pick the right option: He ___ football on Sundays."
	newLevel := "B1_2"
	updated, err := svc.Update(context.Background(), created.ID, &UpdateQuestionRequest{
		Text:  &newText,
		Level: &newLevel,
	}, "teacher-2")
	require.NoError(t, err)

	assert.Equal(t, newText, updated.Text)
	assert.Equal(t, models.CEFRLevel("B1_2"), updated.Level)
	// Untouched fields survive the patch.
	assert.Equal(t, "a", updated.CorrectAnswer)
	assert.Equal(t, models.MultipleChoice, updated.Type)
}

func TestQuestionService_Delete_UnusedIsRemoved(t *testing.T) {
	repo := newMockRepository()
	svc := newTestQuestionService(repo)

	created, err := svc.Create(context.Background(), validCreateRequest(), "teacher-1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID, "teacher-1"))
	assert.Contains(t, repo.question.deleted, created.ID)
}

func TestQuestionService_Delete_UsedIsDeactivated(t *testing.T) {
	repo := newMockRepository()
	svc := newTestQuestionService(repo)

	created, err := svc.Create(context.Background(), validCreateRequest(), "teacher-1")
	require.NoError(t, err)
	repo.question.stats[created.ID] = &repositories.QuestionStats{UsageCount: 12, CorrectRate: 0.5}

	require.NoError(t, svc.Delete(context.Background(), created.ID, "teacher-1"))

	// Historical answers reference the question; it is deactivated, not
	// removed.
	assert.NotContains(t, repo.question.deleted, created.ID)
	stored, err := repo.question.GetByID(context.Background(), nil, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestQuestionService_CountByLevel(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 2)
	seedQuestions(repo, "B2_3", 5)
	svc := newTestQuestionService(repo)

	counts, err := svc.CountByLevel(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts["A1_1"])
	assert.EqualValues(t, 5, counts["B2_3"])
}
