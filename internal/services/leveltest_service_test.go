package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/leveltest-service/internal/adaptive"
	"github.com/SAP-F-2025/leveltest-service/internal/events"
	"github.com/SAP-F-2025/leveltest-service/internal/models"
	"github.com/SAP-F-2025/leveltest-service/internal/validator"
)

func newTestLevelTestService(repo *mockRepository) (LevelTestService, *events.MockEventPublisher) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := events.NewMockEventPublisher(logger)
	svc := NewLevelTestService(repo, nil, logger, validator.New(), adaptive.NewDefaultEngine(), publisher)
	return svc, publisher
}

func submitCorrect(t *testing.T, svc LevelTestService, sessionID uint, questionID uint, learnerID string) *SubmitAnswerResponse {
	t.Helper()
	resp, err := svc.SubmitAnswer(context.Background(), sessionID, &SubmitAnswerRequest{
		QuestionID: questionID,
		Answer:     "a",
		TimeTaken:  10,
	}, learnerID)
	require.NoError(t, err)
	return resp
}

func TestLevelTestService_Start(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	svc, publisher := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	assert.Equal(t, models.SessionInProgress, session.Status)
	assert.Equal(t, models.CEFRLevel("A1_1"), session.CurrentLevel)
	assert.Equal(t, models.CEFRLevel("A1_1"), session.StartLevel)
	assert.Equal(t, 50, session.MaxQuestions)
	assert.NotEmpty(t, session.PublicID)

	require.NotNil(t, session.NextQuestion)
	assert.Empty(t, session.NextQuestion.CorrectAnswer, "answer key must not leak to the learner")
	assert.Nil(t, session.NextQuestion.Explanation)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.TestStarted, published[0].Type)
}

func TestLevelTestService_Start_ExplicitLevel(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "B1_2", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "B1_2"}, "learner-1")
	require.NoError(t, err)
	assert.Equal(t, models.CEFRLevel("B1_2"), session.CurrentLevel)
}

func TestLevelTestService_Start_InvalidLevel(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestLevelTestService(repo)

	_, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "Z9_9"}, "learner-1")
	require.Error(t, err)
}

func TestLevelTestService_Start_EmptyBank(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestLevelTestService(repo)

	_, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.ErrorIs(t, err, ErrQuestionBankExhausted)
}

func TestLevelTestService_Start_ResumesActiveSession(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	svc, publisher := newTestLevelTestService(repo)

	first, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	second, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "C1_1"}, "learner-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "starting again must resume, not fork")
	assert.Equal(t, models.CEFRLevel("A1_1"), second.CurrentLevel)

	// Only the original start publishes an event.
	assert.Len(t, publisher.GetPublishedEvents(), 1)
}

func TestLevelTestService_SubmitAnswer_PromotionFlow(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	seedQuestions(repo, "A1_2", 3)
	svc, publisher := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	resp := submitCorrect(t, svc, session.ID, session.NextQuestion.ID, "learner-1")
	assert.True(t, resp.IsCorrect)
	assert.False(t, resp.LevelChanged)
	assert.Equal(t, models.CEFRLevel("A1_1"), resp.CurrentLevel)
	require.NotNil(t, resp.NextQuestion)

	resp = submitCorrect(t, svc, session.ID, resp.NextQuestion.ID, "learner-1")
	assert.True(t, resp.LevelChanged)
	assert.Equal(t, models.CEFRLevel("A1_1"), resp.PreviousLevel)
	assert.Equal(t, models.CEFRLevel("A1_2"), resp.CurrentLevel)
	assert.Equal(t, 2, resp.QuestionNumber)
	require.NotNil(t, resp.NextQuestion)
	assert.Equal(t, models.CEFRLevel("A1_2"), resp.NextQuestion.Level)

	// Both answers were persisted.
	count, err := repo.answer.CountBySession(context.Background(), nil, session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	var types []string
	for _, e := range publisher.GetPublishedEvents() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.LevelChanged)
}

func TestLevelTestService_SubmitAnswer_IncorrectGrading(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A2_1", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "A2_1"}, "learner-1")
	require.NoError(t, err)

	resp, err := svc.SubmitAnswer(context.Background(), session.ID, &SubmitAnswerRequest{
		QuestionID: session.NextQuestion.ID,
		Answer:     "definitely wrong",
	}, "learner-1")
	require.NoError(t, err)
	assert.False(t, resp.IsCorrect)
	assert.False(t, resp.TestCompleted)
}

func TestLevelTestService_SubmitAnswer_GradingIsLenient(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	// Case and surrounding whitespace must not fail a learner.
	resp, err := svc.SubmitAnswer(context.Background(), session.ID, &SubmitAnswerRequest{
		QuestionID: session.NextQuestion.ID,
		Answer:     "  A ",
	}, "learner-1")
	require.NoError(t, err)
	assert.True(t, resp.IsCorrect)
}

func TestLevelTestService_SubmitAnswer_MaxLevelCompletion(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "C2_3", 3)
	svc, publisher := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "C2_3"}, "learner-1")
	require.NoError(t, err)

	resp := submitCorrect(t, svc, session.ID, session.NextQuestion.ID, "learner-1")
	require.False(t, resp.TestCompleted)

	resp = submitCorrect(t, svc, session.ID, resp.NextQuestion.ID, "learner-1")
	assert.True(t, resp.TestCompleted)
	assert.Nil(t, resp.NextQuestion)
	require.NotNil(t, resp.Result)
	assert.Equal(t, models.CEFRLevel("C2_3"), resp.Result.FinalLevel)
	assert.Equal(t, models.EndReasonMaxLevel, resp.Result.EndReason)

	var types []string
	for _, e := range publisher.GetPublishedEvents() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.TestCompleted)
}

func TestLevelTestService_SubmitAnswer_AfterCompletion(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "C2_3", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "C2_3"}, "learner-1")
	require.NoError(t, err)

	resp := submitCorrect(t, svc, session.ID, session.NextQuestion.ID, "learner-1")
	resp = submitCorrect(t, svc, session.ID, resp.NextQuestion.ID, "learner-1")
	require.True(t, resp.TestCompleted)

	_, err = svc.SubmitAnswer(context.Background(), session.ID, &SubmitAnswerRequest{
		QuestionID: 999,
		Answer:     "a",
	}, "learner-1")
	require.ErrorIs(t, err, ErrSessionCompleted)
}

func TestLevelTestService_SubmitAnswer_WrongLearner(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(context.Background(), session.ID, &SubmitAnswerRequest{
		QuestionID: session.NextQuestion.ID,
		Answer:     "a",
	}, "intruder")
	require.Error(t, err)

	var permErr *PermissionError
	assert.True(t, errors.As(err, &permErr))
}

func TestLevelTestService_SubmitAnswer_UnknownQuestion(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(context.Background(), session.ID, &SubmitAnswerRequest{
		QuestionID: 999,
		Answer:     "a",
	}, "learner-1")
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestLevelTestService_SubmitAnswer_DuplicateQuestion(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	questionID := session.NextQuestion.ID
	submitCorrect(t, svc, session.ID, questionID, "learner-1")

	_, err = svc.SubmitAnswer(context.Background(), session.ID, &SubmitAnswerRequest{
		QuestionID: questionID,
		Answer:     "a",
	}, "learner-1")
	require.Error(t, err)

	var ruleErr *BusinessRuleError
	require.True(t, errors.As(err, &ruleErr))
	assert.Equal(t, "question_already_answered", ruleErr.Rule)
}

func TestLevelTestService_SubmitAnswer_SessionNotFound(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestLevelTestService(repo)

	_, err := svc.SubmitAnswer(context.Background(), 42, &SubmitAnswerRequest{
		QuestionID: 1,
		Answer:     "a",
	}, "learner-1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLevelTestService_Abandon(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "A1_1", 3)
	svc, publisher := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{}, "learner-1")
	require.NoError(t, err)

	require.NoError(t, svc.Abandon(context.Background(), session.ID, "learner-1"))

	stored := repo.session.sessions[session.ID]
	assert.Equal(t, models.SessionAbandoned, stored.Status)
	assert.True(t, stored.IsCompleted)
	require.NotNil(t, stored.EndReason)
	assert.Equal(t, models.EndReasonAbandoned, *stored.EndReason)
	require.NotNil(t, stored.FinalLevel)
	assert.Equal(t, models.CEFRLevel("A1_1"), *stored.FinalLevel)

	// Abandoning twice is a conflict.
	err = svc.Abandon(context.Background(), session.ID, "learner-1")
	require.ErrorIs(t, err, ErrSessionNotActive)

	var types []string
	for _, e := range publisher.GetPublishedEvents() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.TestAbandoned)
}

func TestLevelTestService_GetResult(t *testing.T) {
	repo := newMockRepository()
	seedQuestions(repo, "C2_3", 3)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "C2_3"}, "learner-1")
	require.NoError(t, err)

	// A running test has no result yet.
	_, err = svc.GetResult(context.Background(), session.ID, "learner-1")
	require.Error(t, err)
	var ruleErr *BusinessRuleError
	require.True(t, errors.As(err, &ruleErr))
	assert.Equal(t, "result_requires_completion", ruleErr.Rule)

	resp := submitCorrect(t, svc, session.ID, session.NextQuestion.ID, "learner-1")
	resp = submitCorrect(t, svc, session.ID, resp.NextQuestion.ID, "learner-1")
	require.True(t, resp.TestCompleted)

	result, err := svc.GetResult(context.Background(), session.ID, "learner-1")
	require.NoError(t, err)
	assert.Equal(t, models.CEFRLevel("C2_3"), result.FinalLevel)
	assert.Equal(t, 2, result.TotalQuestions)
	assert.Equal(t, 2, result.CorrectAnswers)
}

func TestLevelTestService_QuestionReuseWhenBankThin(t *testing.T) {
	// One question at the level: after answering it, the draw falls back
	// to reuse instead of stalling the test.
	repo := newMockRepository()
	seedQuestions(repo, "A2_2", 1)
	svc, _ := newTestLevelTestService(repo)

	session, err := svc.Start(context.Background(), &StartTestRequest{StartLevel: "A2_2"}, "learner-1")
	require.NoError(t, err)

	resp, err := svc.SubmitAnswer(context.Background(), session.ID, &SubmitAnswerRequest{
		QuestionID: session.NextQuestion.ID,
		Answer:     "wrong",
	}, "learner-1")
	require.NoError(t, err)
	require.NotNil(t, resp.NextQuestion)
	assert.Equal(t, session.NextQuestion.ID, resp.NextQuestion.ID)
}
