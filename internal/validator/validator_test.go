package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type startRequest struct {
	StartLevel string `json:"start_level" validate:"omitempty,cefr_level"`
}

type answerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"required"`
	TimeTaken  int    `json:"time_taken" validate:"omitempty,time_taken"`
}

func TestValidator_CEFRLevelRule(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(&startRequest{StartLevel: "B1_2"}))
	assert.NoError(t, v.Validate(&startRequest{}), "empty level is allowed, defaults apply later")

	err := v.Validate(&startRequest{StartLevel: "B1_4"})
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "start_level", verrs[0].Field)
	assert.Equal(t, "cefr_level", verrs[0].Rule)
}

func TestValidator_TimeTakenRule(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(&answerRequest{QuestionID: 1, Answer: "a", TimeTaken: 30}))
	assert.NoError(t, v.Validate(&answerRequest{QuestionID: 1, Answer: "a"}))

	err := v.Validate(&answerRequest{QuestionID: 1, Answer: "a", TimeTaken: 7200})
	require.Error(t, err)
}

func TestValidator_RequiredFields(t *testing.T) {
	v := New()

	err := v.Validate(&answerRequest{})
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)

	fields := []string{verrs[0].Field, verrs[1].Field}
	assert.Contains(t, fields, "question_id")
	assert.Contains(t, fields, "answer")
}
