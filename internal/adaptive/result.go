package adaptive

import (
	"encoding/json"
	"math"

	"github.com/SAP-F-2025/leveltest-service/internal/models"
)

// TestResult is the summary derived from a session's answer history.
type TestResult struct {
	SessionID      uint               `json:"session_id"`
	LearnerID      string             `json:"learner_id"`
	FinalLevel     models.CEFRLevel   `json:"final_level"`
	StartLevel     models.CEFRLevel   `json:"start_level"`
	Score          int                `json:"score"` // percentage correct, rounded
	TotalQuestions int                `json:"total_questions"`
	CorrectAnswers int                `json:"correct_answers"`
	TestDuration   int                `json:"test_duration"` // seconds, sum of per-answer times
	EndReason      string             `json:"end_reason,omitempty"`
	LevelTrace     []models.CEFRLevel `json:"level_trace"`
}

// CalculateResult summarizes a session. It is a pure read: it does not
// require the session to be completed, although callers normally invoke it
// only after a terminal signal. FinalLevel falls back to the current level
// when no explicit final level was recorded.
func (e *Engine) CalculateResult(session *models.LevelTestSession) *TestResult {
	result := &TestResult{
		SessionID:      session.ID,
		LearnerID:      session.LearnerID,
		StartLevel:     session.StartLevel,
		FinalLevel:     session.CurrentLevel,
		TotalQuestions: session.TotalQuestions,
	}
	if session.FinalLevel != nil {
		result.FinalLevel = *session.FinalLevel
	}
	if session.EndReason != nil {
		result.EndReason = *session.EndReason
	}

	for _, a := range session.Answers {
		if a.IsCorrect {
			result.CorrectAnswers++
		}
		result.TestDuration += a.TimeTaken
	}

	if result.TotalQuestions > 0 {
		result.Score = int(math.Round(100 * float64(result.CorrectAnswers) / float64(result.TotalQuestions)))
	}

	if len(session.LevelTrace) > 0 {
		_ = json.Unmarshal(session.LevelTrace, &result.LevelTrace)
	}

	return result
}
