// Package events defines the domain events emitted by the level-test
// service and the publisher abstraction used to deliver them.
package events

import (
	"context"
	"time"
)

// Event types published over the level-test topic.
const (
	TestStarted   = "level_test.started"
	LevelChanged  = "level_test.level_changed"
	TestCompleted = "level_test.completed"
	TestAbandoned = "level_test.abandoned"
)

// Event is the envelope for every message the service publishes.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventPublisher delivers events to the message broker. Implementations
// must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// TestStartedEvent is the payload for level_test.started.
type TestStartedEvent struct {
	SessionID  string `json:"session_id"`
	LearnerID  string `json:"learner_id"`
	StartLevel string `json:"start_level"`
}

// LevelChangedEvent is the payload for level_test.level_changed.
type LevelChangedEvent struct {
	SessionID     string `json:"session_id"`
	LearnerID     string `json:"learner_id"`
	PreviousLevel string `json:"previous_level"`
	NewLevel      string `json:"new_level"`
	QuestionCount int    `json:"question_count"`
}

// TestCompletedEvent is the payload for level_test.completed and
// level_test.abandoned.
type TestCompletedEvent struct {
	SessionID      string `json:"session_id"`
	LearnerID      string `json:"learner_id"`
	FinalLevel     string `json:"final_level"`
	EndReason      string `json:"end_reason"`
	TotalQuestions int    `json:"total_questions"`
	Score          int    `json:"score"`
}
