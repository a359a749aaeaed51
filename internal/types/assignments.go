//nolint:revive // types is a standard Go package name pattern
package types

import "github.com/google/uuid"

// TopicAssignment is a topic reconciled to a persisted question.
type TopicAssignment struct {
	QuestionID uuid.UUID `json:"question_id"`
	Topic      string    `json:"topic"`
}

// DifficultyAssignment is a difficulty level reconciled to a persisted question.
type DifficultyAssignment struct {
	QuestionID uuid.UUID `json:"question_id"`
	Level      int       `json:"level"`
}

// TopicResult is the accepted result of the topic-clustering pipeline.
type TopicResult struct {
	Clusters    []TopicCluster    `json:"clusters"`
	Assignments []TopicAssignment `json:"assignments"`
}
