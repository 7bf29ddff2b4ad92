package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	// Feedback tasks
	TypeFeedbackReceived = "feedback:received"

	// Maintenance tasks
	TypeSessionsCleanup = "sessions:cleanup"
)

// TaskPayload is the common payload for all tasks
type TaskPayload struct {
	FeedbackID string `json:"feedback_id,omitempty"`
}

// NewFeedbackReceivedTask creates a task that notifies admins of new feedback
func NewFeedbackReceivedTask(feedbackID string) (*asynq.Task, error) {
	payload, err := json.Marshal(TaskPayload{
		FeedbackID: feedbackID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeFeedbackReceived, payload, asynq.MaxRetry(5)), nil
}

// NewSessionsCleanupTask creates a task that purges expired server sessions
func NewSessionsCleanupTask() (*asynq.Task, error) {
	payload, err := json.Marshal(TaskPayload{})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeSessionsCleanup, payload, asynq.MaxRetry(1)), nil
}

// ParseTaskPayload parses task payload from Asynq task
func ParseTaskPayload(task *asynq.Task) (TaskPayload, error) {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
