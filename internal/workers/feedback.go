package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ingresounam/ingreso/internal/models"
	"github.com/ingresounam/ingreso/internal/tasks"
)

// HandleFeedbackReceived notifies admins of a new feedback entry and stamps it as notified
func HandleFeedbackReceived(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParseTaskPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	taskLogger := logger.With().
		Str("task_type", tasks.TypeFeedbackReceived).
		Str("feedback_id", payload.FeedbackID).
		Logger()

	var feedback models.Feedback
	if err := models.FindByID(db.WithContext(ctx), payload.FeedbackID, &feedback); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Deleted along with its author before we got to it
			taskLogger.Warn().Msg("Feedback no longer exists - skipping notification")
			return nil
		}
		return fmt.Errorf("failed to load feedback: %w", err)
	}

	if feedback.NotifiedAt != nil {
		taskLogger.Debug().Msg("Feedback already notified")
		return nil
	}

	var admins []models.User
	if err := db.WithContext(ctx).Where("role = ?", models.RoleAdmin).Find(&admins).Error; err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	for _, admin := range admins {
		taskLogger.Info().
			Str("admin_email", admin.Email).
			Str("type", feedback.Type).
			Str("page", feedback.Page).
			Str("from", feedback.UserEmail).
			Msg("New feedback awaiting review")
	}

	now := time.Now()
	if err := db.WithContext(ctx).Model(&feedback).Update("notified_at", now).Error; err != nil {
		return fmt.Errorf("failed to mark feedback notified: %w", err)
	}

	taskLogger.Info().Int("admins", len(admins)).Msg("Feedback notification sent")
	return nil
}
