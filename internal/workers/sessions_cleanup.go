package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ingresounam/ingreso/internal/models"
	"github.com/ingresounam/ingreso/internal/tasks"
)

// HandleSessionsCleanup deletes server sessions whose expiry has passed
func HandleSessionsCleanup(ctx context.Context, _ *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	deleted, err := deleteExpiredSessions(ctx, db, time.Now())
	if err != nil {
		return err
	}

	logger.Info().
		Str("task_type", tasks.TypeSessionsCleanup).
		Int64("deleted", deleted).
		Msg("Expired sessions cleaned up")
	return nil
}

func deleteExpiredSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.UserSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
