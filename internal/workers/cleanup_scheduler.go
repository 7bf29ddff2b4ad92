package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/tasks"
)

// Enqueuer submits background tasks; satisfied by *asynq.Client
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StartCleanupScheduler enqueues a sessions cleanup task on every tick of the
// cron expression until ctx is cancelled
func StartCleanupScheduler(ctx context.Context, client Enqueuer, cronExpr string, logger zerolog.Logger) error {
	schedule, err := parseSchedule(cronExpr)
	if err != nil {
		return err
	}

	for {
		next := schedule.Next(time.Now())
		logger.Debug().Time("next_cleanup_at", next).Msg("Scheduled sessions cleanup")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		enqueueCleanup(client, logger)
	}
}

func enqueueCleanup(client Enqueuer, logger zerolog.Logger) {
	task, err := tasks.NewSessionsCleanupTask()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create cleanup task")
		return
	}

	info, err := client.Enqueue(task, asynq.Queue("low"), asynq.Unique(time.Hour))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to enqueue sessions cleanup")
		return
	}

	logger.Info().Str("task_id", info.ID).Msg("Enqueued sessions cleanup")
}

// parseSchedule parses a standard five-field cron expression
func parseSchedule(cronExpr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cronExpr, err)
	}
	return schedule, nil
}
