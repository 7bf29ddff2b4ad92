package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/config"
	"github.com/ingresounam/ingreso/internal/logger"
	"github.com/ingresounam/ingreso/internal/server"
	"github.com/ingresounam/ingreso/internal/tasks"
	"github.com/ingresounam/ingreso/internal/workers"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	if !cfg.Redis.Enabled() {
		log.Fatal().Msg("REDIS_ADDRESS is required to run the worker")
	}

	log.Info().Str("version", version).Msg("Starting IngresoUNAM Asynq worker")

	// Initialize database (reuse server's database initialization)
	srv, err := server.New(cfg, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server (needed for DB)")
	}
	db := srv.GetDB()

	// Initialize Asynq client (for the cleanup scheduler)
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.Address,
	})
	defer asynqClient.Close()

	// Initialize Asynq server
	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr: cfg.Redis.Address,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			// Logging
			Logger: &asynqLogger{log: log},
		},
	)

	// Register task handlers
	workerLog := logger.Component(log, "worker")
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeFeedbackReceived, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleFeedbackReceived(ctx, t, db, workerLog)
	})
	mux.HandleFunc(tasks.TypeSessionsCleanup, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleSessionsCleanup(ctx, t, db, workerLog)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup scheduler goroutine
	go func() {
		if err := workers.StartCleanupScheduler(ctx, asynqClient, cfg.Worker.CleanupSchedule, logger.Component(log, "scheduler")); err != nil {
			log.Error().Err(err).Msg("Cleanup scheduler stopped")
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Info().Msg("Starting Asynq worker server...")
		if err := asynqServer.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("Asynq worker server failed")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")
	cancel()

	asynqServer.Shutdown()

	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}
