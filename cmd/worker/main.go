package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/speech2text/internal/config"
	"github.com/nikhilbhutani/speech2text/internal/queue"
	"github.com/nikhilbhutani/speech2text/internal/queue/workers"
	"github.com/nikhilbhutani/speech2text/internal/scratch"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	redisOpt := queue.RedisOpt(cfg.Redis)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})

	registry := queue.NewHandlersRegistry()

	// Register workers
	sweepWorker := workers.NewSweepWorker(scratch.NewStore(cfg.Scratch.Dir), cfg.Scratch.MaxAge)
	registry.Register(queue.TypeScratchSweep, asynq.HandlerFunc(sweepWorker.ProcessTask))

	scheduler := asynq.NewScheduler(redisOpt, nil)
	sweepTask, err := queue.NewScratchSweepTask(queue.ScratchSweepPayload{MaxAge: cfg.Scratch.MaxAge})
	if err != nil {
		slog.Error("failed to build sweep task", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register(cfg.Worker.SweepSchedule, sweepTask); err != nil {
		slog.Error("invalid sweep schedule", "schedule", cfg.Worker.SweepSchedule, "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	slog.Info("starting worker",
		"concurrency", cfg.Worker.Concurrency,
		"sweep_schedule", cfg.Worker.SweepSchedule,
		"scratch_dir", cfg.Scratch.Dir,
	)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
