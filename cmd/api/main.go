package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/speech2text/internal/api"
	"github.com/nikhilbhutani/speech2text/internal/api/handlers"
	"github.com/nikhilbhutani/speech2text/internal/audit"
	"github.com/nikhilbhutani/speech2text/internal/config"
	"github.com/nikhilbhutani/speech2text/internal/database"
	"github.com/nikhilbhutani/speech2text/internal/metrics"
	"github.com/nikhilbhutani/speech2text/internal/queue"
	"github.com/nikhilbhutani/speech2text/internal/scratch"
	"github.com/nikhilbhutani/speech2text/internal/stt"
	"github.com/nikhilbhutani/speech2text/internal/transcode"
	"github.com/nikhilbhutani/speech2text/internal/transcription"
	"github.com/nikhilbhutani/speech2text/internal/usage"
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
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	m := metrics.NewMetrics()

	target := transcode.Format{SampleRate: cfg.Transcoder.SampleRate, Channels: cfg.Transcoder.Channels}
	transcoder, err := transcode.New(transcode.Options{
		Backend:       cfg.Transcoder.Backend,
		FFmpegCommand: cfg.Transcoder.FFmpegCommand,
		Target:        target,
	})
	if err != nil {
		slog.Error("failed to create transcoder", "error", err)
		os.Exit(1)
	}

	recognizer, err := stt.New(ctx, stt.Options{
		Backend:               cfg.STT.Backend,
		GoogleAPIKey:          cfg.STT.GoogleAPIKey,
		GoogleCredentialsFile: cfg.STT.GoogleCredentialsFile,
		OpenAIKey:             cfg.STT.OpenAIKey,
		OpenAIBaseURL:         cfg.STT.OpenAIBaseURL,
		OpenAIModel:           cfg.STT.OpenAIModel,
		LocalBaseURL:          cfg.STT.LocalBaseURL,
		MockText:              cfg.STT.MockText,
	})
	if err != nil {
		slog.Error("failed to create speech recognizer", "backend", cfg.STT.Backend, "error", err)
		os.Exit(1)
	}
	if c, ok := recognizer.(interface{ Close() error }); ok {
		defer c.Close()
	}

	opts := transcription.Options{
		Language: cfg.STT.Language,
		Target:   target,
		Metrics:  m,
	}
	deps := api.Deps{Metrics: m, Ready: map[string]handlers.Pinger{}}

	// Database connection (optional; the audit trail is disabled without it)
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, running without audit trail", "error", err)
	} else {
		defer db.Close()

		if err := database.RunMigrations(ctx, db, database.Migrations()); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
		auditSvc := audit.NewService(db)
		opts.Audit = auditSvc
		deps.Audit = auditSvc
		deps.Ready["database"] = db
	}

	// Redis connection (optional; usage counters and sweeps are disabled without it)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without usage counters", "error", err)
	} else {
		counter := usage.NewCounter(rdb)
		opts.Usage = counter
		deps.Usage = counter
		deps.Ready["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

		qc := queue.NewClient(cfg.Redis)
		if err := qc.EnqueueScratchSweep(queue.ScratchSweepPayload{MaxAge: cfg.Scratch.MaxAge}); err != nil {
			slog.Warn("failed to enqueue startup sweep", "error", err)
		}
		qc.Close()
	}

	store := scratch.NewStore(cfg.Scratch.Dir)
	deps.Transcriber = transcription.NewService(store, transcoder, recognizer, opts)

	router := api.NewRouter(cfg, deps)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server",
			"addr", cfg.Addr(),
			"transcoder", transcoder.Name(),
			"recognizer", recognizer.Name(),
			"language", cfg.STT.Language,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
