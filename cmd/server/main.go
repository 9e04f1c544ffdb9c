package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/config"
	"github.com/stemsi/exstem-timetable/internal/database"
	"github.com/stemsi/exstem-timetable/internal/handler"
	"github.com/stemsi/exstem-timetable/internal/logger"
	"github.com/stemsi/exstem-timetable/internal/repository"
	"github.com/stemsi/exstem-timetable/internal/router"
	"github.com/stemsi/exstem-timetable/internal/service"
	"github.com/stemsi/exstem-timetable/internal/validator"
	"github.com/stemsi/exstem-timetable/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Bool("redis", cfg.RedisEnabled).
		Msg("Starting ExStem Timetable")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Apply Migrations ──────────────────────────────────────────────
	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// nil when REDIS_ENABLED=false: class views are then built on every read
	// and the update stream is unavailable.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	adminRepo := repository.NewAdminRepository(pool)
	teacherRepo := repository.NewTeacherRepository(pool)
	timetableRepo := repository.NewTimetableRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	// Interfaces stay nil (not typed-nil pointers) when Redis is off.
	var (
		classCache    service.ClassViewCache
		classNotifier service.ClassUpdateNotifier
		classUpdates  handler.ClassUpdateSubscriber
	)
	if rdb != nil {
		redisCache := service.NewRedisTimetableCache(rdb, cfg.ClassViewTTL)
		classCache, classNotifier, classUpdates = redisCache, redisCache, redisCache
	}

	authService := service.NewAuthService(cfg, adminRepo, teacherRepo)
	timetableService := service.NewTimetableService(timetableRepo, classCache, classNotifier, log)
	teacherService := service.NewTeacherService(teacherRepo, authService, timetableService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Teacher:   handler.NewTeacherHandler(teacherService),
		Timetable: handler.NewTimetableHandler(timetableService),
		WS:        handler.NewWSHandler(timetableService, classUpdates, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})

	if rdb != nil && cfg.WarmClassViews {
		warmer := worker.NewClassViewWarmer(rdb, timetableService, log)
		go func() {
			defer close(workersDone)
			warmer.Start(workerCtx)
		}()
	} else {
		close(workersDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log, ctx.Done())

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers.
	workerCancel()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
