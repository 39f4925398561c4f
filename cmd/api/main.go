package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stageline/webinar-mailer/internal/config"
	"github.com/stageline/webinar-mailer/internal/handler"
	"github.com/stageline/webinar-mailer/internal/infra/postgresql"
	"github.com/stageline/webinar-mailer/internal/infra/postgresql/migrations"
	infraredis "github.com/stageline/webinar-mailer/internal/infra/redis"
	"github.com/stageline/webinar-mailer/internal/mailer"
	"github.com/stageline/webinar-mailer/internal/observability"
	"github.com/stageline/webinar-mailer/internal/repository"
	"github.com/stageline/webinar-mailer/internal/service"
	"github.com/stageline/webinar-mailer/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const schedulerLockKey = "webinar-mailer:scheduler-lock"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	// The dispatch model assumes exactly one active scheduler; refuse to
	// start alongside another instance.
	lock, err := infraredis.NewInstanceLock(rdb, schedulerLockKey, 0)
	if err != nil {
		return err
	}
	if err := lock.Acquire(ctx); err != nil {
		if errors.Is(err, infraredis.ErrLockHeld) {
			return fmt.Errorf("another webinar-mailer instance is active: %w", err)
		}
		return err
	}
	defer lock.Release(context.Background()) //nolint:errcheck

	scheduleRepo := repository.NewGormScheduleRepo(db)
	attendeeRepo := repository.NewGormAttendeeRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	sender, err := mailer.NewSendgridMailer(cfg.SendgridAPIKey, cfg.FromEmail, cfg.FromName)
	if err != nil {
		return fmt.Errorf("mailer initialization failed: %w", err)
	}

	composer := &mailer.Composer{
		WebinarTitle:   cfg.WebinarTitle,
		WebinarJoinURL: cfg.WebinarJoinURL,
		SurveyBaseURL:  cfg.SurveyBaseURL,
		WebinarStartAt: cfg.WebinarStart(),
	}

	metrics := observability.NewMetrics()

	dispatcher, err := service.NewDispatcher(
		scheduleRepo,
		attendeeRepo,
		attemptRepo,
		sender,
		composer,
		cfg.SendDelay(),
		logger,
	)
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(scheduleRepo, dispatcher, cfg.PollInterval(), logger)
	if err != nil {
		return err
	}
	scheduler.SetMetrics(metrics)

	control, err := service.NewControlService(
		scheduleRepo,
		attemptRepo,
		dispatcher,
		scheduler,
		sender,
		composer,
		cfg.DisplayLocation(),
		logger,
	)
	if err != nil {
		return err
	}

	attendees, err := service.NewAttendeeService(attendeeRepo, logger)
	if err != nil {
		return err
	}

	if err := control.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("failed to seed default schedules: %w", err)
	}

	if cfg.ResetStrandedOnStart {
		if err := control.RecoverStranded(ctx); err != nil {
			return fmt.Errorf("failed to recover stranded slots: %w", err)
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, scheduler)
	if err := handler.RegisterScheduleRoutes(app, control); err != nil {
		return err
	}
	if err := handler.RegisterAttendeeRoutes(app, attendees); err != nil {
		return err
	}
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metrics.Handler(),
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("webinar-mailer api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		logger.Info("metrics endpoint started", zap.Int("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
		return app.Shutdown()
	})

	g.Go(func() error {
		return lock.KeepAlive(groupCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
