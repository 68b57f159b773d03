package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-tracker/internal/api/http"
	"github.com/spec-kit/ticket-tracker/internal/api/http/handlers"
	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/persistence"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
	"github.com/spec-kit/ticket-tracker/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handlers.Check{}
	var (
		users   repository.UserRepository
		tickets repository.TicketRepository
		history repository.TicketHistoryRepository
	)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	switch {
	case errors.Is(err, persistence.ErrNoDSN) && cfg.App.Env != "production":
		logger.Warn("POSTGRES_DSN not set, using in-memory repositories")
		mem := repository.NewMemoryStore()
		users, tickets, history = mem.Users(), mem.Tickets(), mem.History()
	case err != nil:
		logger.Fatal("failed to connect postgres", zap.Error(err))
	default:
		defer pg.Close()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		users = repository.NewUserRepository(pg.PoolHandle())
		tickets = repository.NewTicketRepository(pg.PoolHandle())
		history = repository.NewTicketHistoryRepository(pg.PoolHandle())
		checks["postgres"] = pg.Ping
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	checks["redis"] = redis.Ping

	dispatcher := events.NewInMemoryDispatcher()
	notifier := service.NewNotificationService(logger, cfg.Notification)
	notificationWorker := worker.NewNotificationWorker(notifier, logger, 0)
	notificationWorker.Subscribe(dispatcher)
	notificationWorker.Start(ctx)

	authService := service.NewAuthService(cfg.Auth, users)
	if cfg.Auth.AdminEmail != "" {
		admin, err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			logger.Fatal("failed to seed admin account", zap.Error(err))
		}
		logger.Info("admin account ready", zap.String("email", admin.Email))
	}
	userService := service.NewUserService(users, logger)
	ticketService := service.NewTicketService(tickets, dispatcher)
	historyService := service.NewHistoryService(history, ticketService, logger)
	historyService.Subscribe(dispatcher)
	metrics := observability.NewMetrics()

	app := httptransport.NewApp(httptransport.AppOptions{
		Name:           cfg.App.Name,
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: time.Duration(cfg.App.RequestTimeoutSeconds) * time.Second,
	}, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, historyService),
		Users:          handlers.NewUsersHandler(userService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	cancel()
	notificationWorker.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
