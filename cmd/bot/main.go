package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/verification-service/internal/api/http"
	"github.com/spec-kit/verification-service/internal/api/http/handlers"
	"github.com/spec-kit/verification-service/internal/auth"
	"github.com/spec-kit/verification-service/internal/config"
	"github.com/spec-kit/verification-service/internal/events"
	"github.com/spec-kit/verification-service/internal/gateway"
	"github.com/spec-kit/verification-service/internal/interview"
	"github.com/spec-kit/verification-service/internal/observability"
	"github.com/spec-kit/verification-service/internal/persistence"
	"github.com/spec-kit/verification-service/internal/presenter"
	"github.com/spec-kit/verification-service/internal/repository"
	"github.com/spec-kit/verification-service/internal/service"
	"github.com/spec-kit/verification-service/internal/session"
	"github.com/spec-kit/verification-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// "mint-token <service>" prints a webhook credential for the
	// gateway dispatcher and exits.
	if len(os.Args) > 2 && os.Args[1] == "mint-token" {
		token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, 0).GenerateToken(os.Args[2])
		if err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}
		fmt.Printf("%s\nexpires: %s\n", token, expiresAt.Format(time.RFC3339))
		return
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var sessions session.Registry
	switch cfg.Interview.SessionBackend {
	case "redis":
		sessions = session.NewRedisRegistry(redis.Client, cfg.Interview.SessionTTL(), logger)
	default:
		sessions = session.NewMemoryRegistry()
	}

	gatewayClient := gateway.NewHTTPClient(cfg.Gateway, logger)
	present := presenter.NewPresenter(gatewayClient)
	collector := interview.NewCollector(gatewayClient)
	runner := interview.NewRunner(collector, present, cfg.Interview.Questions, cfg.Interview.AnswerTimeout(), logger)

	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	ticketRepo := repository.NewTicketRepository(pg.PoolHandle())
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      ticketRepo,
		Presenter:       present,
		Dispatcher:      dispatcher,
		Logger:          logger,
		ReviewChannelID: cfg.Gateway.ReviewChannelID,
	})

	notificationService := service.NewNotificationService(dispatcher, gatewayClient, present, logger)
	worker.StartNotificationWorker(notificationService)

	verificationService := service.NewVerificationService(service.VerificationDependencies{
		Sessions:        sessions,
		Tickets:         ticketService,
		Runner:          runner,
		Collector:       collector,
		Gateway:         gatewayClient,
		Presenter:       present,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
		ReviewChannelID: cfg.Gateway.ReviewChannelID,
		ReasonTimeout:   cfg.Interview.ReasonTimeout(),
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, 0)
	serviceAuth := auth.NewServiceAuth(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics)

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	eventsHandler := handlers.NewEventsHandler(verificationService, ctx, logger)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      healthHandler,
		Events:      eventsHandler,
		ServiceAuth: serviceAuth,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
