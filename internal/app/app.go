package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/event"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/password"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/router"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return Build(context.Background(), cfg)
}

// Build wires stores, token machinery, the event publisher and the HTTP
// stack from an already validated config.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	var (
		users       service.CredentialStore
		revocations service.RevocationStore
		healthCheck *handler.HealthHandler
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory stores; data is lost on restart")
		users = repository.NewMemoryUserRepository()
		revocations = repository.NewMemoryRevocationRepository()
		healthCheck = handler.NewHealthHandler(nil)
	default:
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}

		users = repository.NewUserRepository(db.Pool)
		revocations = repository.NewRevocationRepository(db.Pool)
		healthCheck = handler.NewHealthHandler(db)
		slog.Info("database ready")
	}

	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	issuer := token.NewIssuer(codec, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	verifier := token.NewVerifier(codec, revocations)

	var publisher event.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.EventPublishTimeout)
		// Runs before db.Close so in-flight publishes drain first.
		a.cleanupFuncs = append([]func(){func() {
			if err := kafkaPublisher.Close(); err != nil {
				slog.Warn("failed to close event publisher", "error", err)
			}
		}}, a.cleanupFuncs...)
		publisher = kafkaPublisher
		slog.Info("publishing user events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		publisher = event.NewBus()
		slog.Info("KAFKA_BROKERS not set; user events stay in process")
	}

	authService := service.NewAuthService(
		users,
		revocations,
		issuer,
		verifier,
		codec,
		password.NewBcryptHasher(cfg.BcryptCost),
		publisher,
	)

	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	a.cleanupFuncs = append([]func(){purgeCancel}, a.cleanupFuncs...)
	if cfg.RevocationPurgeInterval > 0 {
		go authService.StartRevocationPurge(purgeCtx, cfg.RevocationPurgeInterval)
	}

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Health: healthCheck,
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	return a.Shutdown()
}

// Shutdown drains in-flight requests, then releases the publisher, the purge
// loop and the database pool.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(ctx)
	a.cleanup()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for _, fn := range a.cleanupFuncs {
		fn()
	}
	a.cleanupFuncs = nil
}
