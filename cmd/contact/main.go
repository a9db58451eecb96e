package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/maplecart/api/internal/handlers"
	"github.com/maplecart/api/internal/platform/config"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/platform/observability"
	firestoreRepo "github.com/maplecart/api/internal/repositories/firestore"
	"github.com/maplecart/api/internal/services"
)

// The contact binary serves only the public contact-form endpoint so it can be
// deployed separately from the authenticated storefront API.
func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("contact")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	contactRepo, err := firestoreRepo.NewContactRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise contact repository", zap.Error(err))
	}
	emailRepo, err := firestoreRepo.NewEmailRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise email repository", zap.Error(err))
	}

	// Queued notifications land in the emails collection as pending; the api
	// binary's internal dispatch endpoint pushes them to Pub/Sub.
	emailService, err := services.NewEmailService(services.EmailServiceDeps{
		Emails: emailRepo,
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise email service", zap.Error(err))
	}

	contactService, err := services.NewContactService(services.ContactServiceDeps{
		Messages:      contactRepo,
		Emails:        emailService,
		NotifyAddress: envValues["API_CONTACT_NOTIFY_ADDRESS"],
		Clock:         time.Now,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields)+1)
			zFields = append(zFields, zap.String("event", event))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			logger.Debug("service event", zFields...)
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise contact service", zap.Error(err))
	}

	contactHandlers := handlers.NewContactHandlers(contactService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo(envValues, cfg, startedAt)),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(observability.InjectLoggerMiddleware(logger.Named("http")))
	router.Use(observability.RecoveryMiddleware(logger.Named("http")))
	router.Get("/healthz", healthHandlers.Healthz)
	router.Route("/api/contact", contactHandlers.Routes)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("contact endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfo(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := env["API_BUILD_VERSION"]
	if version == "" {
		version = "dev"
	}
	commit := env["API_BUILD_COMMIT_SHA"]
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}
