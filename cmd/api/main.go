package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CallumWaite/gatehouse/internal/auth"
	"github.com/CallumWaite/gatehouse/internal/background"
	"github.com/CallumWaite/gatehouse/internal/config"
	"github.com/CallumWaite/gatehouse/internal/database"
	"github.com/CallumWaite/gatehouse/internal/handlers"
	middlewareCustom "github.com/CallumWaite/gatehouse/internal/middleware"
	"github.com/CallumWaite/gatehouse/internal/repositories"
	"github.com/CallumWaite/gatehouse/internal/routes"
	"github.com/CallumWaite/gatehouse/internal/services"
	"github.com/CallumWaite/gatehouse/pkg/httpx"
	pkglogger "github.com/CallumWaite/gatehouse/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := runMigrations(&cfg.Database); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userKeyRepo := repositories.NewUserTokenKeyRepository(db)
	throttleRepo := repositories.NewThrottleRepository(db)
	codeRepo := repositories.NewVerificationCodeRepository(db)

	// Crypto primitives and audit sink
	crypto := auth.NewCrypto()
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Token services
	sessionTokens := auth.NewSessionTokenService(crypto, auditLogger, logger)
	userTokens := auth.NewUserTokenService(crypto, userKeyRepo, auth.UserTokenConfig{
		RotationLifetime: cfg.Auth.UserKeyRotationLifetime,
		MaxTokenLifetime: cfg.Auth.UserTokenMaxLifetime,
	}, auditLogger, logger)

	// Throttling and verification
	throttleService := services.NewThrottleService(throttleRepo, services.ThrottleConfig{
		Window:      cfg.Throttle.Window,
		MaxRequests: cfg.Throttle.MaxRequests,
		MinInterval: cfg.Throttle.MinInterval,
	}, auditLogger, logger)

	messagingService, err := services.NewAWSMessagingService(
		cfg.Messaging.AWSRegion,
		cfg.Messaging.FromAddress,
		cfg.Messaging.SMSSenderID,
		cfg.Messaging.Organization,
		cfg.Messaging.Disabled,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize messaging service", slog.Any("error", err))
		os.Exit(1)
	}

	verificationService := services.NewVerificationService(
		throttleService, codeRepo, messagingService, crypto, cfg.Verification.CodeTTL, logger)

	// Handlers
	ipConfig := &httpx.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(sessionTokens, userTokens)
	verificationHandler := handlers.NewVerificationHandler(verificationService, ipConfig)

	// Background cleanup
	cleanupManager := background.NewCleanupManager(codeRepo, throttleRepo, logger, cfg.Auth.CleanupInterval)

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders())
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, verificationHandler, sessionTokens, userTokens, ipConfig)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// runMigrations applies the goose migrations through the database/sql
// bridge of the pgx driver.
func runMigrations(cfg *config.DatabaseConfig) error {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
