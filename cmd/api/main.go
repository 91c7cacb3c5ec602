package main

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmercier/aegis/internal/auth"
	"github.com/jmercier/aegis/internal/background"
	"github.com/jmercier/aegis/internal/config"
	"github.com/jmercier/aegis/internal/database"
	"github.com/jmercier/aegis/internal/handlers"
	middlewareCustom "github.com/jmercier/aegis/internal/middleware"
	"github.com/jmercier/aegis/internal/models"
	"github.com/jmercier/aegis/internal/repositories"
	"github.com/jmercier/aegis/internal/routes"
	"github.com/jmercier/aegis/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	registrationRepo := repositories.NewRegistrationRepository(db)

	// Initialize token and credential managers
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	totpManager := auth.NewTOTPManager(cfg.Auth.TOTPIssuer)
	apiKeyManager := auth.NewAPIKeyManager()

	// Email delivery: AWS SES when enabled, log-only otherwise
	var emailService services.EmailService
	if cfg.Email.Enabled {
		sesCtx, sesCancel := context.WithTimeout(context.Background(), 10*time.Second)
		ses, err := services.NewSESEmailService(sesCtx, cfg.Email, logger)
		sesCancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = ses
	} else {
		emailService = services.NewNoopEmailService(logger)
	}

	// Initialize services
	auditService := services.NewAuditService(auditRepo, logger)
	sessionService := services.NewSessionService(sessionRepo, auditService, cfg.Security, logger)
	passwordService := services.NewPasswordService(userRepo, refreshTokenRepo, auditService, cfg.Security, logger)
	twoFactorService := services.NewTwoFactorService(userRepo, totpManager, auditService, logger)
	apiKeyService := services.NewAPIKeyService(apiKeyRepo, userRepo, apiKeyManager, auditService, logger)
	authService := services.NewAuthService(userRepo, refreshTokenRepo, sessionService, passwordService, tokenManager, totpManager, auditService, cfg.Security, logger)
	userService := services.NewUserService(userRepo, roleRepo, refreshTokenRepo, sessionRepo, passwordService, auditService, logger)
	roleService := services.NewRoleService(roleRepo, auditService, logger)
	registrationService := services.NewRegistrationService(registrationRepo, userRepo, roleRepo, emailService, auditService, logger)

	// Initialize handlers
	h := routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, passwordService),
		Users:         handlers.NewUserHandler(userService),
		Sessions:      handlers.NewSessionHandler(sessionService, userService),
		APIKeys:       handlers.NewAPIKeyHandler(apiKeyService),
		TwoFactor:     handlers.NewTwoFactorHandler(twoFactorService),
		Roles:         handlers.NewRoleHandler(roleService),
		Registrations: handlers.NewRegistrationHandler(registrationService),
		Audit:         handlers.NewAuditHandler(auditService),
	}

	// Bootstrap first admin user if configured
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, userRepo, userService, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootstrapCancel()

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		sessionService,
		apiKeyService,
		refreshTokenRepo,
		logger,
		cfg.Security.CleanupInterval,
	)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Health check with database
	healthCheck := func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	}

	// Register routes
	routes.RegisterRoutes(router, h, tokenManager, userRepo, apiKeyService, sessionService, healthCheck)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
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

// ensureAdminUser creates the first admin user if ADMIN_USERNAME, ADMIN_EMAIL
// and ADMIN_PASSWORD are set. The password must satisfy the normal policy.
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, users *services.UserService, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_USERNAME, ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByUsername(ctx, adminUsername)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	system := &models.User{Username: "system"}
	_, err = users.Create(ctx, system, services.CreateUserInput{
		Username:  adminUsername,
		Email:     adminEmail,
		Password:  adminPassword,
		FirstName: "Admin",
		LastName:  "User",
		RoleNames: []string{models.RoleAdmin},
	}, "", "")
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
