package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"compass/internal/api"
	"compass/internal/api/handlers"
	"compass/internal/api/middleware"
	"compass/internal/engine/access"
	"compass/internal/engine/keys"
	"compass/internal/engine/ratelimit"
	"compass/internal/pkg/logger"
	"compass/internal/platform/audit"
	"compass/internal/platform/auth"
	"compass/internal/platform/config"
	"compass/internal/platform/database"
	"compass/internal/platform/directory"
	"compass/internal/platform/repositories"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	// Audit trail
	auditLog := audit.NewLogger(audit.NewRepository(db), cfg.Audit.QueueSize)
	defer auditLog.Close()

	// Engines
	var counterStore ratelimit.Store
	if cfg.RateLimit.Backend == "memory" {
		counterStore = ratelimit.NewMemoryStore()
	} else {
		counterStore = ratelimit.NewSQLStore(db)
	}
	limiter := ratelimit.NewLimiter(counterStore)
	issuer := keys.NewIssuer(apiKeyRepo, auditLog, cfg.APIKeys)
	validator := keys.NewValidator(apiKeyRepo, limiter)

	dir := directory.New(userRepo)
	identity := directory.NewIdentityClient(cfg.Identity)
	guard := access.NewGuard(dir, identity, cfg.Access)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)

	// Handlers
	deps := &api.Dependencies{
		AuthHandler:        handlers.NewAuthHandler(userRepo, tokenSvc, auditLog),
		APIKeyHandler:      handlers.NewAPIKeyHandler(issuer),
		AdminHandler:       handlers.NewAdminHandler(guard, settingsRepo, userRepo, auditLog),
		AuditHandler:       handlers.NewAuditHandler(guard, auditLog),
		IntegrationHandler: handlers.NewIntegrationHandler(),
		HealthHandler:      handlers.NewHealthHandler(db),
		AuthMiddleware:     middleware.NewAuthMiddleware(tokenSvc),
		APIKeyMiddleware:   middleware.NewAPIKeyMiddleware(validator, auditLog),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
