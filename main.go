package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/audit"
	"github.com/ekaya-inc/ekaya-datasources/pkg/auth"
	"github.com/ekaya-inc/ekaya-datasources/pkg/config"
	"github.com/ekaya-inc/ekaya-datasources/pkg/crypto"
	"github.com/ekaya-inc/ekaya-datasources/pkg/database"
	"github.com/ekaya-inc/ekaya-datasources/pkg/handlers"
	"github.com/ekaya-inc/ekaya-datasources/pkg/logging"
	"github.com/ekaya-inc/ekaya-datasources/pkg/middleware"
	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
	"github.com/ekaya-inc/ekaya-datasources/pkg/repositories"
	"github.com/ekaya-inc/ekaya-datasources/pkg/retry"
	"github.com/ekaya-inc/ekaya-datasources/pkg/services"

	// Built-in plugins register themselves with plugins.Default().
	_ "github.com/ekaya-inc/ekaya-datasources/pkg/plugins/mssql"
	_ "github.com/ekaya-inc/ekaya-datasources/pkg/plugins/postgres"
	_ "github.com/ekaya-inc/ekaya-datasources/pkg/plugins/restapi"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("redis", cfg.Redis.Host),
	)

	if cfg.CredentialsKey == "" {
		return errors.New("DATASOURCE_CREDENTIALS_KEY is required")
	}
	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		return fmt.Errorf("credential encryptor: %w", err)
	}

	// Postgres and Redis often come up alongside this service; ride out their startup.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, database.ConfigFromDatabase(cfg.Database))
	})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	sqlDB, err := database.OpenSQL(cfg.Database.URL())
	if err != nil {
		return err
	}
	err = database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
	_ = sqlDB.Close()
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	redisClient, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient == nil {
		logger.Warn("Redis not configured, datasource structures will not be cached")
	} else {
		defer func() { _ = redisClient.Close() }()
	}

	registry := plugins.Default()
	for _, p := range registry.List() {
		logger.Debug("Plugin installed", zap.String("id", p.ID), zap.String("package", p.PackageName))
	}

	// Repositories
	datasourceRepo := repositories.NewDatasourceRepository()
	legacyRepo := repositories.NewLegacyOrganizationRepository()
	structureCache := repositories.NewStructureCache(redisClient, cfg.StructureCacheTTL())

	// Services
	validator := services.NewValidationService(registry)
	datasourceService := services.NewDatasourceService(datasourceRepo, structureCache, encryptor, registry, validator, logger)
	exportService := services.NewExportService(datasourceService, registry, logger)
	legacyMigration := services.NewLegacyMigrationService(legacyRepo, services.NewUnscopedContextFunc(db), logger)

	if _, err := legacyMigration.Run(ctx); err != nil {
		// Unmigrated datasources stay invisible until the next start; serving the rest is still useful.
		logger.Error("Legacy organization migration failed", zap.Error(err))
	}

	// Auth
	jwksClient, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("jwks: %w", err)
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)
	auditor := audit.NewDatasourceAuditor(logger)
	workspaceMiddleware := handlers.WorkspaceMiddleware(database.WithWorkspaceContext(db, logger))

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db.Pool, logger).RegisterRoutes(mux)
	handlers.NewPluginsHandler(registry, logger).RegisterRoutes(mux)
	handlers.NewDatasourcesHandler(datasourceService, auditor, logger).RegisterRoutes(mux, authMiddleware, workspaceMiddleware)
	handlers.NewExportHandler(exportService, auditor, cfg.Export, logger).RegisterRoutes(mux, authMiddleware, workspaceMiddleware)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-datasources",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
