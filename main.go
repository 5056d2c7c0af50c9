package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/auth"
	"github.com/queryloom/queryloom/pkg/catalog"
	"github.com/queryloom/queryloom/pkg/config"
	"github.com/queryloom/queryloom/pkg/database"
	"github.com/queryloom/queryloom/pkg/events"
	"github.com/queryloom/queryloom/pkg/executor"
	"github.com/queryloom/queryloom/pkg/handlers"
	"github.com/queryloom/queryloom/pkg/llm"
	"github.com/queryloom/queryloom/pkg/logging"
	"github.com/queryloom/queryloom/pkg/middleware"
	"github.com/queryloom/queryloom/pkg/models"
	"github.com/queryloom/queryloom/pkg/pipeline"
	"github.com/queryloom/queryloom/pkg/resolver"
	"github.com/queryloom/queryloom/pkg/sqlsafe"
	"github.com/queryloom/queryloom/pkg/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath, Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("queryloom exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Bool("postgres_store", cfg.Database.Enabled),
		zap.String("enhanced_model", cfg.Enhanced.Model),
		zap.String("base_model", cfg.Base.Model))

	turns, cleanup, err := buildTurnStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sources := catalog.NewManager(catalog.New(logger), logger)
	if _, err := sources.ConnectSample(ctx, cfg.SampleDatabasePath); err != nil {
		// The connect endpoint can still attach a real database later.
		logger.Warn("sample database bootstrap failed", zap.Error(err))
	}

	enhanced, base, err := buildStrategies(cfg, logger)
	if err != nil {
		return err
	}

	broker := events.NewBroker(logger)
	orchestrator := pipeline.NewOrchestrator(
		pipeline.Config{
			ConfidenceFloor: cfg.Pipeline.ConfidenceFloor,
			RequestTimeout:  time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		},
		sources,
		turns,
		resolver.New(resolver.Config{
			FuzzyThreshold: cfg.Pipeline.FuzzyThreshold,
			Synonyms:       cfg.Pipeline.Synonyms,
		}, logger),
		sqlsafe.NewValidator(sqlsafe.ComplexityBudget{
			MaxJoins:         cfg.Pipeline.MaxJoins,
			MaxSubqueryDepth: cfg.Pipeline.MaxSubqueryDepth,
		}, logger),
		executor.New(executor.Config{
			Timeout: time.Duration(cfg.Pipeline.ExecTimeoutSeconds) * time.Second,
			MaxRows: cfg.Pipeline.MaxRows,
		}, logger),
		broker,
		enhanced,
		base,
		logger,
	)

	authMiddleware := auth.NewMiddleware(
		auth.NewService(cfg.Auth.Secret, logger),
		cfg.Auth.EnableVerification,
		logger,
	)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(orchestrator, turns, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewDatabaseHandler(sources, cfg.SampleDatabasePath, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewEventsHandler(broker, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting queryloom",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildTurnStore selects postgres or in-memory persistence for conversation
// turns. The cleanup function is safe to call regardless of which was built.
func buildTurnStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.TurnStore, func(), error) {
	if !cfg.Database.Enabled {
		logger.Info("postgres store disabled, keeping conversation turns in memory")
		return store.NewMemoryStore(), func() {}, nil
	}

	url := cfg.Database.ConnectionString()

	// Migrations run over database/sql; the store itself uses pgx pooling.
	migrationDB, err := sql.Open("pgx", url)
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		migrationDB.Close()
		return nil, nil, err
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            url,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(db), db.Close, nil
}

// buildStrategies wires the enhanced strategy set and, when configured, the
// base fallback.
func buildStrategies(cfg *config.Config, logger *zap.Logger) (*pipeline.Strategies, *pipeline.Strategies, error) {
	if !cfg.Enhanced.Configured() {
		return nil, nil, errors.New("enhanced model is not configured; set ENHANCED_PROVIDER and ENHANCED_MODEL")
	}

	enhancedClient, err := llm.NewClient(&llm.ProviderConfig{
		Provider: cfg.Enhanced.Provider,
		Endpoint: cfg.Enhanced.Endpoint,
		Model:    cfg.Enhanced.Model,
		APIKey:   cfg.Enhanced.APIKey,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	enhanced := pipeline.NewStrategies(models.StrategyEnhanced, enhancedClient, logger)

	if !cfg.Base.Configured() {
		logger.Info("base model not configured, running without fallback strategy")
		return enhanced, nil, nil
	}

	baseClient, err := llm.NewClient(&llm.ProviderConfig{
		Provider: cfg.Base.Provider,
		Endpoint: cfg.Base.Endpoint,
		Model:    cfg.Base.Model,
		APIKey:   cfg.Base.APIKey,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return enhanced, pipeline.NewStrategies(models.StrategyBase, baseClient, logger), nil
}
