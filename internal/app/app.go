// Package app wires configuration into repositories, clients and services
// shared by the API server and the generation worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/assets"
	"pet-portrait-backend/internal/config"
	"pet-portrait-backend/internal/database"
	"pet-portrait-backend/internal/handlers"
	"pet-portrait-backend/internal/imagen"
	"pet-portrait-backend/internal/memstore"
	"pet-portrait-backend/internal/queue"
	"pet-portrait-backend/internal/retry"
	"pet-portrait-backend/internal/services"
	"pet-portrait-backend/internal/supabase"
	"pet-portrait-backend/internal/themes"
)

type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Orders  services.OrderRepository
	Images  services.ImageRepository
	Unlocks services.UnlockStore
	Storage *supabase.StorageClient
	Redis   *redis.Client

	OrderService *services.OrderService
	Review       *services.ReviewService
	Gate         *services.UnlockGate
	Generation   *services.GenerationService
	Runner       *queue.Runner

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openRepositories(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Storage = supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.PublicBucket, cfg.PrivateBucket)

	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, a.Redis.Close)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
	}

	catalog, err := themes.Load(cfg.ThemesFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	imagenClient := imagen.NewClient(cfg.ImageGenAPIBaseURL, cfg.ImageGenAPIKey, cfg.ImageGenCallTimeout)
	publisher := assets.NewPublisher(imagenClient, a.Storage, cfg.PreviewWidth, logger)
	policy := retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Retryable:   imagen.IsRetryable,
	}

	a.OrderService = services.NewOrderService(a.Orders, a.Images, a.Unlocks, logger)
	a.Review = services.NewReviewService(a.Orders, a.Images, logger)
	a.Gate = services.NewUnlockGate(a.Orders, a.Images, a.Unlocks, logger)
	a.Generation = services.NewGenerationService(a.Orders, a.Images, catalog, imagenClient, publisher, policy, services.GenerationOptions{
		MaxParallelThemes: cfg.MaxParallelThemes,
		PipelineDeadline:  cfg.PipelineDeadline,
	}, logger)
	a.Runner = queue.NewRunner(a.Generation, logger)

	return a, nil
}

func (a *App) openRepositories(ctx context.Context) error {
	cfg := a.Config
	if cfg.DatabaseURL == "" {
		a.Logger.Warn().Msg("DATABASE_URL not set, keeping orders in memory")
		store := memstore.New()
		a.Orders, a.Images, a.Unlocks = store, store, store
		return nil
	}

	migrator, err := database.NewMigrator(cfg.DatabaseURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	err = migrator.Run()
	migrator.Close()
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	a.Logger.Info().Msg("migrations completed")

	db, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database client: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	if err != nil {
		return fmt.Errorf("failed to initialize supabase client: %w", err)
	}

	a.Orders, a.Images = db, db
	a.Unlocks = supabase.NewUnlockStore(client)
	return nil
}

// Dispatcher queues jobs on Redis when it is configured and otherwise runs
// them in this process.
func (a *App) Dispatcher() handlers.Dispatcher {
	if a.Redis != nil {
		return queue.NewProducer(a.Redis, a.Config.GenerationStream)
	}
	a.Logger.Warn().Msg("REDIS_ADDR not set, generation runs inside the API process")
	return queue.NewInline(a.Runner, a.Logger)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
