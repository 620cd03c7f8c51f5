package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"pet-portrait-backend/internal/app"
	"pet-portrait-backend/internal/config"
	"pet-portrait-backend/internal/jobs"
	"pet-portrait-backend/internal/logger"
	"pet-portrait-backend/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Environment).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer a.Close()

	sweeper := jobs.NewStaleSweeper(a.Orders, cfg.StaleGenerationAfter, log)
	scheduler := jobs.NewScheduler(sweeper, cfg.StaleSweepSchedule, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	consumerDone := make(chan struct{})
	if a.Redis == nil {
		log.Warn().Msg("REDIS_ADDR not set, worker only runs the stale generation sweep")
		close(consumerDone)
	} else {
		consumer := queue.NewConsumer(a.Redis, cfg.GenerationStream, cfg.WorkerGroup, cfg.WorkerName, cfg.JobClaimInterval, log, a.Runner)
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("consumer stopped unexpectedly")
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(stopCtx)
	select {
	case <-consumerDone:
	case <-stopCtx.Done():
		log.Warn().Msg("consumer did not stop in time")
	}
	log.Info().Msg("worker exited cleanly")
}
