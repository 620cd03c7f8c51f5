package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

const staleMessage = "generation stalled: no progress before the stale window elapsed"

// StaleSweeper fails generations that have been running longer than the
// stale window, which only happens when a worker died mid-run.
type StaleSweeper struct {
	orders services.OrderRepository
	after  time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func NewStaleSweeper(orders services.OrderRepository, after time.Duration, log zerolog.Logger) *StaleSweeper {
	return &StaleSweeper{
		orders: orders,
		after:  after,
		log:    log.With().Str("component", "stale_sweeper").Logger(),
		now:    time.Now,
	}
}

// Sweep returns the number of orders it marked failed.
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.after)
	stale, err := s.orders.ListStaleGenerations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale generations: %w", err)
	}

	failed := 0
	for _, order := range stale {
		ok, err := s.fail(ctx, order, cutoff)
		if err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to mark generation stalled")
			continue
		}
		if ok {
			failed++
		}
	}
	if failed > 0 {
		s.log.Warn().Int("orders", failed).Msg("marked stalled generations failed")
	}
	return failed, nil
}

func (s *StaleSweeper) fail(ctx context.Context, order models.Order, cutoff time.Time) (bool, error) {
	current, err := s.orders.GetOrder(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if current.GenerationStatus != models.GenerationRunning || !current.UpdatedAt.Before(cutoff) {
		return false, nil
	}

	status, message := models.GenerationFailed, staleMessage
	_, err = s.orders.ApplyTransition(ctx, order.ID, current.Status, models.OrderPatch{
		GenerationStatus: &status,
		GenerationError:  &message,
	})
	if errors.Is(err, services.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}
