package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/services"
)

// Job asks a worker to generate the artwork of one order.
type Job struct {
	OrderID     uuid.UUID
	AutoApprove bool
}

func (j Job) values() map[string]any {
	return map[string]any{
		"type":         "generate",
		"order_id":     j.OrderID.String(),
		"auto_approve": strconv.FormatBool(j.AutoApprove),
	}
}

// ParseJob decodes a stream entry written by Producer.
func ParseJob(msg redis.XMessage) (Job, error) {
	raw, _ := msg.Values["order_id"].(string)
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return Job{}, fmt.Errorf("invalid order_id %q in message %s: %w", raw, msg.ID, err)
	}
	job := Job{OrderID: orderID}
	if flag, ok := msg.Values["auto_approve"].(string); ok && flag != "" {
		if job.AutoApprove, err = strconv.ParseBool(flag); err != nil {
			return Job{}, fmt.Errorf("invalid auto_approve %q in message %s: %w", flag, msg.ID, err)
		}
	}
	return job, nil
}

// OrderGenerator is the part of the generation service a job runs.
type OrderGenerator interface {
	GenerateOrder(ctx context.Context, orderID uuid.UUID, autoApprove bool) (services.GenerationReport, error)
}

// Runner executes generation jobs. Outcomes that retrying cannot change are
// logged and swallowed; the order's generation status already records them.
type Runner struct {
	generator OrderGenerator
	logger    zerolog.Logger
}

func NewRunner(generator OrderGenerator, logger zerolog.Logger) *Runner {
	return &Runner{generator: generator, logger: logger.With().Str("component", "generation_jobs").Logger()}
}

func (r *Runner) Run(ctx context.Context, job Job) error {
	logger := r.logger.With().Str("order_id", job.OrderID.String()).Logger()

	report, err := r.generator.GenerateOrder(ctx, job.OrderID, job.AutoApprove)
	switch {
	case err == nil:
		logger.Info().Int("images", report.TotalImages).Bool("primary_met", report.PrimaryMet).Msg("generation job done")
		return nil
	case errors.Is(err, services.ErrConflict):
		logger.Info().Err(err).Msg("generation job skipped")
		return nil
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrPipelineFailed):
		logger.Warn().Err(err).Msg("generation job failed")
		return nil
	case errors.Is(err, services.ErrGenerationCanceled):
		// The order stays running; the stale sweep marks it failed.
		logger.Warn().Err(err).Msg("generation job interrupted")
		return nil
	default:
		return fmt.Errorf("generation job for order %s: %w", job.OrderID, err)
	}
}

// Handle adapts Runner to stream messages.
func (r *Runner) Handle(ctx context.Context, msg redis.XMessage) error {
	job, err := ParseJob(msg)
	if err != nil {
		r.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed job")
		return nil
	}
	return r.Run(ctx, job)
}
