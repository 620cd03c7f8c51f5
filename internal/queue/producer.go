package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Producer appends generation jobs to a Redis stream.
type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Dispatch(ctx context.Context, orderID uuid.UUID, autoApprove bool) error {
	job := Job{OrderID: orderID, AutoApprove: autoApprove}
	if _, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: job.values(),
	}).Result(); err != nil {
		return fmt.Errorf("failed to enqueue generation: %w", err)
	}
	return nil
}

// Inline runs jobs on a background goroutine of the current process. It is
// the dispatcher when no Redis is configured.
type Inline struct {
	runner *Runner
	logger zerolog.Logger
}

func NewInline(runner *Runner, logger zerolog.Logger) *Inline {
	return &Inline{runner: runner, logger: logger}
}

func (d *Inline) Dispatch(ctx context.Context, orderID uuid.UUID, autoApprove bool) error {
	job := Job{OrderID: orderID, AutoApprove: autoApprove}
	go func() {
		if err := d.runner.Run(context.WithoutCancel(ctx), job); err != nil {
			d.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("inline generation failed")
		}
	}()
	return nil
}
