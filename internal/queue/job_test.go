package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/services"
)

type stubGenerator struct {
	err   error
	calls chan Job
}

func (g *stubGenerator) GenerateOrder(ctx context.Context, orderID uuid.UUID, autoApprove bool) (services.GenerationReport, error) {
	if g.calls != nil {
		g.calls <- Job{OrderID: orderID, AutoApprove: autoApprove}
	}
	return services.GenerationReport{OrderID: orderID}, g.err
}

func TestParseJob(t *testing.T) {
	job := Job{OrderID: uuid.New(), AutoApprove: true}

	parsed, err := ParseJob(redis.XMessage{ID: "1-0", Values: job.values()})
	require.NoError(t, err)
	assert.Equal(t, job, parsed)

	_, err = ParseJob(redis.XMessage{ID: "2-0", Values: map[string]any{"order_id": "nope"}})
	assert.Error(t, err)

	_, err = ParseJob(redis.XMessage{ID: "3-0", Values: map[string]any{"order_id": job.OrderID.String(), "auto_approve": "maybe"}})
	assert.Error(t, err)
}

func TestRunner_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"already generated", services.ErrConflict, false},
		{"invalid order", services.ErrValidation, false},
		{"missing order", services.ErrNotFound, false},
		{"nothing produced", services.ErrPipelineFailed, false},
		{"interrupted", services.ErrGenerationCanceled, false},
		{"database down", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := NewRunner(&stubGenerator{err: tt.err}, zerolog.Nop())
			err := runner.Run(context.Background(), Job{OrderID: uuid.New()})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunner_HandleDropsMalformedMessages(t *testing.T) {
	gen := &stubGenerator{calls: make(chan Job, 1)}
	runner := NewRunner(gen, zerolog.Nop())

	err := runner.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{}})
	assert.NoError(t, err)
	assert.Empty(t, gen.calls)
}

func TestInline_Dispatch(t *testing.T) {
	gen := &stubGenerator{calls: make(chan Job, 1)}
	dispatcher := NewInline(NewRunner(gen, zerolog.Nop()), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	orderID := uuid.New()
	require.NoError(t, dispatcher.Dispatch(ctx, orderID, true))
	cancel()

	select {
	case job := <-gen.calls:
		assert.Equal(t, Job{OrderID: orderID, AutoApprove: true}, job)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not run")
	}
}
