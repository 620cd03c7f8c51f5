package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/memstore"
	"pet-portrait-backend/internal/models"
)

func seedOrder(t *testing.T, store *memstore.Store, generation models.GenerationStatus) models.Order {
	t.Helper()
	now := time.Now()
	order, err := store.CreateOrder(context.Background(), models.Order{
		ID:               uuid.New(),
		AccessToken:      uuid.NewString(),
		ExternalRef:      uuid.NewString(),
		CustomerEmail:    "dana@example.com",
		ProductType:      "portrait",
		SourcePhotoRef:   "https://cdn.test/source.jpg",
		Status:           models.OrderStatusPending,
		GenerationStatus: generation,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	require.NoError(t, err)
	return order
}

func TestStaleSweeper_FailsOnlyStaleRunningGenerations(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	running := seedOrder(t, store, models.GenerationRunning)
	complete := seedOrder(t, store, models.GenerationComplete)
	queued := seedOrder(t, store, models.GenerationQueued)

	sweeper := NewStaleSweeper(store, 30*time.Minute, zerolog.Nop())

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetOrder(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationFailed, got.GenerationStatus)
	assert.Equal(t, staleMessage, got.GenerationError)
	assert.Equal(t, models.OrderStatusPending, got.Status)

	for _, id := range []uuid.UUID{complete.ID, queued.ID} {
		got, err := store.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, models.GenerationFailed, got.GenerationStatus)
	}

	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(NewStaleSweeper(memstore.New(), time.Minute, zerolog.Nop()), "not a cron expression", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(NewStaleSweeper(memstore.New(), time.Minute, zerolog.Nop()), "*/1 * * * * *", zerolog.Nop())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
