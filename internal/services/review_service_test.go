package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

func TestReview_ApproveAndReject(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, "")
	a := f.addImage(t, order.ID, false, models.ImageStatusPending)
	b := f.addImage(t, order.ID, false, models.ImageStatusPending)

	pending, err := f.review.ListForReview(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	approved, err := f.review.Approve(ctx, order.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusApproved, approved.Status)
	assert.Equal(t, a.URL, approved.URL)
	assert.Equal(t, a.StoragePath, approved.StoragePath)

	rejected, err := f.review.Reject(ctx, order.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusRejected, rejected.Status)

	pending, err = f.review.ListForReview(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	images, err := f.review.ListImages(ctx, order.ID, models.ImageFilter{Status: models.ImageStatusApproved})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, a.ID, images[0].ID)

	_, err = f.review.ListImages(ctx, order.ID, models.ImageFilter{Status: "bogus"})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestReview_ForeignImageIsNotFound(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, "")
	other := f.createOrder(t, "")
	img := f.addImage(t, other.ID, false, models.ImageStatusPending)

	_, err := f.review.Approve(ctx, order.ID, img.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.review.Reject(ctx, order.ID, img.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.review.ListForReview(ctx, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)

	stored, err := f.store.GetImage(ctx, other.ID, img.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusPending, stored.Status)
}

func TestReview_CannotRejectConfirmedSelection(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, "")
	img := f.addImage(t, order.ID, false, models.ImageStatusApproved)

	_, err := f.orders.ConfirmSelection(ctx, order.ID, img.ID, "canvas-16x20", "")
	require.NoError(t, err)

	_, err = f.review.Reject(ctx, order.ID, img.ID)
	assert.ErrorIs(t, err, services.ErrValidation)

	stored, err := f.store.GetImage(ctx, order.ID, img.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusApproved, stored.Status)
}

func TestReview_CannotRejectRevisionSelection(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, "")
	img := f.addImage(t, order.ID, false, models.ImageStatusApproved)

	revising, err := f.orders.RequestRevision(ctx, order.ID, img.ID, "bigger ears")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRevising, revising.Status)

	_, err = f.review.Reject(ctx, order.ID, img.ID)
	assert.ErrorIs(t, err, services.ErrValidation)

	reopened, err := f.orders.ReopenForRegeneration(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reopened.SelectedImageID)
	assert.Equal(t, img.ID, *reopened.SelectedImageID)

	_, err = f.review.Reject(ctx, order.ID, img.ID)
	assert.ErrorIs(t, err, services.ErrValidation)

	stored, err := f.store.GetImage(ctx, order.ID, img.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusApproved, stored.Status)
}
