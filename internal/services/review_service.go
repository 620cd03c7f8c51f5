package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/models"
)

// ReviewService is the admin moderation surface for generated images.
type ReviewService struct {
	orders OrderRepository
	images ImageRepository
	logger zerolog.Logger
}

func NewReviewService(orders OrderRepository, images ImageRepository, logger zerolog.Logger) *ReviewService {
	return &ReviewService{
		orders: orders,
		images: images,
		logger: logger.With().Str("component", "review").Logger(),
	}
}

func (s *ReviewService) ListForReview(ctx context.Context, orderID uuid.UUID) ([]models.Image, error) {
	return s.ListImages(ctx, orderID, models.ImageFilter{Status: models.ImageStatusPending})
}

func (s *ReviewService) ListImages(ctx context.Context, orderID uuid.UUID, filter models.ImageFilter) ([]models.Image, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown image status %q", ErrValidation, filter.Status)
	}
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.images.ListImages(ctx, orderID, filter)
}

func (s *ReviewService) Approve(ctx context.Context, orderID, imageID uuid.UUID) (models.Image, error) {
	return s.setStatus(ctx, orderID, imageID, models.ImageStatusApproved)
}

// Reject hides an image from the customer. The image the order currently
// points at as its selection cannot be rejected.
func (s *ReviewService) Reject(ctx context.Context, orderID, imageID uuid.UUID) (models.Image, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Image{}, err
	}
	if order.SelectedImageID != nil && *order.SelectedImageID == imageID {
		return models.Image{}, fmt.Errorf("%w: image is the customer's selection on a %s order", ErrValidation, order.Status)
	}
	return s.setStatus(ctx, orderID, imageID, models.ImageStatusRejected)
}

func (s *ReviewService) setStatus(ctx context.Context, orderID, imageID uuid.UUID, status models.ImageStatus) (models.Image, error) {
	img, err := s.images.GetImage(ctx, orderID, imageID)
	if err != nil {
		return models.Image{}, err
	}
	if img.Status == status {
		return img, nil
	}

	updated, err := s.images.UpdateImageStatus(ctx, orderID, imageID, status)
	if err != nil {
		return models.Image{}, err
	}
	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("image_id", imageID.String()).
		Str("from", string(img.Status)).
		Str("to", string(status)).
		Msg("image reviewed")
	return updated, nil
}
