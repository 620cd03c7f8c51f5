package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/models"
)

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusRevising, models.OrderStatusReady},
	models.OrderStatusConfirmed: {models.OrderStatusRevising, models.OrderStatusReady},
	models.OrderStatusRevising:  {models.OrderStatusPending, models.OrderStatusReady},
	models.OrderStatusReady:     {models.OrderStatusReady},
}

func canTransition(current, target models.OrderStatus) bool {
	next, ok := orderTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

type OrderService struct {
	orders  OrderRepository
	images  ImageRepository
	unlocks UnlockStore
	logger  zerolog.Logger
	now     func() time.Time
}

func NewOrderService(orders OrderRepository, images ImageRepository, unlocks UnlockStore, logger zerolog.Logger) *OrderService {
	return &OrderService{
		orders:  orders,
		images:  images,
		unlocks: unlocks,
		logger:  logger.With().Str("component", "orders").Logger(),
		now:     time.Now,
	}
}

// CreateOrder records a paid order. A repeated ExternalRef returns the
// existing order with ErrConflict so intake can be replayed safely.
func (s *OrderService) CreateOrder(ctx context.Context, in models.NewOrder) (models.Order, error) {
	in.ExternalRef = strings.TrimSpace(in.ExternalRef)
	in.ProductType = strings.TrimSpace(in.ProductType)
	switch {
	case in.ExternalRef == "":
		return models.Order{}, fmt.Errorf("%w: external reference is required", ErrValidation)
	case in.ProductType == "":
		return models.Order{}, fmt.Errorf("%w: product type is required", ErrValidation)
	case strings.TrimSpace(in.SourcePhotoRef) == "":
		return models.Order{}, fmt.Errorf("%w: source photo is required", ErrValidation)
	case strings.TrimSpace(in.CustomerEmail) == "":
		return models.Order{}, fmt.Errorf("%w: customer email is required", ErrValidation)
	}

	now := s.now()
	order := models.Order{
		ID:               uuid.New(),
		AccessToken:      newAccessToken(),
		ExternalRef:      in.ExternalRef,
		CustomerName:     strings.TrimSpace(in.CustomerName),
		CustomerEmail:    strings.TrimSpace(in.CustomerEmail),
		ProductType:      in.ProductType,
		Breed:            strings.TrimSpace(in.Breed),
		PetName:          strings.TrimSpace(in.PetName),
		Details:          strings.TrimSpace(in.Details),
		SourcePhotoRef:   strings.TrimSpace(in.SourcePhotoRef),
		CustomerNotes:    strings.TrimSpace(in.CustomerNotes),
		Status:           models.OrderStatusPending,
		GenerationStatus: models.GenerationQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.orders.CreateOrder(ctx, order)
	if err != nil {
		return created, err
	}
	s.logger.Info().Str("order_id", created.ID.String()).Str("external_ref", created.ExternalRef).Msg("order created")
	return created, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (models.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) GetOrderByAccessToken(ctx context.Context, token string) (models.Order, error) {
	if strings.TrimSpace(token) == "" {
		return models.Order{}, ErrNotFound
	}
	return s.orders.GetOrderByAccessToken(ctx, token)
}

// ConfirmSelection records the customer's final artwork and print product.
// The image must be an approved image of this order; a bonus image also
// needs the order's bonus unlock.
func (s *OrderService) ConfirmSelection(ctx context.Context, orderID, imageID uuid.UUID, printProduct, notes string) (models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if err := checkTransition(order.Status, models.OrderStatusConfirmed); err != nil {
		return order, err
	}
	printProduct = strings.TrimSpace(printProduct)
	if printProduct == "" {
		return order, fmt.Errorf("%w: print product is required", ErrValidation)
	}

	img, err := s.approvedImage(ctx, orderID, imageID)
	if err != nil {
		return order, err
	}
	if img.IsBonus {
		unlocked, err := s.unlocks.IsBonusUnlocked(ctx, orderID)
		if err != nil {
			return order, fmt.Errorf("failed to check bonus unlock: %w", err)
		}
		if !unlocked {
			return order, fmt.Errorf("%w: bonus artwork has not been purchased", ErrValidation)
		}
	}

	status := models.OrderStatusConfirmed
	revision := models.RevisionNone
	notes = strings.TrimSpace(notes)
	return s.apply(ctx, order, models.OrderPatch{
		Status:               &status,
		SelectedImageID:      &img.ID,
		SelectedPrintProduct: &printProduct,
		CustomerNotes:        &notes,
		RevisionStatus:       &revision,
	})
}

// RequestRevision sends the order back to the artist with the customer's
// notes about the referenced image.
func (s *OrderService) RequestRevision(ctx context.Context, orderID, imageID uuid.UUID, notes string) (models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if err := checkTransition(order.Status, models.OrderStatusRevising); err != nil {
		return order, err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return order, fmt.Errorf("%w: revision notes are required", ErrValidation)
	}

	img, err := s.approvedImage(ctx, orderID, imageID)
	if err != nil {
		return order, err
	}

	status := models.OrderStatusRevising
	revision := models.RevisionRequested
	cleared := ""
	return s.apply(ctx, order, models.OrderPatch{
		Status:          &status,
		RevisionNotes:   &notes,
		RevisionStatus:  &revision,
		SelectedImageID: &img.ID,
		CustomerNotes:   &cleared,
	})
}

// ReopenForRegeneration moves a revising order back to pending with its
// generation queued again.
func (s *OrderService) ReopenForRegeneration(ctx context.Context, orderID uuid.UUID) (models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.OrderStatusRevising {
		return order, fmt.Errorf("%w: only revising orders can be reopened, order is %s", ErrValidation, order.Status)
	}

	status := models.OrderStatusPending
	revision := models.RevisionNone
	queued := models.GenerationQueued
	return s.apply(ctx, order, models.OrderPatch{
		Status:           &status,
		RevisionStatus:   &revision,
		GenerationStatus: &queued,
	})
}

// MarkReady is the admin override that hands the order to fulfilment. It is
// a no-op on an order that is already ready.
func (s *OrderService) MarkReady(ctx context.Context, orderID uuid.UUID) (models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status == models.OrderStatusReady {
		return order, nil
	}
	if err := checkTransition(order.Status, models.OrderStatusReady); err != nil {
		return order, err
	}

	status := models.OrderStatusReady
	revision := models.RevisionNone
	return s.apply(ctx, order, models.OrderPatch{
		Status:         &status,
		RevisionStatus: &revision,
	})
}

// CaptureConsent stores the customer's sharing preferences. It never
// changes the order status.
func (s *OrderService) CaptureConsent(ctx context.Context, orderID uuid.UUID, social, marketing bool, handle string) (models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status.Terminal() {
		return order, fmt.Errorf("%w: order is %s", ErrValidation, order.Status)
	}

	handle = strings.TrimSpace(handle)
	if !social {
		handle = ""
	}
	now := s.now()
	return s.apply(ctx, order, models.OrderPatch{
		SocialConsent:    &social,
		MarketingConsent: &marketing,
		SocialHandle:     &handle,
		ConsentAt:        &now,
	})
}

func (s *OrderService) approvedImage(ctx context.Context, orderID, imageID uuid.UUID) (models.Image, error) {
	img, err := s.images.GetImage(ctx, orderID, imageID)
	if err != nil {
		return models.Image{}, err
	}
	if img.Status != models.ImageStatusApproved {
		return models.Image{}, fmt.Errorf("%w: image %s is %s, not approved", ErrValidation, imageID, img.Status)
	}
	return img, nil
}

func (s *OrderService) apply(ctx context.Context, order models.Order, patch models.OrderPatch) (models.Order, error) {
	updated, err := s.orders.ApplyTransition(ctx, order.ID, order.Status, patch)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.logger.Warn().Str("order_id", order.ID.String()).Str("expected_status", string(order.Status)).Msg("order changed concurrently")
		}
		return order, err
	}
	if patch.Status != nil && *patch.Status != order.Status {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("from", string(order.Status)).
			Str("to", string(*patch.Status)).
			Msg("order status changed")
	}
	return updated, nil
}

func checkTransition(current, target models.OrderStatus) error {
	if !canTransition(current, target) {
		return fmt.Errorf("%w: cannot move order from %s to %s", ErrValidation, current, target)
	}
	return nil
}

// newAccessToken returns 122 random bits from a v4 uuid, hex encoded.
func newAccessToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
