package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/models"
)

// UnlockGate decides whether a viewer gets an image's clean original or its
// locked preview. It is the only place AssetRefs are built.
type UnlockGate struct {
	orders  OrderRepository
	images  ImageRepository
	unlocks UnlockStore
	logger  zerolog.Logger
}

func NewUnlockGate(orders OrderRepository, images ImageRepository, unlocks UnlockStore, logger zerolog.Logger) *UnlockGate {
	return &UnlockGate{
		orders:  orders,
		images:  images,
		unlocks: unlocks,
		logger:  logger.With().Str("component", "unlock_gate").Logger(),
	}
}

type GalleryItem struct {
	Image models.Image
	Asset models.AssetRef
}

type Gallery struct {
	Order           models.Order
	AwaitingArtwork bool
	Items           []GalleryItem
}

// ResolveAssetRef returns ErrNotFound for images that are foreign to the
// order or not approved.
func (g *UnlockGate) ResolveAssetRef(ctx context.Context, orderID, imageID uuid.UUID) (models.AssetRef, error) {
	if _, err := g.orders.GetOrder(ctx, orderID); err != nil {
		return models.AssetRef{}, err
	}
	img, err := g.images.GetImage(ctx, orderID, imageID)
	if err != nil {
		return models.AssetRef{}, err
	}
	if img.Status != models.ImageStatusApproved {
		return models.AssetRef{}, fmt.Errorf("%w: image %s", ErrNotFound, imageID)
	}

	unlocked := false
	if img.IsBonus {
		if unlocked, err = g.unlocks.IsBonusUnlocked(ctx, orderID); err != nil {
			return models.AssetRef{}, fmt.Errorf("failed to check bonus unlock: %w", err)
		}
	}
	return resolve(img, unlocked), nil
}

// MarkBonusUnlocked records the bonus payment. Repeated calls are no-ops.
func (g *UnlockGate) MarkBonusUnlocked(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	if _, err := g.orders.GetOrder(ctx, orderID); err != nil {
		return err
	}
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return fmt.Errorf("%w: payment reference is required", ErrValidation)
	}
	if err := g.unlocks.MarkBonusUnlocked(ctx, orderID, paymentRef); err != nil {
		return fmt.Errorf("failed to record bonus unlock: %w", err)
	}
	g.logger.Info().Str("order_id", orderID.String()).Str("payment_ref", paymentRef).Msg("bonus unlocked")
	return nil
}

func (g *UnlockGate) IsBonusUnlocked(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return g.unlocks.IsBonusUnlocked(ctx, orderID)
}

// Gallery is the customer's view of an order. Until generation completes it
// only reports that artwork is on its way.
func (g *UnlockGate) Gallery(ctx context.Context, orderID uuid.UUID) (Gallery, error) {
	order, err := g.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Gallery{}, err
	}
	gallery := Gallery{Order: order, AwaitingArtwork: !order.ReadyForReview()}
	if gallery.AwaitingArtwork {
		return gallery, nil
	}

	images, err := g.images.ListImages(ctx, orderID, models.ImageFilter{Status: models.ImageStatusApproved})
	if err != nil {
		return Gallery{}, err
	}
	unlocked, err := g.unlocks.IsBonusUnlocked(ctx, orderID)
	if err != nil {
		return Gallery{}, fmt.Errorf("failed to check bonus unlock: %w", err)
	}
	for _, img := range images {
		gallery.Items = append(gallery.Items, GalleryItem{Image: img, Asset: resolve(img, unlocked)})
	}
	return gallery, nil
}

func resolve(img models.Image, bonusUnlocked bool) models.AssetRef {
	if img.IsBonus && !bonusUnlocked {
		return models.LockedAsset(img.URL)
	}
	return models.CleanAsset(img.StoragePath)
}
