package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"pet-portrait-backend/internal/assets"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/themes"
)

// OrderRepository stores orders. Lookups return ErrNotFound for unknown
// orders.
type OrderRepository interface {
	// CreateOrder returns ErrConflict together with the stored order when
	// ExternalRef is already taken.
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	GetOrderByAccessToken(ctx context.Context, token string) (models.Order, error)
	GetOrderByExternalRef(ctx context.Context, ref string) (models.Order, error)
	// ApplyTransition writes patch only if the order still has the expected
	// status, otherwise it returns ErrConflict.
	ApplyTransition(ctx context.Context, id uuid.UUID, expected models.OrderStatus, patch models.OrderPatch) (models.Order, error)
	// ClaimGeneration marks generation running only if it is queued or
	// failed on a non-terminal order, otherwise it returns ErrConflict.
	ClaimGeneration(ctx context.Context, id uuid.UUID) (models.Order, error)
	ListStaleGenerations(ctx context.Context, startedBefore time.Time) ([]models.Order, error)
}

// ImageRepository stores generated images. Images are only ever appended;
// after insert only Status changes.
type ImageRepository interface {
	// InsertImage returns ErrConflict if (order, type, display_order) is taken.
	InsertImage(ctx context.Context, img models.Image) (models.Image, error)
	// ListImages returns images ordered by type then display_order.
	ListImages(ctx context.Context, orderID uuid.UUID, filter models.ImageFilter) ([]models.Image, error)
	// GetImage returns ErrNotFound unless the image belongs to the order.
	GetImage(ctx context.Context, orderID, imageID uuid.UUID) (models.Image, error)
	UpdateImageStatus(ctx context.Context, orderID, imageID uuid.UUID, status models.ImageStatus) (models.Image, error)
	// MaxDisplayOrders returns the highest display_order per image type.
	// Types without images are absent.
	MaxDisplayOrders(ctx context.Context, orderID uuid.UUID) (map[models.ImageType]int, error)
}

type UnlockStore interface {
	MarkBonusUnlocked(ctx context.Context, orderID uuid.UUID, paymentRef string) error
	IsBonusUnlocked(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type ThemeResolver interface {
	Resolve(productType string) (themes.Selection, error)
}

type AssetPublisher interface {
	Publish(ctx context.Context, orderID uuid.UUID, theme string, bonus bool, sourceURL string) (assets.Published, error)
}
