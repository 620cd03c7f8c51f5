// Package memstore keeps orders, images and bonus unlocks in memory. It backs
// the tests and local runs without DATABASE_URL.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

type displayKey struct {
	orderID uuid.UUID
	typ     models.ImageType
	order   int
}

type Store struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]models.Order
	images   map[uuid.UUID]models.Image
	taken    map[displayKey]uuid.UUID
	unlocks  map[uuid.UUID]models.BonusUnlock
	tokens   map[string]uuid.UUID
	external map[string]uuid.UUID
	now      func() time.Time
}

func New() *Store {
	return &Store{
		orders:   make(map[uuid.UUID]models.Order),
		images:   make(map[uuid.UUID]models.Image),
		taken:    make(map[displayKey]uuid.UUID),
		unlocks:  make(map[uuid.UUID]models.BonusUnlock),
		tokens:   make(map[string]uuid.UUID),
		external: make(map[string]uuid.UUID),
		now:      time.Now,
	}
}

func (s *Store) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.external[order.ExternalRef]; ok && order.ExternalRef != "" {
		return s.orders[id], fmt.Errorf("%w: order for %s already exists", services.ErrConflict, order.ExternalRef)
	}
	if _, ok := s.orders[order.ID]; ok {
		return models.Order{}, fmt.Errorf("%w: order %s already exists", services.ErrConflict, order.ID)
	}

	now := s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	s.orders[order.ID] = order
	s.tokens[order.AccessToken] = order.ID
	if order.ExternalRef != "" {
		s.external[order.ExternalRef] = order.ID
	}
	return order, nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", services.ErrNotFound, id)
	}
	return order, nil
}

func (s *Store) GetOrderByAccessToken(ctx context.Context, token string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok || token == "" {
		return models.Order{}, fmt.Errorf("%w: order", services.ErrNotFound)
	}
	return s.orders[id], nil
}

func (s *Store) GetOrderByExternalRef(ctx context.Context, ref string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.external[ref]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order for %s", services.ErrNotFound, ref)
	}
	return s.orders[id], nil
}

func (s *Store) ApplyTransition(ctx context.Context, id uuid.UUID, expected models.OrderStatus, patch models.OrderPatch) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", services.ErrNotFound, id)
	}
	if order.Status != expected {
		return order, fmt.Errorf("%w: order %s is %s, expected %s", services.ErrConflict, id, order.Status, expected)
	}

	patch.Apply(&order)
	order.UpdatedAt = s.now()
	s.orders[id] = order
	return order, nil
}

func (s *Store) ClaimGeneration(ctx context.Context, id uuid.UUID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: order %s", services.ErrNotFound, id)
	}
	if !claimable(order) {
		return order, fmt.Errorf("%w: order %s is %s with generation %s", services.ErrConflict, id, order.Status, order.GenerationStatus)
	}

	order.GenerationStatus = models.GenerationRunning
	order.GenerationError = ""
	order.UpdatedAt = s.now()
	s.orders[id] = order
	return order, nil
}

func claimable(order models.Order) bool {
	if order.Status.Terminal() {
		return false
	}
	return order.GenerationStatus == models.GenerationQueued || order.GenerationStatus == models.GenerationFailed
}

func (s *Store) ListStaleGenerations(ctx context.Context, startedBefore time.Time) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Order
	for _, order := range s.orders {
		if order.GenerationStatus == models.GenerationRunning && order.UpdatedAt.Before(startedBefore) {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) InsertImage(ctx context.Context, img models.Image) (models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[img.OrderID]; !ok {
		return models.Image{}, fmt.Errorf("%w: order %s", services.ErrNotFound, img.OrderID)
	}
	key := displayKey{orderID: img.OrderID, typ: img.Type, order: img.DisplayOrder}
	if _, ok := s.taken[key]; ok {
		return models.Image{}, fmt.Errorf("%w: display order %d for %s images is taken", services.ErrConflict, img.DisplayOrder, img.Type)
	}
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if _, ok := s.images[img.ID]; ok {
		return models.Image{}, fmt.Errorf("%w: image %s already exists", services.ErrConflict, img.ID)
	}

	now := s.now()
	img.CreatedAt, img.UpdatedAt = now, now
	s.images[img.ID] = img
	s.taken[key] = img.ID
	return img, nil
}

func (s *Store) ListImages(ctx context.Context, orderID uuid.UUID, filter models.ImageFilter) ([]models.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Image
	for _, img := range s.images {
		if img.OrderID == orderID && filter.Match(img) {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out, nil
}

func (s *Store) GetImage(ctx context.Context, orderID, imageID uuid.UUID) (models.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[imageID]
	if !ok || img.OrderID != orderID {
		return models.Image{}, fmt.Errorf("%w: image %s", services.ErrNotFound, imageID)
	}
	return img, nil
}

func (s *Store) UpdateImageStatus(ctx context.Context, orderID, imageID uuid.UUID, status models.ImageStatus) (models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[imageID]
	if !ok || img.OrderID != orderID {
		return models.Image{}, fmt.Errorf("%w: image %s", services.ErrNotFound, imageID)
	}
	img.Status = status
	img.UpdatedAt = s.now()
	s.images[imageID] = img
	return img, nil
}

func (s *Store) MaxDisplayOrders(ctx context.Context, orderID uuid.UUID) (map[models.ImageType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.ImageType]int)
	for _, img := range s.images {
		if img.OrderID != orderID {
			continue
		}
		if current, ok := out[img.Type]; !ok || img.DisplayOrder > current {
			out[img.Type] = img.DisplayOrder
		}
	}
	return out, nil
}

// MarkBonusUnlocked keeps the first unlock; later calls change nothing.
func (s *Store) MarkBonusUnlocked(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unlocks[orderID]; ok {
		return nil
	}
	s.unlocks[orderID] = models.BonusUnlock{OrderID: orderID, PaymentRef: paymentRef, UnlockedAt: s.now()}
	return nil
}

func (s *Store) IsBonusUnlocked(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.unlocks[orderID]
	return ok, nil
}

var (
	_ services.OrderRepository = (*Store)(nil)
	_ services.ImageRepository = (*Store)(nil)
	_ services.UnlockStore     = (*Store)(nil)
)
