package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/assets"
	"pet-portrait-backend/internal/imagen"
	"pet-portrait-backend/internal/memstore"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/retry"
	"pet-portrait-backend/internal/services"
	"pet-portrait-backend/internal/themes"
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// scriptedGenerator answers each call with script(theme, call number, count).
type scriptedGenerator struct {
	mu     sync.Mutex
	calls  map[string]int
	script func(theme string, call, count int) ([]imagen.Asset, error)
}

func newScriptedGenerator(script func(theme string, call, count int) ([]imagen.Asset, error)) *scriptedGenerator {
	return &scriptedGenerator{calls: map[string]int{}, script: script}
}

func (g *scriptedGenerator) Generate(ctx context.Context, req imagen.GenerateRequest) ([]imagen.Asset, error) {
	g.mu.Lock()
	g.calls[req.Theme]++
	call := g.calls[req.Theme]
	g.mu.Unlock()
	return g.script(req.Theme, call, req.Count)
}

func (g *scriptedGenerator) Calls(theme string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[theme]
}

func generated(theme string, call, n int) []imagen.Asset {
	out := make([]imagen.Asset, n)
	for i := range out {
		out[i] = imagen.Asset{URL: fmt.Sprintf("https://gen.test/%s/%d/%d.png", theme, call, i), ContentType: "image/png"}
	}
	return out
}

func alwaysSucceeds(theme string, call, count int) ([]imagen.Asset, error) {
	return generated(theme, call, count), nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(ctx context.Context, orderID uuid.UUID, theme string, bonus bool, sourceURL string) (assets.Published, error) {
	id := uuid.NewString()
	published := assets.Published{
		URL:         "https://cdn.test/public/" + id + ".png",
		StoragePath: "orders/" + orderID.String() + "/" + theme + "/" + id + ".png",
	}
	if bonus {
		published.URL = "https://cdn.test/public/preview-" + id + ".jpg"
	}
	return published, nil
}

func testCatalog(t *testing.T, primary themes.Theme, bonus ...themes.Theme) *themes.Catalog {
	t.Helper()
	product := themes.Product{Primary: primary.Name}
	all := []themes.Theme{primary}
	for _, b := range bonus {
		product.Bonus = append(product.Bonus, b.Name)
		all = append(all, b)
	}
	catalog, err := themes.New(all, map[string]themes.Product{"portrait": product})
	require.NoError(t, err)
	return catalog
}

type fixture struct {
	store      *memstore.Store
	generator  *scriptedGenerator
	generation *services.GenerationService
	orders     *services.OrderService
	review     *services.ReviewService
	gate       *services.UnlockGate
}

func newFixture(t *testing.T, catalog *themes.Catalog, generator *scriptedGenerator, opts services.GenerationOptions) *fixture {
	t.Helper()
	store := memstore.New()
	logger := zerolog.Nop()
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}.WithSleep(noSleep)
	if opts.MaxParallelThemes == 0 {
		opts.MaxParallelThemes = 4
	}
	if opts.PipelineDeadline == 0 {
		opts.PipelineDeadline = 5 * time.Second
	}
	return &fixture{
		store:      store,
		generator:  generator,
		generation: services.NewGenerationService(store, store, catalog, generator, fakePublisher{}, policy, opts, logger),
		orders:     services.NewOrderService(store, store, store, logger),
		review:     services.NewReviewService(store, store, logger),
		gate:       services.NewUnlockGate(store, store, store, logger),
	}
}

func (f *fixture) createOrder(t *testing.T, petName string) models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), models.NewOrder{
		ExternalRef:    "cs_" + uuid.NewString(),
		CustomerName:   "Dana",
		CustomerEmail:  "dana@example.com",
		ProductType:    "portrait",
		Breed:          "corgi",
		PetName:        petName,
		SourcePhotoRef: "https://cdn.test/source.jpg",
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) addImage(t *testing.T, orderID uuid.UUID, bonus bool, status models.ImageStatus) models.Image {
	t.Helper()
	typ := models.ImageTypePrimary
	if bonus {
		typ = models.ImageTypeUpsell
	}
	maxOrders, err := f.store.MaxDisplayOrders(context.Background(), orderID)
	require.NoError(t, err)
	next := 0
	if highest, ok := maxOrders[typ]; ok {
		next = highest + 1
	}
	img, err := f.store.InsertImage(context.Background(), models.Image{
		ID:           uuid.New(),
		OrderID:      orderID,
		Type:         typ,
		IsBonus:      bonus,
		Status:       status,
		DisplayOrder: next,
		ThemeName:    "royal",
		URL:          "https://cdn.test/public/" + uuid.NewString() + ".jpg",
		StoragePath:  "orders/" + orderID.String() + "/royal/" + uuid.NewString() + ".png",
	})
	require.NoError(t, err)
	return img
}

func (f *fixture) setStatus(t *testing.T, orderID uuid.UUID, status models.OrderStatus) {
	t.Helper()
	order, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	_, err = f.store.ApplyTransition(context.Background(), orderID, order.Status, models.OrderPatch{Status: &status})
	require.NoError(t, err)
}

func (f *fixture) markGenerationComplete(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	order, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	complete := models.GenerationComplete
	_, err = f.store.ApplyTransition(context.Background(), orderID, order.Status, models.OrderPatch{GenerationStatus: &complete})
	require.NoError(t, err)
}

func displayOrders(images []models.Image) []int {
	out := make([]int, len(images))
	for i, img := range images {
		out[i] = img.DisplayOrder
	}
	return out
}

func contiguous(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
