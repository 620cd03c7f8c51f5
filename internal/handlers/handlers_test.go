package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/handlers"
	"pet-portrait-backend/internal/memstore"
	"pet-portrait-backend/internal/middleware"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/retry"
	"pet-portrait-backend/internal/services"
	"pet-portrait-backend/internal/themes"
)

const (
	webhookToken = "whsec-test"
	jwtSecret    = "test-secret-key-for-jwt-signing-must-be-long-enough"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	orders []uuid.UUID
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, orderID uuid.UUID, autoApprove bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders = append(d.orders, orderID)
	return nil
}

func (d *recordingDispatcher) Dispatched() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.orders...)
}

type fakeSigner struct{}

func (fakeSigner) SignedURL(path string, ttl time.Duration) (string, error) {
	return "https://storage.test/signed/" + path + "?token=abc", nil
}

type testServer struct {
	router     *gin.Engine
	store      *memstore.Store
	dispatcher *recordingDispatcher
	orders     *services.OrderService
	gate       *services.UnlockGate
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := themes.Load("")
	require.NoError(t, err)

	store := memstore.New()
	logger := zerolog.Nop()
	dispatcher := &recordingDispatcher{}
	orders := services.NewOrderService(store, store, store, logger)
	review := services.NewReviewService(store, store, logger)
	gate := services.NewUnlockGate(store, store, store, logger)
	generation := services.NewGenerationService(store, store, catalog, nil, nil, retry.DefaultPolicy(nil), services.GenerationOptions{}, logger)

	router := gin.New()
	handlers.Set{
		Admin:    handlers.NewAdminHandler(orders, review, generation, gate, dispatcher, logger),
		Customer: handlers.NewCustomerHandler(orders, gate, fakeSigner{}, 15*time.Minute, logger),
		Webhook:  handlers.NewWebhookHandler(webhookToken, orders, gate, dispatcher, false, logger),
	}.Register(router, middleware.AdminAuth(jwtSecret))

	return &testServer{router: router, store: store, dispatcher: dispatcher, orders: orders, gate: gate}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s.do(t, method, path, body, http.Header{"Authorization": {"Bearer " + token}})
}

func (s *testServer) webhook(t *testing.T, event models.PaymentWebhookEvent) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/v1/webhooks/payments", event, http.Header{"Authorization": {"Bearer " + webhookToken}})
}

func (s *testServer) createOrder(t *testing.T) models.Order {
	t.Helper()
	order, err := s.orders.CreateOrder(context.Background(), models.NewOrder{
		ExternalRef:    "cs_" + uuid.NewString(),
		CustomerEmail:  "dana@example.com",
		ProductType:    "portrait",
		PetName:        "Biscuit",
		SourcePhotoRef: "https://cdn.test/source.jpg",
	})
	require.NoError(t, err)
	return order
}

func (s *testServer) addImage(t *testing.T, orderID uuid.UUID, bonus bool, status models.ImageStatus, displayOrder int) models.Image {
	t.Helper()
	typ := models.ImageTypePrimary
	if bonus {
		typ = models.ImageTypeUpsell
	}
	img, err := s.store.InsertImage(context.Background(), models.Image{
		ID:           uuid.New(),
		OrderID:      orderID,
		Type:         typ,
		IsBonus:      bonus,
		Status:       status,
		DisplayOrder: displayOrder,
		ThemeName:    "royal-portrait",
		URL:          "https://cdn.test/public/" + uuid.NewString() + ".jpg",
		StoragePath:  "orders/" + orderID.String() + "/" + uuid.NewString() + ".png",
	})
	require.NoError(t, err)
	return img
}

func (s *testServer) completeGeneration(t *testing.T, orderID uuid.UUID) {
	t.Helper()
	order, err := s.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	complete := models.GenerationComplete
	_, err = s.store.ApplyTransition(context.Background(), orderID, order.Status, models.OrderPatch{GenerationStatus: &complete})
	require.NoError(t, err)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
