package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/models"
)

func paidOrder(ref string) models.PaymentWebhookEvent {
	return models.PaymentWebhookEvent{
		Type:       "order.paid",
		PaymentRef: ref,
		Order: &models.OrderIntakeEvent{
			CustomerName:   "Dana",
			CustomerEmail:  "dana@example.com",
			ProductType:    "portrait",
			Breed:          "corgi",
			SourcePhotoRef: "https://cdn.test/source.jpg",
		},
	}
}

func TestWebhook_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/webhooks/payments", paidOrder("cs_1"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/webhooks/payments", paidOrder("cs_1"), http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, s.dispatcher.Dispatched())
}

func TestWebhook_OrderPaidIsIdempotent(t *testing.T) {
	s := newTestServer(t)

	w := s.webhook(t, paidOrder("cs_1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[models.StatusResponse](t, w)
	assert.Equal(t, "created", created.Status)

	orderID, err := uuid.Parse(created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{orderID}, s.dispatcher.Dispatched())

	w = s.webhook(t, paidOrder("cs_1"))
	require.Equal(t, http.StatusOK, w.Code)
	replay := decode[models.StatusResponse](t, w)
	assert.Equal(t, "duplicate", replay.Status)
	assert.Equal(t, created.OrderID, replay.OrderID)

	order, err := s.store.GetOrderByExternalRef(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, orderID, order.ID)
}

func TestWebhook_OrderPaidValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.webhook(t, models.PaymentWebhookEvent{Type: "order.paid", PaymentRef: "cs_2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	event := paidOrder("cs_3")
	event.Order.SourcePhotoRef = ""
	w = s.webhook(t, event)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.dispatcher.Dispatched())
}

func TestWebhook_BonusPaid(t *testing.T) {
	s := newTestServer(t)
	order := s.createOrder(t)

	event := models.PaymentWebhookEvent{Type: "bonus.paid", PaymentRef: "pi_1", OrderID: order.ID.String()}
	for i := 0; i < 2; i++ {
		w := s.webhook(t, event)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	unlocked, err := s.gate.IsBonusUnlocked(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, unlocked)

	event.OrderID = uuid.NewString()
	w := s.webhook(t, event)
	assert.Equal(t, http.StatusNotFound, w.Code)

	event.OrderID = "not-a-uuid"
	w = s.webhook(t, event)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	s := newTestServer(t)

	w := s.webhook(t, models.PaymentWebhookEvent{Type: "refund.created"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", decode[models.StatusResponse](t, w).Status)
}
