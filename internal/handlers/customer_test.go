package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pet-portrait-backend/internal/models"
)

func TestCustomer_UnknownToken(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/orders/"+strings.Repeat("0", 32), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCustomer_GalleryAwaitsArtwork(t *testing.T) {
	s := newTestServer(t)
	order := s.createOrder(t)
	s.addImage(t, order.ID, false, models.ImageStatusApproved, 0)

	w := s.do(t, http.MethodGet, "/api/v1/orders/"+order.AccessToken, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.CustomerOrderResponse](t, w)
	assert.True(t, resp.AwaitingArtwork)
	assert.Empty(t, resp.Images)
}

func TestCustomer_GalleryAndAssets(t *testing.T) {
	s := newTestServer(t)
	order := s.createOrder(t)
	primary := s.addImage(t, order.ID, false, models.ImageStatusApproved, 0)
	bonus := s.addImage(t, order.ID, true, models.ImageStatusApproved, 0)
	pending := s.addImage(t, order.ID, false, models.ImageStatusPending, 1)
	s.completeGeneration(t, order.ID)

	w := s.do(t, http.MethodGet, "/api/v1/orders/"+order.AccessToken, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.CustomerOrderResponse](t, w)
	assert.False(t, resp.AwaitingArtwork)
	require.Len(t, resp.Images, 2)
	locked := map[string]bool{}
	for _, img := range resp.Images {
		locked[img.ID] = img.Locked
	}
	assert.Equal(t, map[string]bool{primary.ID.String(): false, bonus.ID.String(): true}, locked)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+order.AccessToken+"/images/"+primary.ID.String()+"/asset", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	asset := decode[models.AssetResponse](t, w)
	assert.False(t, asset.Locked)
	assert.Contains(t, asset.URL, primary.StoragePath)
	assert.NotNil(t, asset.ExpiresAt)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+order.AccessToken+"/images/"+bonus.ID.String()+"/asset", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	asset = decode[models.AssetResponse](t, w)
	assert.True(t, asset.Locked)
	assert.Equal(t, bonus.URL, asset.URL)
	assert.Nil(t, asset.ExpiresAt)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+order.AccessToken+"/images/"+pending.ID.String()+"/asset", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+order.AccessToken+"/images/"+uuid.NewString()+"/asset", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCustomer_ConfirmAndRevise(t *testing.T) {
	s := newTestServer(t)
	order := s.createOrder(t)
	primary := s.addImage(t, order.ID, false, models.ImageStatusApproved, 0)
	bonus := s.addImage(t, order.ID, true, models.ImageStatusApproved, 0)
	s.completeGeneration(t, order.ID)
	base := "/api/v1/orders/" + order.AccessToken

	w := s.do(t, http.MethodPost, base+"/confirm", models.ConfirmSelectionRequest{ImageID: bonus.ID.String(), PrintProduct: "canvas-16x20"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/confirm", map[string]string{"image_id": primary.ID.String()}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/confirm", models.ConfirmSelectionRequest{ImageID: primary.ID.String(), PrintProduct: "canvas-16x20"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.CustomerOrderResponse](t, w)
	assert.Equal(t, string(models.OrderStatusConfirmed), resp.Status)
	assert.Equal(t, primary.ID.String(), resp.SelectedImageID)

	w = s.do(t, http.MethodPost, base+"/revision", models.RevisionRequest{ImageID: primary.ID.String(), Notes: "bigger crown"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(models.OrderStatusRevising), decode[models.CustomerOrderResponse](t, w).Status)

	w = s.do(t, http.MethodPost, base+"/revision", models.RevisionRequest{ImageID: primary.ID.String(), Notes: "again"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomer_Consent(t *testing.T) {
	s := newTestServer(t)
	order := s.createOrder(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders/"+order.AccessToken+"/consent", models.ConsentRequest{SocialConsent: true, SocialHandle: "@biscuit"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := s.store.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.SocialConsent)
	assert.Equal(t, "@biscuit", stored.SocialHandle)
}
