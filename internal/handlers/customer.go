package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

// AssetSigner issues time-limited URLs for private objects.
type AssetSigner interface {
	SignedURL(path string, ttl time.Duration) (string, error)
}

// CustomerHandler serves the customer's order page. Every route is keyed by
// the order's access token.
type CustomerHandler struct {
	orders *services.OrderService
	gate   *services.UnlockGate
	signer AssetSigner
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCustomerHandler(orders *services.OrderService, gate *services.UnlockGate, signer AssetSigner, ttl time.Duration, logger zerolog.Logger) *CustomerHandler {
	return &CustomerHandler{
		orders: orders,
		gate:   gate,
		signer: signer,
		ttl:    ttl,
		logger: logger.With().Str("component", "customer").Logger(),
	}
}

// GetOrder godoc
// @Summary     Customer order page
// @Description Approved artwork for the order. Bonus artwork is a locked preview until the bonus is paid.
// @Tags        customer
// @Produce     json
// @Param       token path string true "Order access token"
// @Success     200 {object} models.CustomerOrderResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{token} [get]
func (h *CustomerHandler) GetOrder(c *gin.Context) {
	order, ok := h.order(c)
	if !ok {
		return
	}
	h.respondGallery(c, order.ID)
}

// GetAsset godoc
// @Summary     Download an image
// @Description Returns a signed URL to the clean original, or the locked preview URL for unpaid bonus artwork.
// @Tags        customer
// @Produce     json
// @Param       token path string true "Order access token"
// @Param       image_id path string true "Image ID"
// @Success     200 {object} models.AssetResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{token}/images/{image_id}/asset [get]
func (h *CustomerHandler) GetAsset(c *gin.Context) {
	order, ok := h.order(c)
	if !ok {
		return
	}
	imageID, ok := uuidParam(c, "image_id")
	if !ok {
		return
	}

	ref, err := h.gate.ResolveAssetRef(c.Request.Context(), order.ID, imageID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.AssetResponse{ImageID: imageID.String(), Locked: ref.Locked(), URL: ref.Ref}
	if ref.Kind == models.AssetClean {
		signed, err := h.signer.SignedURL(ref.Ref, h.ttl)
		if err != nil {
			h.logger.Error().Err(err).Str("order_id", order.ID.String()).Str("image_id", imageID.String()).Msg("failed to sign asset url")
			c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "storage_unavailable", Message: "could not issue download link"})
			return
		}
		expires := time.Now().Add(h.ttl).UTC()
		resp.URL = signed
		resp.ExpiresAt = &expires
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmSelection godoc
// @Summary     Confirm the final artwork
// @Tags        customer
// @Accept      json
// @Produce     json
// @Param       token path string true "Order access token"
// @Param       request body models.ConfirmSelectionRequest true "Selection"
// @Success     200 {object} models.CustomerOrderResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /orders/{token}/confirm [post]
func (h *CustomerHandler) ConfirmSelection(c *gin.Context) {
	order, ok := h.order(c)
	if !ok {
		return
	}
	var req models.ConfirmSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	imageID, err := uuid.Parse(req.ImageID)
	if err != nil {
		badRequest(c, "invalid image_id")
		return
	}

	if _, err := h.orders.ConfirmSelection(c.Request.Context(), order.ID, imageID, req.PrintProduct, req.Notes); err != nil {
		respondError(c, err)
		return
	}
	h.respondGallery(c, order.ID)
}

// RequestRevision godoc
// @Summary     Ask the artist for changes
// @Tags        customer
// @Accept      json
// @Produce     json
// @Param       token path string true "Order access token"
// @Param       request body models.RevisionRequest true "Revision"
// @Success     200 {object} models.CustomerOrderResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /orders/{token}/revision [post]
func (h *CustomerHandler) RequestRevision(c *gin.Context) {
	order, ok := h.order(c)
	if !ok {
		return
	}
	var req models.RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	imageID, err := uuid.Parse(req.ImageID)
	if err != nil {
		badRequest(c, "invalid image_id")
		return
	}

	if _, err := h.orders.RequestRevision(c.Request.Context(), order.ID, imageID, req.Notes); err != nil {
		respondError(c, err)
		return
	}
	h.respondGallery(c, order.ID)
}

// CaptureConsent godoc
// @Summary     Record sharing consent
// @Tags        customer
// @Accept      json
// @Produce     json
// @Param       token path string true "Order access token"
// @Param       request body models.ConsentRequest true "Consent"
// @Success     200 {object} models.CustomerOrderResponse
// @Router      /orders/{token}/consent [post]
func (h *CustomerHandler) CaptureConsent(c *gin.Context) {
	order, ok := h.order(c)
	if !ok {
		return
	}
	var req models.ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if _, err := h.orders.CaptureConsent(c.Request.Context(), order.ID, req.SocialConsent, req.MarketingConsent, req.SocialHandle); err != nil {
		respondError(c, err)
		return
	}
	h.respondGallery(c, order.ID)
}

func (h *CustomerHandler) order(c *gin.Context) (models.Order, bool) {
	order, err := h.orders.GetOrderByAccessToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return models.Order{}, false
	}
	return order, true
}

func (h *CustomerHandler) respondGallery(c *gin.Context, orderID uuid.UUID) {
	gallery, err := h.gate.Gallery(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(gallery))
}
