package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

type AdminHandler struct {
	orders     *services.OrderService
	review     *services.ReviewService
	generation *services.GenerationService
	gate       *services.UnlockGate
	dispatcher Dispatcher
	logger     zerolog.Logger
}

func NewAdminHandler(
	orders *services.OrderService,
	review *services.ReviewService,
	generation *services.GenerationService,
	gate *services.UnlockGate,
	dispatcher Dispatcher,
	logger zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		orders:     orders,
		review:     review,
		generation: generation,
		gate:       gate,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "admin").Logger(),
	}
}

// GetOrder godoc
// @Summary     Get an order
// @Tags        admin
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.OrderResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /admin/orders/{order_id} [get]
func (h *AdminHandler) GetOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "order_id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	unlocked, err := h.gate.IsBonusUnlocked(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order, unlocked))
}

// ListImages godoc
// @Summary     List an order's images
// @Description Optional filters: type (primary|upsell), status (pending|approved|rejected), is_bonus (true|false).
// @Tags        admin
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.ImagesResponse
// @Router      /admin/orders/{order_id}/images [get]
func (h *AdminHandler) ListImages(c *gin.Context) {
	orderID, ok := uuidParam(c, "order_id")
	if !ok {
		return
	}

	filter := models.ImageFilter{
		Type:   models.ImageType(c.Query("type")),
		Status: models.ImageStatus(c.Query("status")),
	}
	if filter.Type != "" && filter.Type != models.ImageTypePrimary && filter.Type != models.ImageTypeUpsell {
		badRequest(c, "type must be primary or upsell")
		return
	}
	if raw := c.Query("is_bonus"); raw != "" {
		bonus, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "is_bonus must be true or false")
			return
		}
		filter.IsBonus = &bonus
	}

	images, err := h.review.ListImages(c.Request.Context(), orderID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toImagesResponse(images))
}

// ListForReview godoc
// @Summary     List images awaiting moderation
// @Tags        admin
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.ImagesResponse
// @Router      /admin/orders/{order_id}/review [get]
func (h *AdminHandler) ListForReview(c *gin.Context) {
	orderID, ok := uuidParam(c, "order_id")
	if !ok {
		return
	}
	images, err := h.review.ListForReview(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toImagesResponse(images))
}

func (h *AdminHandler) ApproveImage(c *gin.Context) {
	h.moderate(c, h.review.Approve)
}

func (h *AdminHandler) RejectImage(c *gin.Context) {
	h.moderate(c, h.review.Reject)
}

func (h *AdminHandler) moderate(c *gin.Context, action func(ctx context.Context, orderID, imageID uuid.UUID) (models.Image, error)) {
	orderID, ok := uuidParam(c, "order_id")
	if !ok {
		return
	}
	imageID, ok := uuidParam(c, "image_id")
	if !ok {
		return
	}
	img, err := action(c.Request.Context(), orderID, imageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toImageResponse(img))
}

// Generate godoc
// @Summary     Queue artwork generation
// @Description Reopens a revising order and queues a new generation run. Refused while a run is in progress or when a non-revision order already has primary images.
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Param       request body models.RegenerateRequest false "Generation options"
// @Success     202 {object} models.StatusResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /admin/orders/{order_id}/generate [post]
func (h *AdminHandler) Generate(c *gin.Context) {
	orderID, ok := uuidParam(c, "order_id")
	if !ok {
		return
	}
	var req models.RegenerateRequest
	// Body is optional.
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	switch {
	case order.GenerationStatus == models.GenerationRunning:
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "conflict", Message: "generation is already running"})
		return
	case order.Status == models.OrderStatusRevising:
		if order, err = h.orders.ReopenForRegeneration(ctx, orderID); err != nil {
			respondError(c, err)
			return
		}
	case order.GenerationStatus == models.GenerationFailed:
		// A failed or interrupted run may have left partial primaries; the
		// retry appends after them.
	default:
		has, err := h.generation.HasPrimaryImages(ctx, orderID)
		if err != nil {
			respondError(c, err)
			return
		}
		if has {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: "conflict", Message: "order already has primary images; request a revision first"})
			return
		}
	}

	if err := h.dispatcher.Dispatch(ctx, orderID, req.AutoApprove); err != nil {
		h.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to dispatch generation")
		respondError(c, err)
		return
	}
	h.logger.Info().Str("order_id", orderID.String()).Bool("auto_approve", req.AutoApprove).Msg("generation queued")
	c.JSON(http.StatusAccepted, models.StatusResponse{Status: "queued", OrderID: order.ID.String()})
}

// MarkReady godoc
// @Summary     Hand the order to fulfilment
// @Tags        admin
// @Produce     json
// @Security    Bearer
// @Param       order_id path string true "Order ID"
// @Success     200 {object} models.OrderResponse
// @Router      /admin/orders/{order_id}/ready [post]
func (h *AdminHandler) MarkReady(c *gin.Context) {
	orderID, ok := uuidParam(c, "order_id")
	if !ok {
		return
	}
	order, err := h.orders.MarkReady(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	unlocked, err := h.gate.IsBonusUnlocked(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order, unlocked))
}
