package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

const (
	EventOrderPaid = "order.paid"
	EventBonusPaid = "bonus.paid"
)

type WebhookHandler struct {
	token       string
	orders      *services.OrderService
	gate        *services.UnlockGate
	dispatcher  Dispatcher
	autoApprove bool
	logger      zerolog.Logger
}

func NewWebhookHandler(token string, orders *services.OrderService, gate *services.UnlockGate, dispatcher Dispatcher, autoApprove bool, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		token:       token,
		orders:      orders,
		gate:        gate,
		dispatcher:  dispatcher,
		autoApprove: autoApprove,
		logger:      logger.With().Str("component", "payment_webhook").Logger(),
	}
}

// HandlePayment godoc
// @Summary     Payment webhook endpoint
// @Description Receives settled payments from checkout. order.paid creates the order and queues generation; bonus.paid unlocks the bonus artwork. Both are idempotent.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       Authorization header string true "Shared webhook token"
// @Param       request body models.PaymentWebhookEvent true "Payment event"
// @Success     200 {object} models.StatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /webhooks/payments [post]
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	// Token may be sent as "Bearer <token>" or bare.
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if token == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing authorization token"})
		return
	}
	if h.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization token"})
		return
	}

	var event models.PaymentWebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to parse event", Message: err.Error()})
		return
	}

	switch event.Type {
	case EventOrderPaid:
		h.orderPaid(c, event)
	case EventBonusPaid:
		h.bonusPaid(c, event)
	default:
		h.logger.Debug().Str("type", event.Type).Msg("ignoring payment event")
		c.JSON(http.StatusOK, models.StatusResponse{Status: "ignored"})
	}
}

func (h *WebhookHandler) orderPaid(c *gin.Context, event models.PaymentWebhookEvent) {
	if event.Order == nil {
		badRequest(c, "order.paid requires an order")
		return
	}
	in := event.Order
	order, err := h.orders.CreateOrder(c.Request.Context(), models.NewOrder{
		ExternalRef:    event.PaymentRef,
		CustomerName:   in.CustomerName,
		CustomerEmail:  in.CustomerEmail,
		ProductType:    in.ProductType,
		Breed:          in.Breed,
		PetName:        in.PetName,
		Details:        in.Details,
		SourcePhotoRef: in.SourcePhotoRef,
		CustomerNotes:  in.Notes,
	})
	status := "created"
	if errors.Is(err, services.ErrConflict) && order.ID != uuid.Nil {
		status = "duplicate"
	} else if err != nil {
		respondError(c, err)
		return
	}

	// A replay re-dispatches only if the first dispatch never started.
	if order.GenerationStatus == models.GenerationQueued {
		if err := h.dispatcher.Dispatch(c.Request.Context(), order.ID, h.autoApprove); err != nil {
			h.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to dispatch generation")
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: status, OrderID: order.ID.String()})
}

func (h *WebhookHandler) bonusPaid(c *gin.Context, event models.PaymentWebhookEvent) {
	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		badRequest(c, "bonus.paid requires a valid order_id")
		return
	}
	if err := h.gate.MarkBonusUnlocked(c.Request.Context(), orderID, event.PaymentRef); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "unlocked", OrderID: orderID.String()})
}
