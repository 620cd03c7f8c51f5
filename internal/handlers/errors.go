package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"pet-portrait-backend/internal/models"
	"pet-portrait-backend/internal/services"
)

// Dispatcher starts generation for an order outside the request.
type Dispatcher interface {
	Dispatch(ctx context.Context, orderID uuid.UUID, autoApprove bool) error
}

func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, services.ErrPipelineFailed):
		status, code = http.StatusBadGateway, "generation_failed"
	}

	resp := models.ErrorResponse{Error: code}
	if status != http.StatusInternalServerError {
		resp.Message = err.Error()
	} else {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "bad_request", Message: message})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
