package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/infrastructure/logger"
	"github.com/labelops/backend/internal/interfaces/http/dto"
	"github.com/labelops/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// List sends a 200 response carrying a list and its length
func List[T any](c *gin.Context, items []T) {
	c.JSON(http.StatusOK, dto.NewListResponse(items))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with an explicit status
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.Set(middleware.ErrorCodeKey, code)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// HandleError converts an error returned by a ledger service into a response.
// Domain codes map through dto.ErrorCodeHTTPStatus; anything else is logged
// and answered with a 500 that hides the cause.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	var insufficient *shared.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		c.Set(middleware.ErrorCodeKey, dto.ErrCodeInsufficientInventory)
		c.JSON(http.StatusUnprocessableEntity, dto.NewErrorResponseWithDetails(
			dto.ErrCodeInsufficientInventory,
			insufficient.Error(),
			requestID,
			dto.InsufficientInventoryDetails{Requested: insufficient.Requested, Available: insufficient.Available},
		))
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.GetHTTPStatus(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.Error(c, http.StatusGatewayTimeout, dto.ErrCodeTimeout, "Request timed out")
		return
	}

	logger.L(c.Request.Context()).Error("Unhandled error",
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

// BindJSON binds and validates the request body, writing the error response
// itself when it fails
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		middleware.HandleValidationError(c, err)
		return false
	}
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeTooLarge, "Request body exceeds maximum allowed size")
	case errors.Is(err, io.EOF):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body is empty")
	default:
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Malformed request body: "+err.Error())
	}
	return false
}

// PathID parses the :id path parameter, writing a 400 when it is not a UUID
func (h *BaseHandler) PathID(c *gin.Context, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid "+resource+" ID format")
		return uuid.Nil, false
	}
	return id, true
}
