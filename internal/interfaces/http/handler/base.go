package handler

import (
	"errors"
	"net/http"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the given status and code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.Set(middleware.ErrorCodeKey, code)
	c.JSON(statusCode, dto.NewErrorResponseWithDetails(code, message, middleware.RequestIDFrom(c), nil))
}

// BindJSON binds and validates the request body. On failure the error
// response has been written and false is returned.
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// BindQuery binds and validates query parameters
func (h *BaseHandler) BindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// HandleError maps err to its code and HTTP status. Store failures are
// logged and reported without their internals.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := shared.ErrorCode(err)
	statusCode := dto.GetHTTPStatus(code)
	requestID := middleware.RequestIDFrom(c)
	c.Set(middleware.ErrorCodeKey, code)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) && !shared.IsPersistenceFailure(err) {
		c.JSON(statusCode, dto.NewErrorResponseWithDetails(code, domainErr.Message, requestID, domainErr.Details))
		return
	}

	log := logger.GetGinLogger(c)
	var details map[string]any
	var pe *shared.PersistenceError
	if errors.As(err, &pe) {
		details = map[string]any{"step": pe.Step}
		if pe.CompensationErr != nil {
			log.Error("Compensation failed, manual reconciliation required",
				zap.String("step", pe.Step),
				zap.Error(pe.Err),
				zap.NamedError("compensation_error", pe.CompensationErr),
			)
			c.JSON(statusCode, dto.NewErrorResponseWithDetails(code,
				"The operation failed and could not be fully undone", requestID, details))
			return
		}
	}
	log.Error("Stock operation failed", zap.String("code", code), zap.Error(err))
	c.JSON(statusCode, dto.NewErrorResponseWithDetails(code, "The operation could not be stored", requestID, details))
}
