package handler

import (
	"errors"
	"net/http"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/logger"
	"github.com/erp/custody/internal/interfaces/http/dto"
	"github.com/erp/custody/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	return logger.RequestID(c.Request.Context())
}

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

// Error sends an error response, deriving the status code from the error code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// HandleError converts domain errors to HTTP responses. Anything that is not a
// domain error is logged and reported as an internal error without details.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Code == shared.CodeExternalDependency {
			logger.L(c.Request.Context()).Warn("Upstream dependency failed", zap.Error(err))
		}
		h.Error(c, domainErr.Code, domainErr.Message)
		return
	}

	logger.L(c.Request.Context()).Error("Unhandled error", zap.Error(err))
	_ = c.Error(err)
	h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
}

// bindJSON decodes the body into req, writing the error response on failure
func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.handleBindError(c, err)
		return false
	}
	return true
}

// bindQuery decodes the query string into req, writing the error response on failure
func (h *BaseHandler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.handleBindError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) handleBindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		middleware.HandleValidationError(c, validationErrs)
		return
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		h.Error(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
		return
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.HandleError(c, err)
		return
	}
	h.Error(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON: "+err.Error())
}

// parseID reads a UUID path parameter
func (h *BaseHandler) parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		h.Error(c, shared.CodeValidation, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// scope returns the caller scope resolved by the Scope middleware
func (h *BaseHandler) scope(c *gin.Context) (shared.Scope, bool) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		h.Error(c, dto.ErrCodeInvalidScope, "Request scope is missing")
		return shared.Scope{}, false
	}
	return scope, true
}
