package middleware

import (
	"net/http"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/logger"
	"github.com/erp/custody/internal/infrastructure/telemetry"
	"github.com/erp/custody/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Scope headers. Authentication happens upstream; the gateway forwards the
// resolved identity in these headers.
const (
	TenantHeader = "X-Tenant-ID"
	BranchHeader = "X-Branch-ID"
	UserHeader   = "X-User-ID"

	scopeKey = "custody_scope"
)

// Scope resolves the caller's tenant, branch and user from the request headers.
// X-Tenant-ID is mandatory; the others are optional.
func Scope() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, msg := scopeFromHeaders(c)
		if msg != "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeInvalidScope, msg, logger.RequestID(c.Request.Context()),
			))
			return
		}

		c.Set(scopeKey, scope)
		ctx := logger.WithScope(c.Request.Context(), scope)
		c.Request = c.Request.WithContext(ctx)

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			telemetry.SetAttributes(span, "tenant_id", scope.TenantID.String())
			if scope.UserID != nil {
				telemetry.SetAttributes(span, "user_id", scope.UserID.String())
			}
		}
		c.Next()
	}
}

func scopeFromHeaders(c *gin.Context) (shared.Scope, string) {
	raw := c.GetHeader(TenantHeader)
	if raw == "" {
		return shared.Scope{}, TenantHeader + " header is required"
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil || tenantID == uuid.Nil {
		return shared.Scope{}, TenantHeader + " must be a valid UUID"
	}
	scope := shared.NewScope(tenantID)

	if raw := c.GetHeader(BranchHeader); raw != "" {
		branchID, err := uuid.Parse(raw)
		if err != nil {
			return shared.Scope{}, BranchHeader + " must be a valid UUID"
		}
		scope = scope.WithBranch(branchID)
	}
	if raw := c.GetHeader(UserHeader); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return shared.Scope{}, UserHeader + " must be a valid UUID"
		}
		scope = scope.WithUser(userID)
	}
	return scope, ""
}

// GetScope returns the scope resolved by the Scope middleware
func GetScope(c *gin.Context) (shared.Scope, bool) {
	v, ok := c.Get(scopeKey)
	if !ok {
		return shared.Scope{}, false
	}
	scope, ok := v.(shared.Scope)
	return scope, ok
}
