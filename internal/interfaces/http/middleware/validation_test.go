package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/custody/internal/infrastructure/logger"
	"github.com/erp/custody/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestFormatValidationErrors(t *testing.T) {
	type line struct {
		Description string `json:"description" binding:"required"`
	}
	type request struct {
		Currency  string `json:"currency" binding:"required,iso4217"`
		Email     string `json:"email" binding:"omitempty,email"`
		LineItems []line `json:"line_items" binding:"required,min=1,dive"`
	}

	SetupValidator()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(logger.GinMiddleware(zap.NewNop()))
	router.POST("/test", func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	t.Run("returns field paths and messages", func(t *testing.T) {
		body := strings.NewReader(`{"currency": "XXQ", "email": "invalid", "line_items": [{"description": ""}]}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(logger.RequestIDHeader, "req-validation")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Equal(t, "req-validation", resp.Error.RequestID)

		fields := make(map[string]string)
		for _, d := range resp.Error.Details {
			fields[d.Field] = d.Message
		}
		assert.Equal(t, "Must be an ISO 4217 currency code", fields["currency"])
		assert.Equal(t, "Invalid email format", fields["email"])
		assert.Equal(t, "This field is required", fields["line_items[0].description"])
	})

	t.Run("rejects empty line items", func(t *testing.T) {
		body := strings.NewReader(`{"currency": "EGP", "line_items": []}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Must contain at least 1 item(s)")
	})

	t.Run("returns success for valid input", func(t *testing.T) {
		body := strings.NewReader(`{"currency": "EGP", "line_items": [{"description": "paper"}]}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetValidationMessage(t *testing.T) {
	type sample struct {
		Required string `validate:"required"`
		Min      string `validate:"min=5"`
		Max      string `validate:"max=3"`
		UUID     string `validate:"uuid"`
		OneOf    string `validate:"oneof=EMPLOYEE EXTERNAL"`
	}

	err := validator.New().Struct(sample{Min: "ab", Max: "abcd", UUID: "nope", OneOf: "OTHER"})
	require.Error(t, err)

	messages := make(map[string]string)
	for _, e := range err.(validator.ValidationErrors) {
		messages[e.Field()] = getValidationMessage(e)
	}
	assert.Equal(t, "This field is required", messages["Required"])
	assert.Equal(t, "Must be at least 5 characters", messages["Min"])
	assert.Equal(t, "Must be at most 3 characters", messages["Max"])
	assert.Equal(t, "Invalid UUID format", messages["UUID"])
	assert.Equal(t, "Must be one of: EMPLOYEE EXTERNAL", messages["OneOf"])
}
