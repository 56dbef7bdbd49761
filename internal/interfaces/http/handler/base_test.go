package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/interfaces/http/dto"
	"github.com/labelops/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(method, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/test", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.RequestIDKey, "req-123")
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient inventory", shared.NewInsufficientInventory(350, 300), http.StatusUnprocessableEntity, dto.ErrCodeInsufficientInventory},
		{"wrapped insufficient inventory", fmt.Errorf("allocate: %w", shared.NewInsufficientInventory(5, 0)), http.StatusUnprocessableEntity, dto.ErrCodeInsufficientInventory},
		{"invalid request", shared.NewInvalidRequest("quantity must be positive"), http.StatusBadRequest, dto.ErrCodeInvalidRequest},
		{"not found", shared.NewNotFound("sale", "abc"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"duplicate reference", shared.ErrDuplicateReference, http.StatusConflict, dto.ErrCodeDuplicateReference},
		{"concurrency conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, dto.ErrCodeTimeout},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	h := &BaseHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodPost, "")
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "req-123", resp.Error.RequestID)
			assert.Equal(t, tt.code, c.GetString(middleware.ErrorCodeKey))
			assert.NotContains(t, resp.Error.Message, "disk on fire")
		})
	}
}

func TestBaseHandler_HandleError_Details(t *testing.T) {
	c, w := newTestContext(http.MethodPost, "")
	(&BaseHandler{}).HandleError(c, shared.NewInsufficientInventory(350, 300))

	var raw struct {
		Error struct {
			Details dto.InsufficientInventoryDetails `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, int64(350), raw.Error.Details.Requested)
	assert.Equal(t, int64(300), raw.Error.Details.Available)
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "")
	(&BaseHandler{}).HandleError(c, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestBaseHandler_BindJSON(t *testing.T) {
	middleware.SetupValidator()
	type request struct {
		Reason string `json:"reason" binding:"required"`
		Delta  int64  `json:"delta"`
	}
	h := &BaseHandler{}

	t.Run("valid", func(t *testing.T) {
		c, _ := newTestContext(http.MethodPost, `{"reason":"damaged","delta":-2}`)
		var req request
		require.True(t, h.BindJSON(c, &req))
		assert.Equal(t, int64(-2), req.Delta)
	})

	t.Run("validation failure", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, `{"delta":-2}`)
		var req request
		assert.False(t, h.BindJSON(c, &req))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Fields, 1)
		assert.Equal(t, "reason", resp.Error.Fields[0].Field)
	})

	t.Run("wrong type", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, `{"reason":"x","delta":"many"}`)
		var req request
		assert.False(t, h.BindJSON(c, &req))
		assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, "")
		var req request
		assert.False(t, h.BindJSON(c, &req))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code)
	})
}

func TestBaseHandler_PathID(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext(http.MethodGet, "")
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	_, ok := h.PathID(c, "sale")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid sale ID format", decodeResponse(t, w).Error.Message)

	c, _ = newTestContext(http.MethodGet, "")
	c.Params = gin.Params{{Key: "id", Value: "0191b0a8-1f2e-7c3d-9a4b-5c6d7e8f9a0b"}}
	id, ok := h.PathID(c, "sale")
	assert.True(t, ok)
	assert.Equal(t, "0191b0a8-1f2e-7c3d-9a4b-5c6d7e8f9a0b", id.String())
}

func TestList_EmptySlice(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "")
	List[string](c, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[],"meta":{"total":0}}`, w.Body.String())
}
