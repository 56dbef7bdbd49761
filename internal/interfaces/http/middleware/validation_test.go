package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/labelops/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLine struct {
	Format   string `json:"format" binding:"required,oneof=VINYL CD CASSETTE"`
	Quantity int64  `json:"quantity" binding:"gt=0"`
}

type testCommand struct {
	Reason string     `json:"reason" binding:"required,max=10"`
	Lines  []testLine `json:"line_items" binding:"required,min=1,dive"`
}

func bindAndRespond(t *testing.T, body string) dto.Response {
	t.Helper()
	SetupValidator()

	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req testCommand
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "val-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleValidationError_FieldNames(t *testing.T) {
	resp := bindAndRespond(t, `{"line_items":[{"format":"VINYL","quantity":1},{"format":"DVD","quantity":0}]}`)

	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "val-1", resp.Error.RequestID)

	fields := map[string]string{}
	for _, f := range resp.Error.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "This field is required", fields["reason"])
	assert.Equal(t, "Must be one of: VINYL CD CASSETTE", fields["line_items[1].format"])
	assert.Equal(t, "Must be greater than 0", fields["line_items[1].quantity"])
}

func TestHandleValidationError_EmptyLines(t *testing.T) {
	resp := bindAndRespond(t, `{"reason":"damaged","line_items":[]}`)
	require.Len(t, resp.Error.Fields, 1)
	assert.Equal(t, "line_items", resp.Error.Fields[0].Field)
	assert.Equal(t, "Must contain at least 1 item(s)", resp.Error.Fields[0].Message)
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	resp := bindAndRespond(t, `{"reason":`)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Empty(t, resp.Error.Fields)
}
