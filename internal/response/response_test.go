package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h gin.HandlerFunc, reqID string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	r.ServeHTTP(w, req)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestSuccess_Envelope(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		Success(c, http.StatusCreated, gin.H{"ok": true})
	}, "req-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	assert.Nil(t, body.Error)
	assert.Equal(t, "req-1", body.Metadata.RequestID)
	assert.NotEmpty(t, body.Metadata.Timestamp)
	assert.Equal(t, map[string]interface{}{"ok": true}, body.Data)
}

func TestFailWithFields_Envelope(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"email": "email is required"})
	}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrValidation, body.Error.Code)
	assert.Equal(t, GetMessage(ErrValidation), body.Error.Message)
	assert.Equal(t, "email is required", body.Error.Fields["email"])
	assert.NotEmpty(t, body.Metadata.RequestID)
}

func TestGetMessage_Unknown(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred.", GetMessage("NOPE"))
	assert.Equal(t, "You have already attempted this exam.", GetMessage(ErrAttemptCompleted))
}
