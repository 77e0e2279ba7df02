package logger

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom(t *testing.T) {
	assert.Equal(t, slog.Default(), From(context.Background()))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, From(With(context.Background(), l)))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	r := gin.New()
	r.Use(Middleware(log))
	r.GET("/leads/:id", func(c *gin.Context) {
		c.Set("tenant_id", "t1")
		assert.Same(t, FromGin(c), From(c.Request.Context()))
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/leads/42", nil)
	req.Header.Set(headerRequestID, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "rid-1", w.Header().Get(headerRequestID))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/leads/:id", line["path"])
	assert.Equal(t, "t1", line["tenant_id"])
	assert.Equal(t, "rid-1", line["request_id"])
	assert.Equal(t, "emex", line["service"])
}
