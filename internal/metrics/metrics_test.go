package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.SequenceItem("sent")
	m.QueueItem("sent")
	m.WorkflowRun("deal_created", "completed")
	m.TimeBased(2)
	m.EmailSent("log", true)
	m.Tracking("open", true)
	m.RateLimited()
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.SequenceItem("sent")
	m.SequenceItem("sent")
	m.SequenceItem("failed")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SequenceItems.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceItems.WithLabelValues("failed")))

	m.TimeBased(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TimeBasedFired))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "204")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}
