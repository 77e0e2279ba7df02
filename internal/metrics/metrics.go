package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API and the sweeps.
// All methods are safe on a nil receiver so packages can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SequenceItems     *prometheus.CounterVec
	QueueItems        *prometheus.CounterVec
	WorkflowRuns      *prometheus.CounterVec
	TimeBasedFired    prometheus.Counter
	SweepDuration     *prometheus.HistogramVec
	EmailsSent        *prometheus.CounterVec
	TrackingEvents    *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request latency in seconds", Buckets: prometheus.DefBuckets},
			[]string{"method", "path"},
		),

		SequenceItems: f.NewCounterVec(
			prometheus.CounterOpts{Name: "sequence_sweep_items_total", Help: "Enrollments processed by the sequence sweep"},
			[]string{"outcome"}, // sent, completed, skipped, failed
		),
		QueueItems: f.NewCounterVec(
			prometheus.CounterOpts{Name: "outreach_queue_items_total", Help: "Queued emails processed"},
			[]string{"outcome"}, // sent, retry, bounced
		),
		WorkflowRuns: f.NewCounterVec(
			prometheus.CounterOpts{Name: "workflow_runs_total", Help: "Workflow executions by trigger and status"},
			[]string{"trigger_type", "status"},
		),
		TimeBasedFired: f.NewCounter(prometheus.CounterOpts{
			Name: "time_based_workflows_fired_total",
			Help: "Time-based workflows fired",
		}),
		SweepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "sweep_duration_seconds", Help: "Duration of one sweep for one tenant", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}},
			[]string{"sweep"},
		),
		EmailsSent: f.NewCounterVec(
			prometheus.CounterOpts{Name: "emails_sent_total", Help: "Emails handed to the provider"},
			[]string{"provider", "result"},
		),
		TrackingEvents: f.NewCounterVec(
			prometheus.CounterOpts{Name: "tracking_events_total", Help: "Open and click tracking hits"},
			[]string{"kind", "valid"},
		),
		RateLimitRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "rate_limit_rejected_total",
			Help: "Requests rejected by the tenant rate limiter",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) SequenceItem(outcome string) {
	if m == nil {
		return
	}
	m.SequenceItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueueItem(outcome string) {
	if m == nil {
		return
	}
	m.QueueItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WorkflowRun(triggerType, status string) {
	if m == nil {
		return
	}
	m.WorkflowRuns.WithLabelValues(triggerType, status).Inc()
}

func (m *Metrics) TimeBased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TimeBasedFired.Add(float64(n))
}

func (m *Metrics) ObserveSweep(sweep string, d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

func (m *Metrics) EmailSent(provider string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EmailsSent.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Tracking(kind string, valid bool) {
	if m == nil {
		return
	}
	m.TrackingEvents.WithLabelValues(kind, strconv.FormatBool(valid)).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitRejected.Inc()
}
