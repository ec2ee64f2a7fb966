package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	registry *prometheus.Registry

	verdicts        *prometheus.CounterVec
	capacityReports prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitled",
			Name:      "authorize_verdicts_total",
			Help:      "Authorization verdicts by resource and reason.",
		}, []string{"resource", "reason"}),
		capacityReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "entitled",
			Name:      "capacity_reports_total",
			Help:      "Capacity snapshots reported by resource owners.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "entitled",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	registry.MustRegister(m.verdicts, m.capacityReports, m.httpDuration)
	return m
}

func (m *Metrics) RecordVerdict(resource, reason string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(resource, reason).Inc()
}

func (m *Metrics) RecordCapacityReport() {
	if m == nil {
		return
	}
	m.capacityReports.Inc()
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// GinMiddleware records request latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
