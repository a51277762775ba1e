package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

var (
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentra",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sentra", Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	decisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sentra", Name: "authz_decisions_total", Help: "Authorization decisions by outcome"},
		[]string{"decision"},
	)
	rateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "sentra", Name: "rate_limit_denied_total", Help: "Requests denied by the rate limiter"},
	)
	rateLimitFailOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "sentra", Name: "rate_limit_fail_open_total", Help: "Requests allowed because the counter store was unavailable"},
	)
	auditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "sentra", Name: "audit_queue_depth", Help: "Current audit recorder backlog"},
	)
)

func init() {
	prometheus.MustRegister(reqDuration, reqTotal, decisionTotal, rateLimitDeniedTotal, rateLimitFailOpenTotal, auditQueueDepth)
}

func recordDecision(allow bool) {
	if allow {
		decisionTotal.WithLabelValues("allow").Inc()
	} else {
		decisionTotal.WithLabelValues("deny").Inc()
	}
}

// MetricsMiddleware records basic HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		observer := reqDuration.WithLabelValues(c.Request.Method, path, strconv.Itoa(status))
		// attach exemplar with trace_id if present
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			if eo, ok := observer.(prometheus.ExemplarObserver); ok {
				eo.ObserveWithExemplar(dur, prometheus.Labels{"trace_id": sc.TraceID().String()})
			} else {
				observer.Observe(dur)
			}
		} else {
			observer.Observe(dur)
		}
		reqTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
	}
}
