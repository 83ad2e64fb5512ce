package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idcard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		},
		[]string{"method", "path", "status"},
	)

	responseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idcard",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response body size. PDFs and PNGs dominate the upper buckets.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 9),
		},
		[]string{"method", "path"},
	)

	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "idcard",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "HTTP requests in flight.",
		},
	)
)

// GinMiddleware records request metrics labelled by route pattern. Unmatched paths share
// the "unmatched" label.
func GinMiddleware() gin.HandlerFunc {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestDuration, requestTotal, responseSize, requestsInFlight)
	})

	return func(c *gin.Context) {
		start := time.Now()
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"path":   path,
			"status": strconv.Itoa(c.Writer.Status()),
		}

		requestDuration.With(labels).Observe(time.Since(start).Seconds())
		requestTotal.With(labels).Inc()
		if size := c.Writer.Size(); size > 0 {
			responseSize.WithLabelValues(c.Request.Method, path).Observe(float64(size))
		}
	}
}
