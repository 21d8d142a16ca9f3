package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	Requests          *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	Applications      *prometheus.CounterVec
	AttendanceEntries *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendx",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendx",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		Applications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendx",
			Name:      "team_applications_total",
			Help:      "Team applications by outcome.",
		}, []string{"outcome"}),
		AttendanceEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendx",
			Name:      "attendance_entries_total",
			Help:      "Attendance entries by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.Requests, m.RequestDuration, m.Applications, m.AttendanceEntries)
	return m
}

// GinMiddleware records request counts and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
