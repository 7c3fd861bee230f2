// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Import metrics
var (
	// ImportsTotal counts finished imports by mode (insert, upsert) and outcome.
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_imports_total",
			Help: "CSV imports by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// ImportRowsTotal counts rows by mode and result (inserted, updated, duplicate, failed, invalid).
	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_import_rows_total",
			Help: "CSV import rows by mode and result",
		},
		[]string{"mode", "result"},
	)

	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_import_duration_seconds",
			Help:    "Time spent resolving an import",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode", "processing"},
	)

	ImportsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_imports_in_flight",
			Help: "Imports currently being resolved",
		},
	)
)

// Audit and maintenance metrics
var (
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_audit_entries_total",
			Help: "Audit entries written by action",
		},
		[]string{"action"},
	)

	AuditFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_audit_failures_total",
			Help: "Audit entries that could not be persisted",
		},
	)

	TempFilesSweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_files_swept_total",
			Help: "Files removed by storage sweeps",
		},
		[]string{"area"},
	)
)

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
