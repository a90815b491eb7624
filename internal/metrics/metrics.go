// Package metrics provides Prometheus metrics for storage operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opendal_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendal_operations_total",
			Help: "Total storage operations",
		},
		[]string{"service", "operation", "status"},
	)

	bytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendal_bytes_read_total",
			Help: "Total bytes read from storage services",
		},
		[]string{"service"},
	)

	bytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendal_bytes_written_total",
			Help: "Total bytes written to storage services",
		},
		[]string{"service"},
	)

	credentialRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendal_credential_refreshes_total",
			Help: "Total credential loader refreshes",
		},
		[]string{"service", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation records one accessor operation.
func RecordOperation(service, operation string, duration time.Duration, success bool) {
	operationDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	operationsTotal.WithLabelValues(service, operation, status).Inc()
}

// RecordBytesRead records payload bytes received from a service.
func RecordBytesRead(service string, n int64) {
	bytesRead.WithLabelValues(service).Add(float64(n))
}

// RecordBytesWritten records payload bytes sent to a service.
func RecordBytesWritten(service string, n int64) {
	bytesWritten.WithLabelValues(service).Add(float64(n))
}

// RecordCredentialRefresh records a credential refetch.
func RecordCredentialRefresh(service string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	credentialRefreshesTotal.WithLabelValues(service, status).Inc()
}
