// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-libcrypto.
//
// go-libcrypto is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for go-libcrypto
// operations. It exposes cipher operation counters and latency histograms,
// authentication failure counters, backend load outcomes, and native
// context gauges to enable monitoring of crypto health and performance.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all libcrypto metrics
	Namespace = "libcrypto"

	// Label names
	LabelOperation = "operation"
	LabelAlgorithm = "algorithm"
	LabelStatus    = "status"
	LabelErrorType = "error_type"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpInit      = "init"
	OpUpdateAAD = "update_aad"
	OpUpdate    = "update"
	OpFinalize  = "finalize"
	OpDigest    = "digest"
	OpLoad      = "load"
)

var (
	// OperationsTotal tracks the total number of cipher and digest
	// operations by type, algorithm, and status. Use RecordOperation to
	// increment this counter with the appropriate labels.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of cipher operations by type, algorithm, and status",
		},
		[]string{LabelOperation, LabelAlgorithm, LabelStatus},
	)

	// OperationDuration tracks the duration of cipher operations in
	// seconds. Buckets are sized for in-process cryptographic calls.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of cipher operations in seconds",
			Buckets:   []float64{.000001, .00001, .0001, .001, .01, .1, 1},
		},
		[]string{LabelOperation, LabelAlgorithm},
	)

	// ErrorsTotal tracks the total number of errors by operation,
	// algorithm, and error type. Error types should be specific (e.g.,
	// "tag_mismatch", "aad_after_data", "key_nonce_reuse").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, algorithm, and error type",
		},
		[]string{LabelOperation, LabelAlgorithm, LabelErrorType},
	)

	// TagMismatchTotal tracks AEAD authentication tag verification
	// failures. These are expected, security-relevant outcomes and are
	// counted separately from programmer errors.
	TagMismatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tag_mismatch_total",
			Help:      "Total number of AEAD authentication tag verification failures",
		},
		[]string{LabelAlgorithm},
	)

	// BackendLoadsTotal tracks native backend resolution attempts by
	// status.
	BackendLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backend_loads_total",
			Help:      "Total number of native backend load attempts by status",
		},
		[]string{LabelStatus},
	)

	// ActiveContexts tracks the number of live native cipher contexts.
	ActiveContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_contexts",
			Help:      "Number of live native cipher contexts",
		},
	)

	// BackendAvailable indicates whether a native backend loaded (1) or
	// the process is running fully managed (0).
	BackendAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "backend_available",
			Help:      "Indicates whether a native backend is loaded (1) or not (0)",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a cipher operation with its duration and status.
// This is the primary function for tracking operational metrics.
//
// Parameters:
//   - operation: The operation name (use Op* constants)
//   - algorithm: The algorithm identifier (e.g., "AES-GCM", "ChaCha20-Poly1305")
//   - status: The operation status (use Status* constants)
//   - duration: The operation duration in seconds
func RecordOperation(operation, algorithm, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, algorithm, status).Inc()
	OperationDuration.WithLabelValues(operation, algorithm).Observe(duration)
}

// RecordError records an error event with context about where it occurred.
//
// Parameters:
//   - operation: The operation during which the error occurred (use Op* constants)
//   - algorithm: The algorithm in use when the error occurred
//   - errorType: A specific error type identifier (e.g., "aad_after_data")
func RecordError(operation, algorithm, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, algorithm, errorType).Inc()
}

// RecordTagMismatch records one authentication tag verification failure.
func RecordTagMismatch(algorithm string) {
	if !enabled.Load() {
		return
	}
	TagMismatchTotal.WithLabelValues(algorithm).Inc()
}

// RecordBackendLoad records one native backend resolution attempt and
// updates the availability gauge.
func RecordBackendLoad(status string) {
	if !enabled.Load() {
		return
	}
	BackendLoadsTotal.WithLabelValues(status).Inc()
	value := 0.0
	if status == StatusSuccess {
		value = 1.0
	}
	BackendAvailable.Set(value)
}

// IncrementActiveContexts increments the live native context count.
func IncrementActiveContexts() {
	if !enabled.Load() {
		return
	}
	ActiveContexts.Inc()
}

// DecrementActiveContexts decrements the live native context count.
func DecrementActiveContexts() {
	if !enabled.Load() {
		return
	}
	ActiveContexts.Dec()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
