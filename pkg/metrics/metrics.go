// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for passkey
// ceremony operations. It exposes ceremony counters, performance
// histograms, error counters, and resource gauges for monitoring
// server health.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelCeremony   = "ceremony"
	LabelPhase      = "phase"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Ceremony names
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Phase names
	PhaseBegin  = "begin"
	PhaseFinish = "finish"
)

var (
	// CeremoniesTotal tracks the total number of ceremony operations by
	// ceremony, phase, and status. Use RecordCeremony to increment it.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony operations by ceremony, phase, and status",
		},
		[]string{LabelCeremony, LabelPhase, LabelStatus},
	)

	// CeremonyDuration tracks the duration of ceremony operations in seconds.
	// Buckets are optimized for typical signature verification latencies.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelCeremony, LabelPhase},
	)

	// ErrorsTotal tracks the total number of ceremony errors by ceremony and
	// error type. Error types should be specific (e.g., "challenge_expired",
	// "verification_failed", "clone_detected").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of ceremony errors by ceremony and error type",
		},
		[]string{LabelCeremony, LabelErrorType},
	)

	// CloneDetectionsTotal counts assertions rejected because the sign
	// counter did not advance. Worth alerting on: each one is a possible
	// cloned authenticator.
	CloneDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clone_detections_total",
			Help:      "Total number of assertions rejected by sign counter clone detection",
		},
	)

	// CredentialsTotal tracks the total number of registered credentials.
	CredentialsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "credentials_total",
			Help:      "Total number of registered credentials",
		},
	)

	// PendingChallenges tracks the number of outstanding ceremony challenges.
	PendingChallenges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_challenges",
			Help:      "Number of outstanding ceremony challenges",
		},
	)

	// ActiveConnections tracks the number of active HTTP connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of active HTTP connections",
		},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// Goroutines tracks the current number of goroutines in the server.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// MemorySysBytes tracks the total bytes of memory obtained from the OS.
	// Updated periodically by the resource collector.
	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_sys_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	// GCPauseTotalSeconds tracks the cumulative time spent in GC stop-the-world pauses.
	// Updated periodically by the resource collector.
	GCPauseTotalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gc_pause_total_seconds",
			Help:      "Cumulative time spent in GC stop-the-world pauses",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a ceremony operation with its duration and status.
//
// Parameters:
//   - ceremony: The ceremony name (use Ceremony* constants)
//   - phase: The ceremony phase (use Phase* constants)
//   - status: The operation status (use Status* constants)
//   - duration: The operation duration in seconds
//
// Example:
//
//	start := time.Now()
//	_, err := svc.FinishAuthentication(ctx, userID, assertion)
//	duration := time.Since(start).Seconds()
//	if err != nil {
//	    RecordCeremony(CeremonyAuthentication, PhaseFinish, StatusError, duration)
//	} else {
//	    RecordCeremony(CeremonyAuthentication, PhaseFinish, StatusSuccess, duration)
//	}
func RecordCeremony(ceremony, phase, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, phase, status).Inc()
	CeremonyDuration.WithLabelValues(ceremony, phase).Observe(duration)
}

// RecordError records a ceremony error with context about where it occurred.
//
// Example:
//
//	if passkey.IsChallengeExpired(err) {
//	    RecordError(CeremonyAuthentication, "challenge_expired")
//	}
func RecordError(ceremony, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(ceremony, errorType).Inc()
}

// RecordCloneDetection records a clone detection event.
func RecordCloneDetection() {
	if !enabled.Load() {
		return
	}
	CloneDetectionsTotal.Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// IncrementActiveConnections increments the active connection count.
func IncrementActiveConnections() {
	if !enabled.Load() {
		return
	}
	ActiveConnections.Inc()
}

// DecrementActiveConnections decrements the active connection count.
func DecrementActiveConnections() {
	if !enabled.Load() {
		return
	}
	ActiveConnections.Dec()
}

// SetCredentialsTotal sets the total number of registered credentials.
func SetCredentialsTotal(count float64) {
	if !enabled.Load() {
		return
	}
	CredentialsTotal.Set(count)
}

// SetPendingChallenges sets the number of outstanding challenges.
func SetPendingChallenges(count float64) {
	if !enabled.Load() {
		return
	}
	PendingChallenges.Set(count)
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
