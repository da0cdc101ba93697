package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	bridgeMetricsOnce sync.Once
	bridgeRegistry    *BridgeMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "evmbridge",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "evmbridge",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "evmbridge",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "evmbridge",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC request. code is the JSON-RPC
// error code, or zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// BridgeMetrics captures state-transition level metrics for the runtime.
type BridgeMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	scanPairs  *prometheus.CounterVec
	replayGas  prometheus.Histogram
	commits    prometheus.Counter
}

// Bridge returns the singleton metrics registry for runtime operations.
func Bridge() *BridgeMetrics {
	bridgeMetricsOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "evmbridge",
				Subsystem: "runtime",
				Name:      "operations_total",
				Help:      "Count of runtime entry point invocations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "evmbridge",
				Subsystem: "runtime",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for runtime entry points including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			scanPairs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "evmbridge",
				Subsystem: "migrate",
				Name:      "scan_pairs_total",
				Help:      "Storage pairs visited by migration scans segmented by mode.",
			}, []string{"mode"}),
			replayGas: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "evmbridge",
				Subsystem: "replay",
				Name:      "used_gas",
				Help:      "Gas consumed by replayed transactions in the embedded EVM.",
				Buckets:   prometheus.ExponentialBuckets(21_000, 2, 10),
			}),
			commits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "evmbridge",
				Subsystem: "runtime",
				Name:      "commits_total",
				Help:      "Count of committed state transitions.",
			}),
		}
		prometheus.MustRegister(
			bridgeRegistry.operations,
			bridgeRegistry.latency,
			bridgeRegistry.scanPairs,
			bridgeRegistry.replayGas,
			bridgeRegistry.commits,
		)
	})
	return bridgeRegistry
}

// Observe records the outcome and latency of one runtime operation.
func (m *BridgeMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else {
		m.commits.Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordScan adds the pairs visited by a scan.
func (m *BridgeMetrics) RecordScan(mode string, pairs uint64) {
	if m == nil || pairs == 0 {
		return
	}
	m.scanPairs.WithLabelValues(mode).Add(float64(pairs))
}

// RecordReplayGas observes the executor gas of a successful replay.
func (m *BridgeMetrics) RecordReplayGas(used uint64) {
	if m == nil {
		return
	}
	m.replayGas.Observe(float64(used))
}
