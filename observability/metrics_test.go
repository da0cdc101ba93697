package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestModuleMetricsObserve(t *testing.T) {
	metrics := ModuleMetrics()
	before := counterValue(t, metrics.requests.WithLabelValues("bridge", "test_observe", "error"))
	errsBefore := counterValue(t, metrics.errors.WithLabelValues("bridge", "test_observe", "-32602"))

	metrics.Observe("bridge", "test_observe", -32602, time.Millisecond)
	metrics.Observe("bridge", "test_observe", 0, time.Millisecond)

	if got := counterValue(t, metrics.requests.WithLabelValues("bridge", "test_observe", "error")) - before; got != 1 {
		t.Fatalf("error requests delta = %v, want 1", got)
	}
	if got := counterValue(t, metrics.errors.WithLabelValues("bridge", "test_observe", "-32602")) - errsBefore; got != 1 {
		t.Fatalf("errors delta = %v, want 1", got)
	}
}

func TestModuleMetricsThrottleDefaults(t *testing.T) {
	metrics := ModuleMetrics()
	before := counterValue(t, metrics.throttles.WithLabelValues("unknown", "unspecified"))
	metrics.RecordThrottle("", "")
	if got := counterValue(t, metrics.throttles.WithLabelValues("unknown", "unspecified")) - before; got != 1 {
		t.Fatalf("throttle delta = %v, want 1", got)
	}
}

func TestBridgeMetricsCountsCommitsOnlyOnSuccess(t *testing.T) {
	metrics := Bridge()
	commits := counterValue(t, metrics.commits)
	failures := counterValue(t, metrics.operations.WithLabelValues("test_op", "error"))

	metrics.Observe("test_op", time.Millisecond, errors.New("boom"))
	if got := counterValue(t, metrics.commits); got != commits {
		t.Fatalf("failed operation committed: %v -> %v", commits, got)
	}
	if got := counterValue(t, metrics.operations.WithLabelValues("test_op", "error")) - failures; got != 1 {
		t.Fatalf("error outcome delta = %v, want 1", got)
	}

	metrics.Observe("test_op", time.Millisecond, nil)
	if got := counterValue(t, metrics.commits) - commits; got != 1 {
		t.Fatalf("commit delta = %v, want 1", got)
	}
}

func TestBridgeMetricsRecordScanSkipsEmpty(t *testing.T) {
	metrics := Bridge()
	before := counterValue(t, metrics.scanPairs.WithLabelValues("test_scan"))
	metrics.RecordScan("test_scan", 0)
	metrics.RecordScan("test_scan", 7)
	if got := counterValue(t, metrics.scanPairs.WithLabelValues("test_scan")) - before; got != 7 {
		t.Fatalf("scan pairs delta = %v, want 7", got)
	}

	var nilMetrics *BridgeMetrics
	nilMetrics.RecordScan("test_scan", 1)
	nilMetrics.RecordReplayGas(21_000)
}
