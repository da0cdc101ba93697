package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"evmbridge/core/events"
	"evmbridge/crypto"
)

func TestDispatcherSignsPayload(t *testing.T) {
	var (
		mu        sync.Mutex
		body      []byte
		signature string
		eventType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		body = data
		signature = r.Header.Get(headerSignature)
		eventType = r.Header.Get(headerEvent)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	dispatcher.Emit(events.AccountResolved{Address: addr, Account: crypto.AccountFromEVM(addr)})

	received := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return signature != ""
	}
	waitFor(received, time.Second)
	mu.Lock()
	defer mu.Unlock()
	if signature == "" {
		t.Fatalf("expected signature header")
	}
	if !Verify([]byte("secret"), body, signature) {
		t.Fatalf("signature %s does not verify", signature)
	}
	if eventType != events.TypeAccountResolved {
		t.Fatalf("unexpected event header %q", eventType)
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Attributes["address"] != addr.Hex() || payload.DeliveryID == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Enqueue(events.ScanCompleted{Mode: "full", Complete: true}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestDispatcherFiltersEventTypes(t *testing.T) {
	hits := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithEventTypes(events.TypeScanCompleted))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	dispatcher.Emit(events.AuthoritySet{})
	dispatcher.Emit(events.ScanCompleted{Mode: "owned"})
	waitFor(func() bool { return atomic.LoadInt32(&hits) >= 1 }, time.Second)
	dispatcher.Close()
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithQueueSize(1))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	for i := 0; i < 5; i++ {
		dispatcher.Emit(events.AuthoritySet{})
	}
	if dispatcher.Dropped() == 0 {
		t.Fatalf("expected dropped deliveries")
	}
}

func TestDispatcherRecordsDeliveryCounters(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithMeterProvider(provider),
		WithRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	if err := dispatcher.Enqueue(events.ScanCompleted{Mode: "full", Complete: true}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return counterTotal(t, reader, "bridge.webhooks.delivered") == 1 }, time.Second)
	if got := counterTotal(t, reader, "bridge.webhooks.delivered"); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}

	fail.Store(true)
	if err := dispatcher.Enqueue(events.ScanCompleted{Mode: "owned"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return counterTotal(t, reader, "bridge.webhooks.abandoned") == 1 }, 2*time.Second)
	if got := counterTotal(t, reader, "bridge.webhooks.abandoned"); got != 1 {
		t.Fatalf("abandoned = %d, want 1", got)
	}
	if got := counterTotal(t, reader, "bridge.webhooks.delivered"); got != 1 {
		t.Fatalf("failed delivery counted as delivered: %d", got)
	}
}

func TestDispatcherCountsQueueFullDrops(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithQueueSize(1), WithMeterProvider(provider))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	for i := 0; i < 5; i++ {
		dispatcher.Emit(events.AuthoritySet{})
	}
	dropped := dispatcher.Dropped()
	if dropped == 0 {
		t.Fatalf("expected dropped deliveries")
	}
	if got := counterTotal(t, reader, "bridge.webhooks.dropped"); uint64(got) != dropped {
		t.Fatalf("dropped counter = %d, dispatcher reports %d", got, dropped)
	}
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			for _, point := range sum.DataPoints {
				total += point.Value
			}
		}
	}
	return total
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("secret")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
