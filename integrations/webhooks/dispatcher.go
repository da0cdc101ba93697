package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"evmbridge/core/events"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 256

	headerEvent     = "X-Bridge-Event"
	headerSignature = "X-Bridge-Signature"
	headerDelivery  = "X-Bridge-Delivery"
)

var (
	errQueueFull = errors.New("webhook: queue full")
	errClosed    = errors.New("webhook: dispatcher closed")
)

// Payload is the webhook body for one committed bridge event.
type Payload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
	DeliveryID string            `json:"deliveryId"`
}

// Dispatcher forwards committed events to an HTTP endpoint with retry and
// exponential backoff. It implements events.Emitter.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	queueSize   int
	types       map[string]struct{}
	logger      *slog.Logger
	nowFn       func() time.Time
	meters      metric.MeterProvider

	dropped atomic.Uint64
	metrics *deliveryMetrics

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	id        string
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithEventTypes restricts deliveries to the listed event types.
func WithEventTypes(types ...string) Option {
	return func(d *Dispatcher) {
		if len(types) == 0 {
			return
		}
		d.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			d.types[t] = struct{}{}
		}
	}
}

// WithQueueSize sets the number of pending deliveries kept in memory.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMeterProvider routes delivery counters to provider instead of the
// global otel provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		d.meters = provider
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = string(bytes.TrimSpace([]byte(endpoint)))
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		queueSize:   defaultQueueSize,
		logger:      slog.Default(),
		nowFn:       time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.metrics = newDeliveryMetrics(dispatcher.meters)
	dispatcher.queue = make(chan delivery, dispatcher.queueSize)
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Emit implements events.Emitter. It never blocks the caller: when the queue
// is full the event is dropped and counted.
func (d *Dispatcher) Emit(evt events.Event) {
	if err := d.Enqueue(evt); err != nil && !errors.Is(err, errClosed) {
		d.logger.Warn("webhook enqueue failed", "event", evt.EventType(), "error", err)
	}
}

// Enqueue schedules evt for asynchronous delivery.
func (d *Dispatcher) Enqueue(evt events.Event) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if d.ctx.Err() != nil {
		return errClosed
	}
	rendered := events.Render(evt)
	if d.types != nil {
		if _, ok := d.types[rendered.Type]; !ok {
			return nil
		}
	}
	payload := Payload{
		Type:       rendered.Type,
		Attributes: rendered.Attributes,
		EmittedAt:  d.nowFn().UTC(),
		DeliveryID: uuid.NewString(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		d.metrics.recordDropped(payload.Type, dropReasonEncode)
		return err
	}
	select {
	case d.queue <- delivery{id: payload.DeliveryID, eventType: payload.Type, body: data}:
		return nil
	default:
		d.dropped.Add(1)
		d.metrics.recordDropped(payload.Type, dropReasonQueueFull)
		return errQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			d.metrics.recordDelivered(job.eventType)
			return
		}
		if attempt >= d.maxAttempts {
			d.metrics.recordAbandoned(job.eventType)
			d.logger.Error("webhook delivery abandoned",
				"event", job.eventType,
				"delivery", job.id,
				"attempts", attempt,
				"error", err)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, job.eventType)
	req.Header.Set(headerDelivery, job.id)
	req.Header.Set(headerSignature, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
