package rpc

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"evmbridge/observability/otel"
)

// statusRecorder captures the HTTP status and JSON-RPC error code written by
// a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	code   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func startMethodSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return otel.Tracer().Start(ctx, method, trace.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
	))
}

func recordSpanStatus(span trace.Span, status, code int) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	if code != 0 {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", code))
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
