package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"evmbridge/core/types"
	"evmbridge/crypto"
	"evmbridge/integrations/audit"
	"evmbridge/native/migrate"
	"evmbridge/native/registry"
	"evmbridge/native/replay"
	"evmbridge/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	metricsModule   = "bridge"
)

// Backend is the runtime surface served over JSON-RPC.
type Backend interface {
	ReplayTx(origin types.Origin, tx *types.ReplayedTransaction) (*replay.Settlement, error)
	SetAuthority(origin types.Origin, authority crypto.AccountID) error
	Endow(origin types.Origin, account crypto.AccountID, amount *uint256.Int) error
	MigrateFullScanFrom(origin types.Origin, contract common.Address, start common.Hash) (migrate.ScanResult, error)
	ScanOwned(origin types.Origin, contract common.Address, ownerKey, start common.Hash) (migrate.ScanResult, error)
	ClaimByItems(origin types.Origin, contract common.Address, items []common.Hash) (migrate.ClaimResult, error)
	MigrateWithOwnerOf(origin types.Origin, contract common.Address, tokens []common.Hash) (migrate.ClaimResult, error)
	ResolveEVMAddress(origin types.Origin) (common.Address, error)
	ResolveAccountID(addr common.Address) (crypto.AccountID, error)

	Identify(contract common.Address, token common.Hash) (registry.CollectionID, registry.ItemID)
	ScanStart() common.Hash
	Owner(collection registry.CollectionID, item registry.ItemID) (crypto.AccountID, bool, error)
	Collection(id registry.CollectionID) (*registry.Collection, bool, error)
	Items(id registry.CollectionID) ([]registry.ItemID, error)
	Balance(account crypto.AccountID) *uint256.Int
	Authority() (crypto.AccountID, bool, error)
	Roots() (evmRoot, nativeRoot common.Hash, seq uint64)
}

// AuditLog serves bridge_auditLog.
type AuditLog interface {
	Recent(ctx context.Context, eventType string, limit int) ([]audit.Record, error)
}

type moduleObserver interface {
	Observe(module, method string, code int, duration time.Duration)
	RecordThrottle(module, reason string)
}

// ServerConfig wires the optional collaborators of the server.
type ServerConfig struct {
	Auth      AuthConfig
	RateLimit RateLimit
	Audit     AuditLog
	Logger    *slog.Logger
}

type Server struct {
	backend Backend
	audit   AuditLog
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	metrics moduleObserver
}

// NewServer constructs the JSON-RPC server for backend.
func NewServer(backend Backend, cfg ServerConfig) (*Server, error) {
	if backend == nil {
		return nil, errors.New("rpc: backend required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		backend: backend,
		audit:   cfg.Audit,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
		logger:  logger,
		metrics: observability.ModuleMetrics(),
	}, nil
}

// Handler returns the routed HTTP handler: JSON-RPC on POST /, liveness on
// /healthz and Prometheus metrics on /metrics.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.With(s.limiter.Middleware, s.auth.Middleware).Post("/", s.handle)
	return otelhttp.NewHandler(router, "bridge.rpc")
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if rec, ok := w.(*statusRecorder); ok {
		rec.code = code
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	method, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	ctx, span := startMethodSpan(r.Context(), req.Method)
	defer span.End()
	r = r.WithContext(ctx)

	origin, hasOrigin := OriginFromContext(ctx)
	switch {
	case method.access == accessRoot && (!hasOrigin || !origin.IsRoot()):
		writeError(recorder, http.StatusUnauthorized, req.ID, codeUnauthorized, "root credentials required", nil)
	case method.access == accessSigned && !hasOrigin:
		writeError(recorder, http.StatusUnauthorized, req.ID, codeUnauthorized, "bearer token required", nil)
	default:
		method.handler(recorder, r, req)
	}

	recordSpanStatus(span, recorder.status, recorder.code)
	s.metrics.Observe(metricsModule, req.Method, recorder.code, time.Since(start))
	s.logger.Debug("rpc call",
		"method", req.Method,
		"origin", originLabel(origin, hasOrigin),
		"status", recorder.status,
		"code", recorder.code,
		"remote", clientSource(r))
}

func originLabel(origin types.Origin, ok bool) string {
	if !ok {
		return "anonymous"
	}
	return origin.String()
}
