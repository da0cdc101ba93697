package rpc

import (
	"errors"
	"net/http"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/evm"
	nativecommon "evmbridge/native/common"
	"evmbridge/native/registry"
)

const (
	codeParseError      = -32700
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeServerError     = -32000
	codeUnauthorized    = -32001
	codeNotFound        = -32002
	codeModulePaused    = -32003
	codeQuotaExceeded   = -32004
	codeExecutionFailed = -32010
	codeOverflow        = -32011
	codeDecodeFailed    = -32012
	codeInsufficient    = -32013
	codeRateLimited     = -32020
)

// classify maps a runtime failure onto an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	switch {
	case errors.Is(err, bridgeerrors.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, bridgeerrors.ErrInvalidSignature):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, bridgeerrors.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity, codeOverflow
	case errors.Is(err, bridgeerrors.ErrCallDecodeFailed):
		return http.StatusUnprocessableEntity, codeDecodeFailed
	case errors.Is(err, bridgeerrors.ErrExecutionFailed):
		return http.StatusUnprocessableEntity, codeExecutionFailed
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, codeModulePaused
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded),
		errors.Is(err, nativecommon.ErrQuotaItemCapExceeded),
		errors.Is(err, nativecommon.ErrQuotaCounterOverflow):
		return http.StatusTooManyRequests, codeQuotaExceeded
	case errors.Is(err, evm.ErrInsufficientBalance),
		errors.Is(err, evm.ErrKeepAlive),
		errors.Is(err, evm.ErrForeignAccount):
		return http.StatusUnprocessableEntity, codeInsufficient
	case errors.Is(err, registry.ErrCollectionNotFound),
		errors.Is(err, registry.ErrItemNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, registry.ErrItemOwnedElsewhere):
		return http.StatusConflict, codeExecutionFailed
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func (s *Server) writeRuntimeError(w http.ResponseWriter, id interface{}, method string, err error) {
	status, code := classify(err)
	if code == codeServerError {
		s.logger.Error("rpc call failed", "method", method, "error", err)
	}
	writeError(w, status, id, code, err.Error(), nil)
}
