package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"evmbridge/core/types"
	"evmbridge/native/migrate"
	"evmbridge/native/registry"
)

type accessLevel uint8

const (
	accessPublic accessLevel = iota
	// accessSigned needs an authenticated origin, root or signed.
	accessSigned
	accessRoot
)

type methodHandler func(http.ResponseWriter, *http.Request, *RPCRequest)

type tokenCall func(types.Origin, common.Address, []common.Hash) (migrate.ClaimResult, error)

type methodSpec struct {
	access  accessLevel
	handler methodHandler
}

func (s *Server) methods() map[string]methodSpec {
	return map[string]methodSpec{
		"bridge_replayTx":           {accessSigned, s.handleReplayTx},
		"bridge_setAuthority":       {accessRoot, s.handleSetAuthority},
		"bridge_endow":              {accessRoot, s.handleEndow},
		"bridge_migrateFullScan":    {accessRoot, s.handleMigrateFullScan},
		"bridge_scanOwned":          {accessSigned, s.handleScanOwned},
		"bridge_claimItems":         {accessSigned, s.handleClaimItems},
		"bridge_migrateWithOwnerOf": {accessSigned, s.handleMigrateWithOwnerOf},
		"bridge_resolveEvmAddress":  {accessSigned, s.handleResolveEVMAddress},
		"bridge_resolveAccountId":   {accessPublic, s.handleResolveAccountID},
		"bridge_getOwner":           {accessPublic, s.handleGetOwner},
		"bridge_getCollection":      {accessPublic, s.handleGetCollection},
		"bridge_getBalance":         {accessPublic, s.handleGetBalance},
		"bridge_getAuthority":       {accessPublic, s.handleGetAuthority},
		"bridge_status":             {accessPublic, s.handleStatus},
		"bridge_auditLog":           {accessPublic, s.handleAuditLog},
	}
}

// decodeParams unmarshals the single params object of req into dst.
func decodeParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("expected a single params object")
	}
	decoder := json.NewDecoder(bytes.NewReader(req.Params[0]))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// decodeOptionalParams accepts an omitted params array.
func decodeOptionalParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) == 0 {
		return nil
	}
	return decodeParams(req, dst)
}

// dispatchOrigin returns the origin a call runs under. A root caller may
// act as a signed account by naming it in the as field.
func dispatchOrigin(r *http.Request, as string) (types.Origin, error) {
	origin, ok := OriginFromContext(r.Context())
	if !ok {
		return types.Origin{}, errors.New("bearer token required")
	}
	as = strings.TrimSpace(as)
	if as == "" {
		return origin, nil
	}
	if !origin.IsRoot() {
		return types.Origin{}, errors.New("only root may dispatch as another account")
	}
	account, err := parseAccount("as", as)
	if err != nil {
		return types.Origin{}, err
	}
	return types.SignedOrigin(account), nil
}

func invalidParams(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
}

func (s *Server) handleReplayTx(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ReplayTxParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	origin, err := dispatchOrigin(r, params.As)
	if err != nil {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
		return
	}
	tx, err := params.Transaction()
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	settlement, err := s.backend.ReplayTx(origin, tx)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatSettlement(settlement, s.backend.Balance(tx.Payer())))
}

func (s *Server) handleSetAuthority(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params SetAuthorityParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	authority, err := parseAccount("authority", params.Authority)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	origin, _ := OriginFromContext(r.Context())
	if err := s.backend.SetAuthority(origin, authority); err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"authority": authority.String()})
}

func (s *Server) handleEndow(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params EndowParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	account, err := parseAccount("account", params.Account)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	origin, _ := OriginFromContext(r.Context())
	if err := s.backend.Endow(origin, account, amount); err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Account: account.String(), Balance: formatAmount(s.backend.Balance(account))})
}

func (s *Server) handleMigrateFullScan(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params FullScanParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	contract, err := parseAddress("contract", params.Contract)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	fallback := s.backend.ScanStart()
	if params.BaseSlot != nil {
		fallback = migrate.CollectionRegion(*params.BaseSlot)
	}
	start, err := parseOptionalWord("start", params.Start, fallback)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	origin, _ := OriginFromContext(r.Context())
	result, err := s.backend.MigrateFullScanFrom(origin, contract, start)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatScan(result))
}

func (s *Server) handleScanOwned(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ScanOwnedParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	origin, err := dispatchOrigin(r, params.As)
	if err != nil {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
		return
	}
	contract, err := parseAddress("contract", params.Contract)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	ownerKey, err := params.ownerKey()
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	start, err := params.start(origin, s.backend.ScanStart())
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	result, err := s.backend.ScanOwned(origin, contract, ownerKey, start)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatScan(result))
}

func (s *Server) handleClaimItems(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTokens(w, r, req, s.backend.ClaimByItems)
}

func (s *Server) handleMigrateWithOwnerOf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTokens(w, r, req, s.backend.MigrateWithOwnerOf)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request, req *RPCRequest, call tokenCall) {
	var params TokensParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	origin, err := dispatchOrigin(r, params.As)
	if err != nil {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
		return
	}
	contract, err := parseAddress("contract", params.Contract)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	tokens, err := parseWords("tokens", params.Tokens)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	result, err := call(origin, contract, tokens)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, formatClaim(result))
}

func (s *Server) handleResolveEVMAddress(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params AsParams
	if err := decodeOptionalParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	origin, err := dispatchOrigin(r, params.As)
	if err != nil {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
		return
	}
	addr, err := s.backend.ResolveEVMAddress(origin)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	signer, _ := origin.Signer()
	writeResult(w, req.ID, ResolveResult{Account: signer.String(), Address: addr.Hex()})
}

func (s *Server) handleResolveAccountID(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params AddressParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	account, err := s.backend.ResolveAccountID(addr)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, ResolveResult{Account: account.String(), Address: addr.Hex()})
}

func (s *Server) handleGetOwner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params OwnerParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	contract, err := parseAddress("contract", params.Contract)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	token, err := parseWord("token", params.Token)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	collection, item := s.backend.Identify(contract, token)
	owner, found, err := s.backend.Owner(collection, item)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	result := OwnerResult{Collection: collection.Hex(), Item: item.Hex(), Found: found}
	if found {
		result.Owner = owner.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ContractParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	contract, err := parseAddress("contract", params.Contract)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	id, _ := s.backend.Identify(contract, common.Hash{})
	collection, exists, err := s.backend.Collection(id)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	var items []registry.ItemID
	if exists {
		if items, err = s.backend.Items(id); err != nil {
			s.writeRuntimeError(w, req.ID, req.Method, err)
			return
		}
	}
	writeResult(w, req.ID, formatCollection(id, collection, exists, items))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params AccountParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	account, err := parseAccount("account", params.Account)
	if err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{Account: account.String(), Balance: formatAmount(s.backend.Balance(account))})
}

func (s *Server) handleGetAuthority(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	authority, ok, err := s.backend.Authority()
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	if !ok {
		writeResult(w, req.ID, map[string]interface{}{"set": false})
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"set": true, "authority": authority.String()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	evmRoot, nativeRoot, seq := s.backend.Roots()
	result := StatusResult{EVMRoot: evmRoot.Hex(), NativeRoot: nativeRoot.Hex(), Sequence: seq}
	if authority, ok, err := s.backend.Authority(); err == nil && ok {
		result.Authority = authority.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "audit log not configured", nil)
		return
	}
	var params AuditLogParams
	if err := decodeOptionalParams(req, &params); err != nil {
		invalidParams(w, req.ID, err)
		return
	}
	records, err := s.audit.Recent(r.Context(), params.Type, params.Limit)
	if err != nil {
		s.writeRuntimeError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, records)
}
