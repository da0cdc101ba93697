package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"evmbridge/core/types"
	"evmbridge/crypto"
	"evmbridge/native/migrate"
	"evmbridge/native/registry"
	"evmbridge/native/replay"
)

// ReplayTxParams carries an observed transaction. Numeric fields accept
// decimal or 0x-prefixed hex strings.
type ReplayTxParams struct {
	As             string  `json:"as,omitempty"`
	ExecutionIndex uint64  `json:"executionIndex"`
	From           string  `json:"from"`
	Nonce          string  `json:"nonce"`
	GasPrice       string  `json:"gasPrice"`
	GasLimit       string  `json:"gasLimit"`
	GasUsed        string  `json:"gasUsed"`
	To             *string `json:"to,omitempty"`
	Value          string  `json:"value"`
	Data           string  `json:"data,omitempty"`
	V              uint64  `json:"v"`
	R              string  `json:"r"`
	S              string  `json:"s"`
}

type SetAuthorityParams struct {
	Authority string `json:"authority"`
}

type EndowParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type FullScanParams struct {
	Contract string `json:"contract"`
	// BaseSlot overrides the configured declaration index of the scanned
	// region.
	BaseSlot *uint64 `json:"baseSlot,omitempty"`
	// Start resumes a partial scan. Empty starts at the base slot region.
	Start string `json:"start,omitempty"`
}

// ScanOwnedParams locates the contract-owner word either by raw key or by
// declaration slot, optionally as mapping[ownerMappingKey]. Scope selects the
// caller's own region ("account", the default) or the contract-wide one
// ("collection") when no explicit start is given.
type ScanOwnedParams struct {
	As              string  `json:"as,omitempty"`
	Contract        string  `json:"contract"`
	OwnerKey        string  `json:"ownerKey,omitempty"`
	OwnerSlot       *uint64 `json:"ownerSlot,omitempty"`
	OwnerMappingKey string  `json:"ownerMappingKey,omitempty"`
	Scope           string  `json:"scope,omitempty"`
	BaseSlot        *uint64 `json:"baseSlot,omitempty"`
	Start           string  `json:"start,omitempty"`
}

const (
	scopeAccount    = "account"
	scopeCollection = "collection"
)

// ownerKey resolves the storage key of the contract-owner word.
func (p ScanOwnedParams) ownerKey() (common.Hash, error) {
	raw := strings.TrimSpace(p.OwnerKey)
	switch {
	case raw != "" && p.OwnerSlot != nil:
		return common.Hash{}, fmt.Errorf("ownerKey and ownerSlot are mutually exclusive")
	case raw != "":
		if strings.TrimSpace(p.OwnerMappingKey) != "" {
			return common.Hash{}, fmt.Errorf("ownerMappingKey requires ownerSlot")
		}
		return parseWord("ownerKey", raw)
	case p.OwnerSlot != nil:
		key, err := parseOptionalWord("ownerMappingKey", p.OwnerMappingKey, common.Hash{})
		if err != nil {
			return common.Hash{}, err
		}
		return migrate.OwnerSlotKey(*p.OwnerSlot, key), nil
	default:
		return common.Hash{}, fmt.Errorf("ownerKey or ownerSlot required")
	}
}

// start resolves the first scanned key. A zero result lets the runtime
// derive the caller's region from its configured base slot.
func (p ScanOwnedParams) start(origin types.Origin, defaultCollection common.Hash) (common.Hash, error) {
	if strings.TrimSpace(p.Start) != "" {
		return parseWord("start", p.Start)
	}
	switch strings.ToLower(strings.TrimSpace(p.Scope)) {
	case "", scopeAccount:
		if p.BaseSlot == nil {
			return common.Hash{}, nil
		}
		signer, ok := origin.Signer()
		if !ok {
			return common.Hash{}, nil
		}
		return migrate.AccountRegion(signer.EVMAddress(), *p.BaseSlot), nil
	case scopeCollection:
		if p.BaseSlot == nil {
			return defaultCollection, nil
		}
		return migrate.CollectionRegion(*p.BaseSlot), nil
	default:
		return common.Hash{}, fmt.Errorf("scope: unknown value %q", p.Scope)
	}
}

type TokensParams struct {
	As       string   `json:"as,omitempty"`
	Contract string   `json:"contract"`
	Tokens   []string `json:"tokens"`
}

type AsParams struct {
	As string `json:"as,omitempty"`
}

type AddressParams struct {
	Address string `json:"address"`
}

type AccountParams struct {
	Account string `json:"account"`
}

type OwnerParams struct {
	Contract string `json:"contract"`
	Token    string `json:"token"`
}

type ContractParams struct {
	Contract string `json:"contract"`
}

type AuditLogParams struct {
	Type  string `json:"type,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SettlementResult struct {
	Prefund   string `json:"prefund"`
	UsedGas   uint64 `json:"usedGas"`
	Withdrawn string `json:"withdrawn"`
	Balance   string `json:"balance"`
}

type ScanResult struct {
	Collection  string `json:"collection"`
	Pairs       uint64 `json:"pairs"`
	Minted      uint64 `json:"minted"`
	Transferred uint64 `json:"transferred"`
	Skipped     uint64 `json:"skipped"`
	Complete    bool   `json:"complete"`
	Next        string `json:"next"`
}

type ClaimedToken struct {
	Token   string `json:"token"`
	Outcome string `json:"outcome"`
}

type SkippedToken struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

type ClaimResult struct {
	Collection string         `json:"collection"`
	Claimed    []ClaimedToken `json:"claimed"`
	Skipped    []SkippedToken `json:"skipped"`
}

type OwnerResult struct {
	Collection string `json:"collection"`
	Item       string `json:"item"`
	Owner      string `json:"owner,omitempty"`
	Found      bool   `json:"found"`
}

type CollectionResult struct {
	ID        string   `json:"id"`
	Exists    bool     `json:"exists"`
	Admin     string   `json:"admin,omitempty"`
	Deposit   string   `json:"deposit,omitempty"`
	CreatedAt uint64   `json:"createdAt,omitempty"`
	Items     []string `json:"items,omitempty"`
}

type BalanceResult struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type ResolveResult struct {
	Account string `json:"account"`
	Address string `json:"address"`
}

type StatusResult struct {
	EVMRoot    string `json:"evmRoot"`
	NativeRoot string `json:"nativeRoot"`
	Sequence   uint64 `json:"sequence"`
	Authority  string `json:"authority,omitempty"`
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

// parseWord accepts a 0x-prefixed hex word of up to 32 bytes or a decimal
// integer.
func parseWord(field, value string) (common.Hash, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Hash{}, fmt.Errorf("%s: value required", field)
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		digits := trimmed[2:]
		if len(digits) == 0 || len(digits) > 64 {
			return common.Hash{}, fmt.Errorf("%s: hex word must hold 1 to 64 digits", field)
		}
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		raw, err := hex.DecodeString(digits)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%s: %w", field, err)
		}
		return common.BytesToHash(raw), nil
	}
	n, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", field, err)
	}
	return common.Hash(n.Bytes32()), nil
}

func parseOptionalWord(field, value string, fallback common.Hash) (common.Hash, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return parseWord(field, value)
}

func parseAmount(field, value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return new(uint256.Int), nil
	}
	word, err := parseWord(field, value)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(word[:]), nil
}

func parseAccount(field, value string) (crypto.AccountID, error) {
	account, err := crypto.ParseAccountID(strings.TrimSpace(value))
	if err != nil {
		return crypto.AccountID{}, fmt.Errorf("%s: %w", field, err)
	}
	return account, nil
}

func parseWords(field string, values []string) ([]common.Hash, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: at least one token required", field)
	}
	out := make([]common.Hash, len(values))
	for i, value := range values {
		word, err := parseWord(fmt.Sprintf("%s[%d]", field, i), value)
		if err != nil {
			return nil, err
		}
		out[i] = word
	}
	return out, nil
}

// Transaction decodes the params into a replayable transaction.
func (p ReplayTxParams) Transaction() (*types.ReplayedTransaction, error) {
	from, err := parseAddress("from", p.From)
	if err != nil {
		return nil, err
	}
	tx := &types.ReplayedTransaction{ExecutionIndex: p.ExecutionIndex, From: from, V: p.V}
	numeric := []struct {
		name  string
		value string
		dst   **uint256.Int
	}{
		{"nonce", p.Nonce, &tx.Nonce},
		{"gasPrice", p.GasPrice, &tx.GasPrice},
		{"gasLimit", p.GasLimit, &tx.GasLimit},
		{"gasUsed", p.GasUsed, &tx.GasUsed},
		{"value", p.Value, &tx.Value},
	}
	for _, field := range numeric {
		amount, err := parseAmount(field.name, field.value)
		if err != nil {
			return nil, err
		}
		*field.dst = amount
	}
	if p.To != nil && strings.TrimSpace(*p.To) != "" {
		to, err := parseAddress("to", *p.To)
		if err != nil {
			return nil, err
		}
		tx.To = &to
	}
	if data := strings.TrimSpace(p.Data); data != "" {
		decoded, err := hexutil.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		tx.Data = decoded
	}
	if tx.R, err = parseWord("r", p.R); err != nil {
		return nil, err
	}
	if tx.S, err = parseWord("s", p.S); err != nil {
		return nil, err
	}
	return tx, nil
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatSettlement(s *replay.Settlement, balance *uint256.Int) SettlementResult {
	return SettlementResult{
		Prefund:   formatAmount(s.Prefund),
		UsedGas:   s.UsedGas,
		Withdrawn: formatAmount(s.Withdrawn),
		Balance:   formatAmount(balance),
	}
}

func formatScan(r migrate.ScanResult) ScanResult {
	return ScanResult{
		Collection:  r.Collection.Hex(),
		Pairs:       r.Pairs,
		Minted:      r.Minted,
		Transferred: r.Transferred,
		Skipped:     r.Skipped,
		Complete:    r.Complete,
		Next:        r.Next.Hex(),
	}
}

func formatClaim(r migrate.ClaimResult) ClaimResult {
	out := ClaimResult{
		Collection: r.Collection.Hex(),
		Claimed:    make([]ClaimedToken, 0, len(r.Claimed)),
		Skipped:    make([]SkippedToken, 0, len(r.Skipped)),
	}
	for _, c := range r.Claimed {
		out.Claimed = append(out.Claimed, ClaimedToken{Token: c.Token.Hex(), Outcome: c.Outcome.String()})
	}
	for _, s := range r.Skipped {
		out.Skipped = append(out.Skipped, SkippedToken{Token: s.Token.Hex(), Reason: s.Reason})
	}
	return out
}

func formatCollection(id registry.CollectionID, c *registry.Collection, exists bool, items []registry.ItemID) CollectionResult {
	out := CollectionResult{ID: id.Hex(), Exists: exists}
	if !exists || c == nil {
		return out
	}
	out.Admin = c.Admin.String()
	if c.Deposit != nil {
		out.Deposit = c.Deposit.String()
	}
	out.CreatedAt = c.CreatedAt
	out.Items = make([]string, 0, len(items))
	for _, item := range items {
		out.Items = append(out.Items, item.Hex())
	}
	return out
}
