package migrate

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"evmbridge/core/evm"
	"evmbridge/crypto"
	nativecommon "evmbridge/native/common"
	"evmbridge/native/registry"
)

// ErrScanBudgetExhausted is returned by a Meter to stop a scan early. The scan
// reports a resumable partial result instead of failing.
var ErrScanBudgetExhausted = errors.New("migrate: scan budget exhausted")

// Meter is consulted before each storage pair a scan reads. visited is the
// number of pairs already processed in the current call.
type Meter func(visited uint64) error

// Outcome describes what Reconcile did to the registry.
type Outcome uint8

const (
	OutcomeUnchanged Outcome = iota
	OutcomeMinted
	OutcomeTransferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMinted:
		return "minted"
	case OutcomeTransferred:
		return "transferred"
	default:
		return "unchanged"
	}
}

// Params configures the migration engine.
type Params struct {
	// BaseSlot is the declaration index whose keccak seeds full scans.
	BaseSlot uint64
	// MaxScanPairs bounds a single scan call. Zero disables the bound.
	MaxScanPairs uint64
	// ViewCallGas caps each ownerOf call. Zero uses the block gas limit.
	ViewCallGas       uint64
	AdminAccount      crypto.AccountID
	PalletAccount     crypto.AccountID
	CollectionDeposit *uint256.Int
	Quota             nativecommon.Quota
}

// DefaultParams returns the conventional ERC-721 layout with no scan bound.
func DefaultParams() Params {
	return Params{BaseSlot: evm.DefaultOwnerSlot, CollectionDeposit: new(uint256.Int)}
}

// Converter maps EVM identifiers onto registry identifiers. Implementations
// must be pure and injective.
type Converter interface {
	CollectionID(contract common.Address) registry.CollectionID
	ItemID(token common.Hash) registry.ItemID
}

// IdentityConverter reuses the contract address and token word verbatim.
type IdentityConverter struct{}

func (IdentityConverter) CollectionID(contract common.Address) registry.CollectionID {
	return registry.CollectionID(contract)
}

func (IdentityConverter) ItemID(token common.Hash) registry.ItemID {
	return registry.ItemID(token)
}

// ScanResult summarises one bounded walk over a contract's storage.
type ScanResult struct {
	Collection  registry.CollectionID
	Pairs       uint64
	Minted      uint64
	Transferred uint64
	Skipped     uint64
	// Complete is true when the walk reached the terminating zero pair.
	Complete bool
	// Next is the key to resume from when Complete is false, and the key of
	// the terminating pair otherwise.
	Next common.Hash
}

// Reconciled counts pairs that changed the registry.
func (r ScanResult) Reconciled() uint64 {
	return r.Minted + r.Transferred
}

// Claimed is a token the caller now owns in the registry.
type Claimed struct {
	Token   common.Hash
	Outcome Outcome
}

// Skipped is a token left untouched, with the reason.
type Skipped struct {
	Token  common.Hash
	Reason string
}

// ClaimResult reports per-token results of a self-service migration.
type ClaimResult struct {
	Collection registry.CollectionID
	Claimed    []Claimed
	Skipped    []Skipped
}
