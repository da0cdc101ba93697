package migrate

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/events"
	"evmbridge/core/evm"
	"evmbridge/core/types"
	"evmbridge/crypto"
	nativecommon "evmbridge/native/common"
	"evmbridge/native/registry"
)

const (
	scanModeFull  = "full"
	scanModeOwned = "owned"
)

// visitFunc handles one non-terminal (token, owner word) pair. It returns the
// reconciliation outcome, or skip=true when the pair was deliberately ignored.
type visitFunc func(token, ownerWord common.Hash) (outcome Outcome, skip bool, err error)

// CollectionRegion returns keccak256(pad32(slot)), the first key of the
// contract-wide (token, owner) region.
func CollectionRegion(slot uint64) common.Hash {
	return evm.ScanBase(evm.SlotKey(slot))
}

// AccountRegion returns keccak256(keccak256(pad32(addr)) ++ pad32(slot)), the
// first key of the (token, owner) pairs listed under addr.
func AccountRegion(addr common.Address, slot uint64) common.Hash {
	return evm.NestedSlot(addr, evm.SlotKey(slot))
}

// OwnerSlotKey locates the contract-owner word declared at slot: the slot
// itself for a plain variable, or mapping[key] when key is non-zero.
func OwnerSlotKey(slot uint64, key common.Hash) common.Hash {
	if key == (common.Hash{}) {
		return evm.SlotKey(slot)
	}
	return evm.MappingSlot(key, evm.SlotKey(slot))
}

// ScanStart returns the first key of the (token, owner) region for the
// configured base slot.
func (e *Engine) ScanStart() common.Hash {
	return CollectionRegion(e.params.BaseSlot)
}

// AccountScanStart returns the first key of addr's own region for the
// configured base slot.
func (e *Engine) AccountScanStart(addr common.Address) common.Hash {
	return AccountRegion(addr, e.params.BaseSlot)
}

// MigrateFullScan walks contract storage from the configured base slot and
// mirrors every (token, owner) pair into the registry. Root only.
func (e *Engine) MigrateFullScan(origin types.Origin, contract common.Address) (ScanResult, error) {
	return e.MigrateFullScanFrom(origin, contract, e.ScanStart())
}

// MigrateFullScanFrom resumes a full scan at start, typically the Next key of
// an earlier partial result.
func (e *Engine) MigrateFullScanFrom(origin types.Origin, contract common.Address, start common.Hash) (ScanResult, error) {
	if err := requireRoot(origin); err != nil {
		return ScanResult{}, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleMigrate); err != nil {
		return ScanResult{}, err
	}
	collection := e.converter.CollectionID(contract)
	admin := e.params.AdminAccount
	if admin.IsZero() {
		admin = e.params.PalletAccount
	}
	ensured := false
	result, err := e.scan(contract, start, func(token, ownerWord common.Hash) (Outcome, bool, error) {
		owner := crypto.AccountFromEVM(evm.WordToAddress(ownerWord))
		if owner.IsZero() {
			return OutcomeUnchanged, true, nil
		}
		if !ensured {
			if err := e.ensureCollection(collection, admin); err != nil {
				return OutcomeUnchanged, false, err
			}
			ensured = true
		}
		outcome, err := e.Reconcile(collection, e.converter.ItemID(token), owner)
		return outcome, false, err
	})
	if err != nil {
		return ScanResult{}, err
	}
	result.Collection = collection
	e.emitScan(scanModeFull, result)
	return result, nil
}

// ScanOwned lets the signed caller pull in the tokens EVM storage assigns to
// its own address. A missing collection is only created when the word at
// ownerKey names the caller as the contract owner. Tokens already held by
// anyone in the registry are left alone. A zero start scans the caller's own
// region under the configured base slot.
func (e *Engine) ScanOwned(origin types.Origin, contract common.Address, ownerKey, start common.Hash) (ScanResult, error) {
	signer, err := requireSigned(origin)
	if err != nil {
		return ScanResult{}, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleClaim); err != nil {
		return ScanResult{}, err
	}
	if e.registry == nil {
		return ScanResult{}, errNilRegistry
	}
	if e.oracle == nil {
		return ScanResult{}, errNilOracle
	}
	if err := e.chargeQuota(signer, 0); err != nil {
		return ScanResult{}, err
	}
	caller := signer.EVMAddress()
	if start == (common.Hash{}) {
		start = e.AccountScanStart(caller)
	}
	collection := e.converter.CollectionID(contract)

	exists, err := e.collectionExists(collection)
	if err != nil {
		return ScanResult{}, err
	}
	if !exists {
		ownerWord := e.oracle.GetState(contract, ownerKey)
		if evm.WordToAddress(ownerWord) != caller {
			return ScanResult{}, fmt.Errorf("%w: %s is not the contract owner", bridgeerrors.ErrUnauthorized, caller.Hex())
		}
		if err := e.ensureCollection(collection, e.params.PalletAccount); err != nil {
			return ScanResult{}, err
		}
	}

	result, err := e.scan(contract, start, func(token, ownerWord common.Hash) (Outcome, bool, error) {
		if evm.WordToAddress(ownerWord) != caller {
			return OutcomeUnchanged, true, nil
		}
		item := e.converter.ItemID(token)
		_, owned, err := e.registry.Owner(collection, item)
		if err != nil {
			return OutcomeUnchanged, false, err
		}
		if owned {
			return OutcomeUnchanged, true, nil
		}
		if err := e.registry.Mint(collection, item, signer); err != nil {
			return OutcomeUnchanged, false, err
		}
		return OutcomeMinted, false, nil
	})
	if err != nil {
		return ScanResult{}, err
	}
	result.Collection = collection
	e.emitScan(scanModeOwned, result)
	return result, nil
}

// scan reads consecutive (token, owner word) pairs from start until it meets
// a pair of zero words, MaxScanPairs is reached, or the meter stops it.
func (e *Engine) scan(contract common.Address, start common.Hash, visit visitFunc) (ScanResult, error) {
	if e.registry == nil {
		return ScanResult{}, errNilRegistry
	}
	if e.oracle == nil {
		return ScanResult{}, errNilOracle
	}
	var result ScanResult
	key := start
	for {
		if e.params.MaxScanPairs > 0 && result.Pairs >= e.params.MaxScanPairs {
			result.Next = key
			return result, nil
		}
		if e.meter != nil {
			if err := e.meter(result.Pairs); err != nil {
				if errors.Is(err, ErrScanBudgetExhausted) {
					result.Next = key
					return result, nil
				}
				return ScanResult{}, err
			}
		}
		token := e.oracle.GetState(contract, key)
		ownerWord := e.oracle.GetState(contract, evm.AddOffset(key, 1))
		if evm.IsZeroWord(token) && evm.IsZeroWord(ownerWord) {
			result.Complete = true
			result.Next = key
			return result, nil
		}
		outcome, skip, err := visit(token, ownerWord)
		if err != nil {
			return ScanResult{}, err
		}
		result.Pairs++
		switch {
		case skip:
			result.Skipped++
		case outcome == OutcomeMinted:
			result.Minted++
		case outcome == OutcomeTransferred:
			result.Transferred++
		}
		key = evm.AddOffset(key, 2)
	}
}

func (e *Engine) collectionExists(id registry.CollectionID) (bool, error) {
	_, exists, err := e.registry.Collection(id)
	return exists, err
}

func (e *Engine) emitScan(mode string, result ScanResult) {
	e.emitter.Emit(events.ScanCompleted{
		Mode:       mode,
		Collection: result.Collection,
		Pairs:      result.Pairs,
		Reconciled: result.Reconciled(),
		Complete:   result.Complete,
		Next:       result.Next,
	})
}
