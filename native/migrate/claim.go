package migrate

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/evm"
	"evmbridge/core/types"
	"evmbridge/crypto"
	nativecommon "evmbridge/native/common"
)

// ownerOfSelector is the ABI selector of ownerOf(uint256).
var ownerOfSelector = []byte{0x63, 0x52, 0x21, 0x1e}

const (
	reasonUnowned  = "item not in registry"
	reasonNotOwner = "item held by another account"
	reasonMismatch = "owner mismatch"
)

// ClaimItems re-targets items the registry attributes to the caller's EVM
// address onto the caller's native account. The registry is trusted as is;
// no EVM storage is read. Items that do not qualify are reported as skipped.
func (e *Engine) ClaimItems(origin types.Origin, contract common.Address, items []common.Hash) (ClaimResult, error) {
	signer, err := requireSigned(origin)
	if err != nil {
		return ClaimResult{}, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleClaim); err != nil {
		return ClaimResult{}, err
	}
	if e.registry == nil {
		return ClaimResult{}, errNilRegistry
	}
	if err := e.chargeQuota(signer, uint64(len(items))); err != nil {
		return ClaimResult{}, err
	}
	collection := e.converter.CollectionID(contract)
	result := ClaimResult{Collection: collection}
	expected := crypto.AccountFromEVM(signer.EVMAddress())
	ensured := false
	for _, token := range items {
		item := e.converter.ItemID(token)
		current, ok, err := e.registry.Owner(collection, item)
		if err != nil {
			return ClaimResult{}, err
		}
		if !ok {
			result.Skipped = append(result.Skipped, Skipped{Token: token, Reason: reasonUnowned})
			continue
		}
		if current != expected && current != signer {
			result.Skipped = append(result.Skipped, Skipped{Token: token, Reason: reasonNotOwner})
			continue
		}
		if !ensured {
			if err := e.ensureCollection(collection, e.params.PalletAccount); err != nil {
				return ClaimResult{}, err
			}
			ensured = true
		}
		outcome, err := e.Reconcile(collection, item, signer)
		if err != nil {
			return ClaimResult{}, err
		}
		result.Claimed = append(result.Claimed, Claimed{Token: token, Outcome: outcome})
	}
	return result, nil
}

// MigrateWithOwnerOf asks the contract who owns each token and mirrors the
// tokens whose ownerOf answer is the caller. This works for any storage
// layout. Failed calls, malformed answers and mismatches are skipped.
func (e *Engine) MigrateWithOwnerOf(origin types.Origin, contract common.Address, tokens []common.Hash) (ClaimResult, error) {
	signer, err := requireSigned(origin)
	if err != nil {
		return ClaimResult{}, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleClaim); err != nil {
		return ClaimResult{}, err
	}
	if e.registry == nil {
		return ClaimResult{}, errNilRegistry
	}
	if e.caller == nil {
		return ClaimResult{}, errNilCaller
	}
	if err := e.chargeQuota(signer, uint64(len(tokens))); err != nil {
		return ClaimResult{}, err
	}
	caller := signer.EVMAddress()
	collection := e.converter.CollectionID(contract)
	result := ClaimResult{Collection: collection}
	ensured := false
	for _, token := range tokens {
		owner, err := e.OwnerOf(caller, contract, token)
		if err != nil {
			result.Skipped = append(result.Skipped, Skipped{Token: token, Reason: err.Error()})
			continue
		}
		if owner != caller {
			result.Skipped = append(result.Skipped, Skipped{Token: token, Reason: fmt.Sprintf("%s: %s", reasonMismatch, owner.Hex())})
			continue
		}
		if !ensured {
			if err := e.ensureCollection(collection, e.params.PalletAccount); err != nil {
				return ClaimResult{}, err
			}
			ensured = true
		}
		outcome, err := e.Reconcile(collection, e.converter.ItemID(token), signer)
		if err != nil {
			return ClaimResult{}, err
		}
		result.Claimed = append(result.Claimed, Claimed{Token: token, Outcome: outcome})
	}
	return result, nil
}

// OwnerOf performs the ownerOf(token) view call against contract on behalf of
// from and decodes the returned address.
func (e *Engine) OwnerOf(from, contract common.Address, token common.Hash) (common.Address, error) {
	if e.caller == nil {
		return common.Address{}, errNilCaller
	}
	input := make([]byte, 0, len(ownerOfSelector)+common.HashLength)
	input = append(input, ownerOfSelector...)
	input = append(input, token[:]...)
	out, err := e.caller.Call(from, contract, input, e.params.ViewCallGas)
	if err != nil {
		if !errors.Is(err, bridgeerrors.ErrExecutionFailed) {
			err = fmt.Errorf("%w: %v", bridgeerrors.ErrExecutionFailed, err)
		}
		return common.Address{}, err
	}
	return DecodeOwner(out)
}

// DecodeOwner decodes an ownerOf return value. It requires exactly one word
// and reads the address from its low-order 20 bytes.
func DecodeOwner(out []byte) (common.Address, error) {
	if len(out) != common.HashLength {
		return common.Address{}, fmt.Errorf("%w: return length %d", bridgeerrors.ErrCallDecodeFailed, len(out))
	}
	return evm.WordToAddress(common.BytesToHash(out)), nil
}
