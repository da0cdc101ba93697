package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"evmbridge/crypto"
)

// ReplayedTransaction is a previously observed EVM transaction submitted for
// replay. Numeric fields keep the full 256-bit width of the source chain; the
// accountant narrows them with checked conversions.
type ReplayedTransaction struct {
	// ExecutionIndex identifies the original execution for bookkeeping.
	ExecutionIndex uint64
	From           common.Address
	Nonce          *uint256.Int
	GasPrice       *uint256.Int
	GasLimit       *uint256.Int
	// GasUsed is the gas the transaction consumed when it originally ran.
	GasUsed *uint256.Int
	// To is nil for contract creation.
	To    *common.Address
	Value *uint256.Int
	Data  []byte

	V uint64
	R common.Hash
	S common.Hash
}

// IsCreate reports whether the transaction deploys a contract.
func (tx *ReplayedTransaction) IsCreate() bool {
	return tx.To == nil
}

// Payer returns the native account debited for the replay.
func (tx *ReplayedTransaction) Payer() crypto.AccountID {
	return crypto.AccountFromEVM(tx.From)
}

// Normalize replaces nil numeric fields with zero so downstream arithmetic
// never dereferences nil.
func (tx *ReplayedTransaction) Normalize() {
	for _, field := range []**uint256.Int{&tx.Nonce, &tx.GasPrice, &tx.GasLimit, &tx.GasUsed, &tx.Value} {
		if *field == nil {
			*field = new(uint256.Int)
		}
	}
}
