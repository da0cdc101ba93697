package replay

import (
	"fmt"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/types"
)

// recoveryID maps a legacy or EIP-155 v value to the 0/1 recovery id.
func recoveryID(v uint64) (byte, bool) {
	switch {
	case v == 27 || v == 28:
		return byte(v - 27), true
	case v >= 35:
		return byte((v - 35) % 2), true
	default:
		return 0, false
	}
}

// ValidateSignature checks that (v, r, s) is a well-formed secp256k1
// signature triple. High-s values are accepted since historical transactions
// predate the low-s rule.
func ValidateSignature(tx *types.ReplayedTransaction) error {
	if tx == nil {
		return bridgeerrors.ErrInvalidSignature
	}
	id, ok := recoveryID(tx.V)
	if !ok {
		return fmt.Errorf("%w: unsupported v %d", bridgeerrors.ErrInvalidSignature, tx.V)
	}
	r := new(big.Int).SetBytes(tx.R[:])
	s := new(big.Int).SetBytes(tx.S[:])
	if !crypto.ValidateSignatureValues(id, r, s, false) {
		return fmt.Errorf("%w: r/s out of range", bridgeerrors.ErrInvalidSignature)
	}
	return nil
}

// BuildTransaction converts a replay request into the go-ethereum legacy
// transaction handed to the executor.
func BuildTransaction(tx *types.ReplayedTransaction) (*gethtypes.Transaction, error) {
	if err := ValidateSignature(tx); err != nil {
		return nil, err
	}
	tx.Normalize()
	if !tx.Nonce.IsUint64() {
		return nil, fmt.Errorf("%w: nonce exceeds 64 bits", bridgeerrors.ErrArithmeticOverflow)
	}
	if !tx.GasLimit.IsUint64() {
		return nil, fmt.Errorf("%w: gas limit exceeds 64 bits", bridgeerrors.ErrArithmeticOverflow)
	}
	var to = tx.To
	if to != nil {
		copied := *to
		to = &copied
	}
	return gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    tx.Nonce.Uint64(),
		GasPrice: tx.GasPrice.ToBig(),
		Gas:      tx.GasLimit.Uint64(),
		To:       to,
		Value:    tx.Value.ToBig(),
		Data:     append([]byte(nil), tx.Data...),
		V:        new(big.Int).SetUint64(tx.V),
		R:        new(big.Int).SetBytes(tx.R[:]),
		S:        new(big.Int).SetBytes(tx.S[:]),
	}), nil
}
