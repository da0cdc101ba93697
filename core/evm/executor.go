package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	bridgeerrors "evmbridge/core/errors"
)

var errGasCapExceeded = errors.New("executor: gas limit exceeds host cap")

// ApplyResult describes a message applied against the live state.
type ApplyResult struct {
	UsedGas    uint64
	ReturnData []byte
	// ContractAddress is set for successful contract creations.
	ContractAddress *common.Address
}

// Executor runs messages through go-ethereum's state transition on the host
// state.
type Executor struct {
	host *Host
}

// NewExecutor binds an executor to the host's state.
func NewExecutor(host *Host) *Executor {
	return &Executor{host: host}
}

// Apply executes tx on behalf of from and returns the gas it consumed. The
// executor debits used gas at the transaction's price and moves its value;
// reverted or rejected executions fail with ErrExecutionFailed.
func (e *Executor) Apply(from common.Address, tx *gethtypes.Transaction) (uint64, error) {
	res, err := e.Execute(from, tx)
	if err != nil {
		return 0, err
	}
	return res.UsedGas, nil
}

// Execute is Apply with the full execution outcome.
func (e *Executor) Execute(from common.Address, tx *gethtypes.Transaction) (*ApplyResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", bridgeerrors.ErrExecutionFailed)
	}
	if tx.Gas() > e.host.gasLimit {
		return nil, fmt.Errorf("%w: %w", bridgeerrors.ErrExecutionFailed, errGasCapExceeded)
	}
	statedb := e.host.state
	nonce := statedb.GetNonce(from)
	price := tx.GasPrice()
	// Replays run against current state, so the sender's live nonce is used
	// instead of the historical one.
	msg := gethcore.Message{
		From:      from,
		To:        tx.To(),
		Nonce:     nonce,
		Value:     tx.Value(),
		GasLimit:  tx.Gas(),
		GasPrice:  price,
		GasFeeCap: price,
		GasTipCap: price,
		Data:      tx.Data(),
	}
	evm := e.host.newEVM()
	evm.SetTxContext(gethcore.NewEVMTxContext(&msg))

	gp := new(gethcore.GasPool).AddGas(msg.GasLimit)
	result, err := gethcore.ApplyMessage(evm, &msg, gp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridgeerrors.ErrExecutionFailed, err)
	}
	if result.Err != nil {
		return nil, fmt.Errorf("%w: evm: %v", bridgeerrors.ErrExecutionFailed, result.Err)
	}
	out := &ApplyResult{UsedGas: result.UsedGas, ReturnData: result.ReturnData}
	if msg.To == nil {
		created := crypto.CreateAddress(from, nonce)
		out.ContractAddress = &created
	}
	return out, nil
}

// Call performs a read-only invocation of to. State changes made during the
// call, including the caller's nonce bump, are reverted before returning.
func (e *Executor) Call(from, to common.Address, input []byte, gas uint64) ([]byte, error) {
	if gas == 0 || gas > e.host.gasLimit {
		gas = e.host.gasLimit
	}
	statedb := e.host.state
	snap := statedb.Snapshot()
	defer statedb.RevertToSnapshot(snap)

	zero := new(big.Int)
	msg := gethcore.Message{
		From:      from,
		To:        &to,
		Nonce:     statedb.GetNonce(from),
		Value:     zero,
		GasLimit:  gas,
		GasPrice:  zero,
		GasFeeCap: zero,
		GasTipCap: zero,
		Data:      input,
	}
	evm := e.host.newEVM()
	evm.SetTxContext(gethcore.NewEVMTxContext(&msg))

	gp := new(gethcore.GasPool).AddGas(gas)
	result, err := gethcore.ApplyMessage(evm, &msg, gp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridgeerrors.ErrExecutionFailed, err)
	}
	if result.Err != nil {
		return nil, fmt.Errorf("%w: evm: %v", bridgeerrors.ErrExecutionFailed, result.Err)
	}
	return common.CopyBytes(result.ReturnData), nil
}
