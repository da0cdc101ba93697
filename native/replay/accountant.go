package replay

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/evm"
	"evmbridge/crypto"
)

// ledger is the native balance surface the accountant settles against.
type ledger interface {
	Deposit(account crypto.AccountID, amount *uint256.Int) error
	Withdraw(account crypto.AccountID, amount *uint256.Int, req evm.ExistenceRequirement) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// executor applies a transaction and reports the gas it used.
type executor interface {
	Apply(from common.Address, tx *gethtypes.Transaction) (uint64, error)
}

// Settlement records the balance movements of one replay.
type Settlement struct {
	Prefund   *uint256.Int
	UsedGas   uint64
	Withdrawn *uint256.Int
}

// Accountant pre-funds a replay, applies it, and withdraws the surplus so the
// payer ends at initial - gasUsed*gasPrice - value.
type Accountant struct {
	ledger   ledger
	executor executor
}

// NewAccountant wires an accountant to its ledger and executor.
func NewAccountant(l ledger, e executor) *Accountant {
	return &Accountant{ledger: l, executor: e}
}

func overflowErr(step string) error {
	return fmt.Errorf("%w: %s", bridgeerrors.ErrArithmeticOverflow, step)
}

// Prefund returns gasLimit*gasPrice + value.
func Prefund(gasLimit, gasPrice, value *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(gasLimit, gasPrice)
	if overflow {
		return nil, overflowErr("prefund gas")
	}
	if _, overflow = out.AddOverflow(out, value); overflow {
		return nil, overflowErr("prefund value")
	}
	return out, nil
}

// Surplus returns (gasUsed + gasLimit - usedGas) * gasPrice + value. It fails
// when the executor consumed more than gasUsed + gasLimit.
func Surplus(gasUsed, gasLimit *uint256.Int, usedGas uint64, gasPrice, value *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(gasUsed, gasLimit)
	if overflow {
		return nil, overflowErr("surplus gas budget")
	}
	if _, overflow = out.SubOverflow(out, uint256.NewInt(usedGas)); overflow {
		return nil, overflowErr("surplus used gas")
	}
	if _, overflow = out.MulOverflow(out, gasPrice); overflow {
		return nil, overflowErr("surplus price")
	}
	if _, overflow = out.AddOverflow(out, value); overflow {
		return nil, overflowErr("surplus value")
	}
	return out, nil
}

// PrepareAndSettle runs the prefund, apply and withdraw steps as one unit.
// Any failure reverts every balance change made since the prefund.
func (a *Accountant) PrepareAndSettle(from common.Address, tx *gethtypes.Transaction, gasUsed, gasPrice, gasLimit, value *uint256.Int) (*Settlement, error) {
	prefund, err := Prefund(gasLimit, gasPrice, value)
	if err != nil {
		return nil, err
	}
	payer := crypto.AccountFromEVM(from)

	snap := a.ledger.Snapshot()
	settled := false
	defer func() {
		if !settled {
			a.ledger.RevertToSnapshot(snap)
		}
	}()

	if err := a.ledger.Deposit(payer, prefund); err != nil {
		return nil, fmt.Errorf("replay: prefund: %w", err)
	}
	used, err := a.executor.Apply(from, tx)
	if err != nil {
		if !errors.Is(err, bridgeerrors.ErrExecutionFailed) {
			err = fmt.Errorf("%w: %v", bridgeerrors.ErrExecutionFailed, err)
		}
		return nil, err
	}
	extra, err := Surplus(gasUsed, gasLimit, used, gasPrice, value)
	if err != nil {
		return nil, err
	}
	if err := a.ledger.Withdraw(payer, extra, evm.AllowDeath); err != nil {
		return nil, fmt.Errorf("replay: settle: %w", err)
	}
	settled = true
	return &Settlement{Prefund: prefund, UsedGas: used, Withdrawn: extra}, nil
}
