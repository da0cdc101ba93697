package evm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/holiman/uint256"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/crypto"
)

// ExistenceRequirement controls whether a withdrawal may drain an account
// below the minimum balance.
type ExistenceRequirement uint8

const (
	// KeepAlive rejects withdrawals that would leave less than the minimum
	// balance behind.
	KeepAlive ExistenceRequirement = iota
	// AllowDeath ignores the minimum: exactly the requested amount is
	// debited and the account may end anywhere down to zero. Replay
	// settlement uses it for its synthetic payer accounts.
	AllowDeath
)

// nativeBalanceBits is the width of a native ledger amount. EVM amounts are
// 256 bits wide and must narrow explicitly.
const nativeBalanceBits = 128

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrKeepAlive           = errors.New("ledger: withdrawal would reap account")
	ErrForeignAccount      = errors.New("ledger: account has no evm binding")
)

// Ledger applies native deposits and withdrawals directly to EVM account
// balances so execution and settlement observe the same funds.
type Ledger struct {
	host    *Host
	minimum *uint256.Int
}

// NewLedger binds a ledger to the host's state.
func NewLedger(host *Host) *Ledger {
	return &Ledger{host: host, minimum: new(uint256.Int)}
}

// SetMinimumBalance sets the existential floor enforced by KeepAlive.
func (l *Ledger) SetMinimumBalance(min *uint256.Int) {
	if min == nil {
		l.minimum = new(uint256.Int)
		return
	}
	l.minimum = new(uint256.Int).Set(min)
}

// MinimumBalance returns a copy of the existential floor.
func (l *Ledger) MinimumBalance() *uint256.Int {
	return new(uint256.Int).Set(l.minimum)
}

func checkNative(amount *uint256.Int) error {
	if amount.BitLen() > nativeBalanceBits {
		return fmt.Errorf("%w: amount %s exceeds native balance width", bridgeerrors.ErrArithmeticOverflow, amount.Dec())
	}
	return nil
}

func bind(account crypto.AccountID) error {
	if !account.IsEVMDerived() {
		return fmt.Errorf("%w: %s", ErrForeignAccount, account)
	}
	return nil
}

// Balance returns the spendable balance of account.
func (l *Ledger) Balance(account crypto.AccountID) *uint256.Int {
	return new(uint256.Int).Set(l.host.state.GetBalance(account.EVMAddress()))
}

// Deposit credits amount to account, creating it when absent.
func (l *Ledger) Deposit(account crypto.AccountID, amount *uint256.Int) error {
	if err := bind(account); err != nil {
		return err
	}
	if err := checkNative(amount); err != nil {
		return err
	}
	addr := account.EVMAddress()
	next, overflow := new(uint256.Int).AddOverflow(l.host.state.GetBalance(addr), amount)
	if overflow {
		return bridgeerrors.ErrArithmeticOverflow
	}
	if err := checkNative(next); err != nil {
		return err
	}
	l.host.state.AddBalance(addr, amount, tracing.BalanceChangeUnspecified)
	return nil
}

// Withdraw debits amount from account under the given existence policy.
func (l *Ledger) Withdraw(account crypto.AccountID, amount *uint256.Int, req ExistenceRequirement) error {
	if err := bind(account); err != nil {
		return err
	}
	if err := checkNative(amount); err != nil {
		return err
	}
	addr := account.EVMAddress()
	balance := l.host.state.GetBalance(addr)
	remaining, underflow := new(uint256.Int).SubOverflow(balance, amount)
	if underflow {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance.Dec(), amount.Dec())
	}
	if req == KeepAlive && remaining.Lt(l.minimum) {
		return ErrKeepAlive
	}
	l.host.state.SubBalance(addr, amount, tracing.BalanceChangeUnspecified)
	return nil
}

// Snapshot marks a revision covering every ledger and EVM mutation.
func (l *Ledger) Snapshot() int {
	return l.host.Snapshot()
}

// RevertToSnapshot rolls back to a revision returned by Snapshot.
func (l *Ledger) RevertToSnapshot(id int) {
	l.host.RevertToSnapshot(id)
}
