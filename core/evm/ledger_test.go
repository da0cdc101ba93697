package evm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/crypto"
)

func TestLedgerDepositWithdraw(t *testing.T) {
	host, _ := newTestHost(t)
	ledger := NewLedger(host)
	acct := crypto.AccountFromEVM(common.HexToAddress("0xa1"))

	require.NoError(t, ledger.Deposit(acct, uint256.NewInt(100)))
	require.NoError(t, ledger.Withdraw(acct, uint256.NewInt(40), KeepAlive))
	require.Equal(t, uint64(60), ledger.Balance(acct).Uint64())

	err := ledger.Withdraw(acct, uint256.NewInt(61), AllowDeath)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, uint64(60), ledger.Balance(acct).Uint64())
}

func TestLedgerExistencePolicy(t *testing.T) {
	host, _ := newTestHost(t)
	ledger := NewLedger(host)
	ledger.SetMinimumBalance(uint256.NewInt(10))
	acct := crypto.AccountFromEVM(common.HexToAddress("0xa2"))

	require.NoError(t, ledger.Deposit(acct, uint256.NewInt(50)))
	require.ErrorIs(t, ledger.Withdraw(acct, uint256.NewInt(45), KeepAlive), ErrKeepAlive)

	require.NoError(t, ledger.Withdraw(acct, uint256.NewInt(45), AllowDeath))
	require.Equal(t, uint64(5), ledger.Balance(acct).Uint64(), "balance below the floor is kept, not burned")
	require.NoError(t, ledger.Withdraw(acct, uint256.NewInt(5), AllowDeath))
	require.True(t, ledger.Balance(acct).IsZero())
}

func TestLedgerNativeWidth(t *testing.T) {
	host, _ := newTestHost(t)
	ledger := NewLedger(host)
	acct := crypto.AccountFromEVM(common.HexToAddress("0xa3"))

	wide := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	require.ErrorIs(t, ledger.Deposit(acct, wide), bridgeerrors.ErrArithmeticOverflow)

	maxNative := new(uint256.Int).Sub(wide, uint256.NewInt(1))
	require.NoError(t, ledger.Deposit(acct, maxNative))
	require.ErrorIs(t, ledger.Deposit(acct, uint256.NewInt(1)), bridgeerrors.ErrArithmeticOverflow)
}

func TestLedgerRejectsForeignAccounts(t *testing.T) {
	host, _ := newTestHost(t)
	ledger := NewLedger(host)
	var foreign crypto.AccountID
	foreign[31] = 1
	require.ErrorIs(t, ledger.Deposit(foreign, uint256.NewInt(1)), ErrForeignAccount)
	require.ErrorIs(t, ledger.Withdraw(foreign, uint256.NewInt(1), AllowDeath), ErrForeignAccount)
}

func TestLedgerSnapshotRevert(t *testing.T) {
	host, _ := newTestHost(t)
	ledger := NewLedger(host)
	acct := crypto.AccountFromEVM(common.HexToAddress("0xa4"))

	require.NoError(t, ledger.Deposit(acct, uint256.NewInt(7)))
	snap := ledger.Snapshot()
	require.NoError(t, ledger.Deposit(acct, uint256.NewInt(100)))
	ledger.RevertToSnapshot(snap)
	require.Equal(t, uint64(7), ledger.Balance(acct).Uint64())
	require.Equal(t, uint64(0), ledger.MinimumBalance().Uint64())
}
