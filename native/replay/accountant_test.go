package replay

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/evm"
	"evmbridge/crypto"
	"evmbridge/storage"
)

type fakeLedger struct {
	balances  map[crypto.AccountID]*uint256.Int
	snapshots []map[crypto.AccountID]*uint256.Int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[crypto.AccountID]*uint256.Int)}
}

func (l *fakeLedger) balance(id crypto.AccountID) *uint256.Int {
	if b, ok := l.balances[id]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *fakeLedger) Deposit(id crypto.AccountID, amount *uint256.Int) error {
	l.balances[id] = new(uint256.Int).Add(l.balance(id), amount)
	return nil
}

func (l *fakeLedger) Withdraw(id crypto.AccountID, amount *uint256.Int, _ evm.ExistenceRequirement) error {
	next, underflow := new(uint256.Int).SubOverflow(l.balance(id), amount)
	if underflow {
		return evm.ErrInsufficientBalance
	}
	l.balances[id] = next
	return nil
}

func (l *fakeLedger) Snapshot() int {
	copied := make(map[crypto.AccountID]*uint256.Int, len(l.balances))
	for k, v := range l.balances {
		copied[k] = new(uint256.Int).Set(v)
	}
	l.snapshots = append(l.snapshots, copied)
	return len(l.snapshots) - 1
}

func (l *fakeLedger) RevertToSnapshot(id int) {
	l.balances = l.snapshots[id]
	l.snapshots = l.snapshots[:id]
}

// fakeExecutor charges usedGas*price and moves value, mirroring the EVM's
// own accounting.
type fakeExecutor struct {
	ledger  *fakeLedger
	usedGas uint64
	err     error
	calls   int
}

func (e *fakeExecutor) Apply(from common.Address, tx *gethtypes.Transaction) (uint64, error) {
	e.calls++
	if e.err != nil {
		return 0, e.err
	}
	price, _ := uint256.FromBig(tx.GasPrice())
	value, _ := uint256.FromBig(tx.Value())
	fee := new(uint256.Int).Mul(uint256.NewInt(e.usedGas), price)
	payer := crypto.AccountFromEVM(from)
	if err := e.ledger.Withdraw(payer, new(uint256.Int).Add(fee, value), evm.AllowDeath); err != nil {
		return 0, err
	}
	if to := tx.To(); to != nil {
		_ = e.ledger.Deposit(crypto.AccountFromEVM(*to), value)
	}
	return e.usedGas, nil
}

func legacyTx(gasLimit, price, value uint64) *gethtypes.Transaction {
	to := common.HexToAddress("0xb0")
	return gethtypes.NewTx(&gethtypes.LegacyTx{
		To:       &to,
		Gas:      gasLimit,
		GasPrice: new(big.Int).SetUint64(price),
		Value:    new(big.Int).SetUint64(value),
	})
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestPrepareAndSettleWorkedExample(t *testing.T) {
	ledger := newFakeLedger()
	exec := &fakeExecutor{ledger: ledger, usedGas: 90_000}
	acct := NewAccountant(ledger, exec)

	from := common.HexToAddress("0xa0")
	payer := crypto.AccountFromEVM(from)
	require.NoError(t, ledger.Deposit(payer, u(1_000_000)))

	settlement, err := acct.PrepareAndSettle(from, legacyTx(100_000, 1, 0), u(60_000), u(1), u(100_000), u(0))
	require.NoError(t, err)
	require.Equal(t, uint64(940_000), ledger.balance(payer).Uint64())
	require.Equal(t, uint64(100_000), settlement.Prefund.Uint64())
	require.Equal(t, uint64(70_000), settlement.Withdrawn.Uint64())
	require.Equal(t, uint64(90_000), settlement.UsedGas)
}

func TestPrepareAndSettleBalanceInvariant(t *testing.T) {
	cases := []struct {
		name     string
		gasLimit uint64
		gasUsed  uint64
		used     uint64
		price    uint64
		value    uint64
	}{
		{name: "agreeing gas", gasLimit: 50_000, gasUsed: 21_000, used: 21_000, price: 3, value: 10},
		{name: "executor under historical", gasLimit: 80_000, gasUsed: 60_000, used: 30_000, price: 2, value: 0},
		{name: "executor above limit", gasLimit: 40_000, gasUsed: 30_000, used: 55_000, price: 1, value: 7},
		{name: "zero price", gasLimit: 30_000, gasUsed: 25_000, used: 21_000, price: 0, value: 99},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := newFakeLedger()
			exec := &fakeExecutor{ledger: ledger, usedGas: tc.used}
			acct := NewAccountant(ledger, exec)
			from := common.HexToAddress("0xa1")
			payer := crypto.AccountFromEVM(from)
			require.NoError(t, ledger.Deposit(payer, u(1_000_000)))

			_, err := acct.PrepareAndSettle(from, legacyTx(tc.gasLimit, tc.price, tc.value),
				u(tc.gasUsed), u(tc.price), u(tc.gasLimit), u(tc.value))
			require.NoError(t, err)
			want := 1_000_000 - tc.gasUsed*tc.price - tc.value
			require.Equal(t, want, ledger.balance(payer).Uint64())
		})
	}
}

func TestPrepareAndSettlePrefundOverflow(t *testing.T) {
	ledger := newFakeLedger()
	exec := &fakeExecutor{ledger: ledger}
	acct := NewAccountant(ledger, exec)

	max := new(uint256.Int).SetAllOne()
	_, err := acct.PrepareAndSettle(common.HexToAddress("0xa2"), legacyTx(1, 1, 0), u(0), u(2), max, u(0))
	require.ErrorIs(t, err, bridgeerrors.ErrArithmeticOverflow)
	require.Zero(t, exec.calls)

	_, err = acct.PrepareAndSettle(common.HexToAddress("0xa2"), legacyTx(1, 1, 0), u(0), u(1), u(1), max)
	require.ErrorIs(t, err, bridgeerrors.ErrArithmeticOverflow)
	require.Empty(t, ledger.balances)
}

func TestPrepareAndSettleRollsBackPrefundOnUnderflow(t *testing.T) {
	ledger := newFakeLedger()
	exec := &fakeExecutor{ledger: ledger, usedGas: 200_000}
	acct := NewAccountant(ledger, exec)

	from := common.HexToAddress("0xa3")
	payer := crypto.AccountFromEVM(from)
	require.NoError(t, ledger.Deposit(payer, u(5_000_000)))

	_, err := acct.PrepareAndSettle(from, legacyTx(100_000, 1, 0), u(60_000), u(1), u(100_000), u(0))
	require.ErrorIs(t, err, bridgeerrors.ErrArithmeticOverflow)
	require.Equal(t, uint64(5_000_000), ledger.balance(payer).Uint64(), "prefund must not survive a failed settlement")
}

func TestPrepareAndSettleExecutorFailure(t *testing.T) {
	ledger := newFakeLedger()
	exec := &fakeExecutor{ledger: ledger, err: errors.New("out of gas")}
	acct := NewAccountant(ledger, exec)

	from := common.HexToAddress("0xa4")
	payer := crypto.AccountFromEVM(from)
	require.NoError(t, ledger.Deposit(payer, u(1_000)))

	_, err := acct.PrepareAndSettle(from, legacyTx(21_000, 1, 0), u(21_000), u(1), u(21_000), u(0))
	require.ErrorIs(t, err, bridgeerrors.ErrExecutionFailed)
	require.Equal(t, uint64(1_000), ledger.balance(payer).Uint64())
}

func TestPrepareAndSettleInsufficientHistoricalFunds(t *testing.T) {
	ledger := newFakeLedger()
	exec := &fakeExecutor{ledger: ledger, usedGas: 21_000}
	acct := NewAccountant(ledger, exec)

	from := common.HexToAddress("0xa5")
	payer := crypto.AccountFromEVM(from)
	require.NoError(t, ledger.Deposit(payer, u(10)))

	_, err := acct.PrepareAndSettle(from, legacyTx(21_000, 1, 0), u(21_000), u(1), u(21_000), u(0))
	require.ErrorIs(t, err, evm.ErrInsufficientBalance)
	require.Equal(t, uint64(10), ledger.balance(payer).Uint64())
}

func TestPrepareAndSettleIgnoresMinimumBalance(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	host, err := evm.NewHost(db.TrieDB(), common.Hash{})
	require.NoError(t, err)
	ledger := evm.NewLedger(host)
	ledger.SetMinimumBalance(u(50_000))
	acct := NewAccountant(ledger, evm.NewExecutor(host))

	from := common.HexToAddress("0x00000000000000000000000000000000000000f2")
	payer := crypto.AccountFromEVM(from)
	require.NoError(t, ledger.Deposit(payer, u(30_000)))

	// The replay leaves 30,000 - 21,000 = 9,000, below the floor.
	_, err = acct.PrepareAndSettle(from, legacyTx(50_000, 1, 0), u(21_000), u(1), u(50_000), u(0))
	require.NoError(t, err)
	require.Equal(t, uint64(9_000), ledger.Balance(payer).Uint64())
}

func TestPrepareAndSettleAgainstEmbeddedEVM(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	host, err := evm.NewHost(db.TrieDB(), common.Hash{})
	require.NoError(t, err)
	ledger := evm.NewLedger(host)
	acct := NewAccountant(ledger, evm.NewExecutor(host))

	from := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	payer := crypto.AccountFromEVM(from)
	require.NoError(t, ledger.Deposit(payer, u(1_000_000)))

	settlement, err := acct.PrepareAndSettle(from, legacyTx(100_000, 1, 500), u(30_000), u(1), u(100_000), u(500))
	require.NoError(t, err)
	require.Equal(t, uint64(21_000), settlement.UsedGas)
	require.Equal(t, uint64(1_000_000-30_000-500), ledger.Balance(payer).Uint64())
	require.Equal(t, uint64(500), ledger.Balance(crypto.AccountFromEVM(to)).Uint64())
}
