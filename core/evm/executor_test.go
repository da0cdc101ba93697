package evm

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/crypto"
	"evmbridge/storage"
)

func newTestHost(t *testing.T) (*Host, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	host, err := NewHost(db.TrieDB(), common.Hash{})
	require.NoError(t, err)
	return host, db
}

// ownerStubInitcode deploys a contract whose runtime returns owner as a
// 32-byte word for any calldata.
func ownerStubInitcode(owner common.Address) []byte {
	runtime := append([]byte{0x73}, owner.Bytes()...)
	runtime = append(runtime, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3)
	return deployWrapper(runtime)
}

// revertStubInitcode deploys a contract that always reverts.
func revertStubInitcode() []byte {
	return deployWrapper([]byte{0x60, 0x00, 0x80, 0xfd})
}

func deployWrapper(runtime []byte) []byte {
	size := byte(len(runtime))
	init := []byte{0x60, size, 0x80, 0x60, 0x0b, 0x60, 0x00, 0x39, 0x60, 0x00, 0xf3}
	return append(init, runtime...)
}

func deploy(t *testing.T, host *Host, deployer common.Address, initcode []byte) common.Address {
	t.Helper()
	exec := NewExecutor(host)
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Gas:      300_000,
		GasPrice: big.NewInt(0),
		Value:    big.NewInt(0),
		Data:     initcode,
	})
	res, err := exec.Execute(deployer, tx)
	require.NoError(t, err)
	require.NotNil(t, res.ContractAddress)
	return *res.ContractAddress
}

func TestExecutorValueTransfer(t *testing.T) {
	host, _ := newTestHost(t)
	ledger := NewLedger(host)
	exec := NewExecutor(host)

	from := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	require.NoError(t, ledger.Deposit(crypto.AccountFromEVM(from), uint256.NewInt(1_000_000)))

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		To:       &to,
		Gas:      100_000,
		GasPrice: big.NewInt(1),
		Value:    big.NewInt(500),
	})
	used, err := exec.Apply(from, tx)
	require.NoError(t, err)
	require.Equal(t, uint64(21_000), used)

	require.Equal(t, uint64(1_000_000-21_000-500), ledger.Balance(crypto.AccountFromEVM(from)).Uint64())
	require.Equal(t, uint64(500), ledger.Balance(crypto.AccountFromEVM(to)).Uint64())
}

func TestExecutorRejectsUnfundedSender(t *testing.T) {
	host, _ := newTestHost(t)
	exec := NewExecutor(host)

	to := common.HexToAddress("0x02")
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		To:       &to,
		Gas:      21_000,
		GasPrice: big.NewInt(1),
		Value:    big.NewInt(1),
	})
	_, err := exec.Apply(common.HexToAddress("0x01"), tx)
	require.True(t, errors.Is(err, bridgeerrors.ErrExecutionFailed))
}

func TestExecutorRejectsGasAboveCap(t *testing.T) {
	host, _ := newTestHost(t)
	host.SetGasLimit(50_000)
	to := common.HexToAddress("0x02")
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{To: &to, Gas: 60_000, GasPrice: big.NewInt(0), Value: big.NewInt(0)})
	_, err := NewExecutor(host).Apply(common.HexToAddress("0x01"), tx)
	require.ErrorIs(t, err, bridgeerrors.ErrExecutionFailed)
}

func TestExecutorCallReturnsOwnerWord(t *testing.T) {
	host, _ := newTestHost(t)
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	deployer := common.HexToAddress("0x00000000000000000000000000000000000000d0")
	contract := deploy(t, host, deployer, ownerStubInitcode(owner))

	caller := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	nonceBefore := host.StateDB().GetNonce(caller)
	input := append([]byte{0x63, 0x52, 0x21, 0x1e}, IntegerKey(uint256.NewInt(1)).Bytes()...)

	out, err := NewExecutor(host).Call(caller, contract, input, 100_000)
	require.NoError(t, err)
	require.Len(t, out, 32)
	require.True(t, bytes.Equal(AddressKey(owner).Bytes(), out))
	require.Equal(t, nonceBefore, host.StateDB().GetNonce(caller))
}

func TestExecutorCallRevert(t *testing.T) {
	host, _ := newTestHost(t)
	contract := deploy(t, host, common.HexToAddress("0xd1"), revertStubInitcode())

	_, err := NewExecutor(host).Call(common.HexToAddress("0xc1"), contract, nil, 0)
	require.ErrorIs(t, err, bridgeerrors.ErrExecutionFailed)
}

func TestExecutorCallWithoutCodeReturnsEmpty(t *testing.T) {
	host, _ := newTestHost(t)
	out, err := NewExecutor(host).Call(common.HexToAddress("0xc1"), common.HexToAddress("0xee"), []byte{0x01}, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestHostCommitAndReset(t *testing.T) {
	host, db := newTestHost(t)
	ledger := NewLedger(host)
	acct := crypto.AccountFromEVM(common.HexToAddress("0xaa"))

	require.NoError(t, ledger.Deposit(acct, uint256.NewInt(10)))
	root, err := host.Commit()
	require.NoError(t, err)
	require.Equal(t, root, host.Root())

	require.NoError(t, ledger.Deposit(acct, uint256.NewInt(5)))
	require.Equal(t, uint64(15), ledger.Balance(acct).Uint64())
	require.NoError(t, host.Reset())
	require.Equal(t, uint64(10), NewLedger(host).Balance(acct).Uint64())

	reopened, err := NewHost(db.TrieDB(), root)
	require.NoError(t, err)
	require.Equal(t, uint64(10), NewLedger(reopened).Balance(acct).Uint64())
}
