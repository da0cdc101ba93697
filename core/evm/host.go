package evm

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/triedb"
)

// DefaultBlockGasLimit caps the gas a single replay or view call may consume.
const DefaultBlockGasLimit = 30_000_000

// Host owns the embedded go-ethereum account state the bridge reads from and
// replays into. The ledger, executor and storage oracle are thin views over
// the same StateDB so a single snapshot covers all of them.
//
// Host is not safe for concurrent use; the runtime serialises access.
type Host struct {
	db       *gethstate.CachingDB
	state    *gethstate.StateDB
	root     common.Hash
	chain    *params.ChainConfig
	coinbase common.Address
	gasLimit uint64
	height   uint64
	nowFn    func() time.Time
}

// NewHost opens the EVM state at root. A zero root opens the empty state.
func NewHost(trieDB *triedb.Database, root common.Hash) (*Host, error) {
	if root == (common.Hash{}) {
		root = gethtypes.EmptyRootHash
	}
	db := gethstate.NewDatabase(trieDB, nil)
	statedb, err := gethstate.New(root, db)
	if err != nil {
		return nil, fmt.Errorf("statedb init: %w", err)
	}
	return &Host{
		db:       db,
		state:    statedb,
		root:     root,
		chain:    params.TestChainConfig,
		gasLimit: DefaultBlockGasLimit,
		nowFn:    time.Now,
	}, nil
}

// SetChainConfig overrides the fork schedule used for execution.
func (h *Host) SetChainConfig(cfg *params.ChainConfig) {
	if cfg != nil {
		h.chain = cfg
	}
}

// SetCoinbase sets the account credited with execution tips.
func (h *Host) SetCoinbase(addr common.Address) {
	h.coinbase = addr
}

// SetGasLimit caps the gas available to a single message.
func (h *Host) SetGasLimit(limit uint64) {
	if limit > 0 {
		h.gasLimit = limit
	}
}

// SetHeight records the logical height used in the block context.
func (h *Host) SetHeight(height uint64) {
	h.height = height
}

// SetNowFunc overrides the wall clock used for the block timestamp.
func (h *Host) SetNowFunc(now func() time.Time) {
	if now == nil {
		h.nowFn = time.Now
		return
	}
	h.nowFn = now
}

// GasLimit returns the per-message gas cap.
func (h *Host) GasLimit() uint64 {
	return h.gasLimit
}

// Root returns the last committed EVM state root.
func (h *Host) Root() common.Hash {
	return h.root
}

// StateDB exposes the live state for callers that need raw access (tests,
// genesis tooling).
func (h *Host) StateDB() *gethstate.StateDB {
	return h.state
}

// GetState reads one storage word of contract. Keys that were never written
// read as the zero word.
func (h *Host) GetState(contract common.Address, key common.Hash) common.Hash {
	return h.state.GetState(contract, key)
}

// Snapshot marks a revision that RevertToSnapshot can roll back to.
func (h *Host) Snapshot() int {
	return h.state.Snapshot()
}

// RevertToSnapshot drops every mutation made after the given revision.
func (h *Host) RevertToSnapshot(id int) {
	h.state.RevertToSnapshot(id)
}

// Commit flushes pending mutations to the node database and reopens the state
// at the new root.
func (h *Host) Commit() (common.Hash, error) {
	root, err := h.state.Commit(h.height, true, false)
	if err != nil {
		return common.Hash{}, fmt.Errorf("statedb commit: %w", err)
	}
	if err := h.db.TrieDB().Commit(root, false); err != nil {
		return common.Hash{}, fmt.Errorf("triedb commit: %w", err)
	}
	statedb, err := gethstate.New(root, h.db)
	if err != nil {
		return common.Hash{}, fmt.Errorf("statedb reopen: %w", err)
	}
	h.state = statedb
	h.root = root
	return root, nil
}

// Reset discards uncommitted mutations.
func (h *Host) Reset() error {
	statedb, err := gethstate.New(h.root, h.db)
	if err != nil {
		return fmt.Errorf("statedb reset: %w", err)
	}
	h.state = statedb
	return nil
}

func (h *Host) newEVM() *gethvm.EVM {
	blockCtx := gethvm.BlockContext{
		CanTransfer: gethcore.CanTransfer,
		Transfer:    gethcore.Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    h.coinbase,
		GasLimit:    h.gasLimit,
		BlockNumber: new(big.Int).SetUint64(h.height),
		Time:        uint64(h.nowFn().Unix()),
		Difficulty:  big.NewInt(0),
		BaseFee:     big.NewInt(0),
		BlobBaseFee: big.NewInt(0),
	}
	return gethvm.NewEVM(blockCtx, h.state, h.chain, gethvm.Config{
		NoBaseFee: true,
	})
}
