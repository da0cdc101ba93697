package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/events"
	"evmbridge/core/evm"
	nativestate "evmbridge/core/state"
	"evmbridge/core/types"
	"evmbridge/crypto"
	nativecommon "evmbridge/native/common"
	"evmbridge/native/migrate"
	"evmbridge/native/registry"
	"evmbridge/native/replay"
	"evmbridge/observability"
	"evmbridge/storage"
	"evmbridge/storage/trie"
)

var (
	metaEVMRoot    = []byte("meta/evm-root")
	metaNativeRoot = []byte("meta/native-root")
	metaSequence   = []byte("meta/sequence")
)

// Options configures a Runtime. Zero values select the defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics *observability.BridgeMetrics

	GasLimit            uint64
	MinimumBalance      *uint256.Int
	ReplayAuthority     crypto.AccountID
	AllowUnsetAuthority bool

	Migration migrate.Params
	ScanMeter migrate.Meter
	Converter migrate.Converter
	Pauses    nativecommon.PauseView

	Now func() time.Time
}

// Runtime is the single state-transition context of the bridge. Every entry
// point runs under stateMu as one logical transaction: on success both the EVM
// state and the native trie are committed and the buffered events delivered;
// on failure both are reopened at their last committed roots.
type Runtime struct {
	db       storage.Database
	trie     *trie.Trie
	manager  *nativestate.Manager
	host     *evm.Host
	ledger   *evm.Ledger
	executor *evm.Executor
	gov      *replay.Governance
	opts     Options
	logger   *slog.Logger
	metrics  *observability.BridgeMetrics

	stateMu     sync.Mutex
	seq         uint64
	buffer      *events.Buffer
	subscribers events.Fanout
}

// NewRuntime opens the bridge state stored in db at the roots recorded by the
// last commit.
func NewRuntime(db storage.Database, opts Options) (*Runtime, error) {
	if db == nil {
		return nil, errors.New("runtime: database required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Migration == (migrate.Params{}) {
		opts.Migration = migrate.DefaultParams()
	}

	evmRoot, err := loadRoot(db, metaEVMRoot)
	if err != nil {
		return nil, err
	}
	nativeRoot, err := loadRoot(db, metaNativeRoot)
	if err != nil {
		return nil, err
	}
	seq, err := loadSequence(db)
	if err != nil {
		return nil, err
	}

	host, err := evm.NewHost(db.TrieDB(), evmRoot)
	if err != nil {
		return nil, err
	}
	host.SetGasLimit(opts.GasLimit)
	host.SetNowFunc(opts.Now)

	var rootBytes []byte
	if nativeRoot != (common.Hash{}) {
		rootBytes = nativeRoot.Bytes()
	}
	stateTrie, err := trie.NewTrie(db, rootBytes)
	if err != nil {
		return nil, fmt.Errorf("native trie: %w", err)
	}
	manager := nativestate.NewManager(stateTrie)

	ledger := evm.NewLedger(host)
	if opts.MinimumBalance != nil {
		ledger.SetMinimumBalance(opts.MinimumBalance)
	}
	gov := replay.NewGovernance(manager)
	gov.SetAllowUnsetAuthority(opts.AllowUnsetAuthority)

	r := &Runtime{
		db:       db,
		trie:     stateTrie,
		manager:  manager,
		host:     host,
		ledger:   ledger,
		executor: evm.NewExecutor(host),
		gov:      gov,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		seq:      seq,
		buffer:   &events.Buffer{},
	}

	if !opts.ReplayAuthority.IsZero() {
		err := r.execute("bootstrap_authority", func() error {
			written, err := gov.Bootstrap(opts.ReplayAuthority)
			if err == nil && written {
				r.buffer.Emit(events.AuthoritySet{Authority: opts.ReplayAuthority})
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Subscribe registers an emitter that receives committed events in order.
// Subscribers must not call back into the runtime.
func (r *Runtime) Subscribe(emitter events.Emitter) {
	if emitter == nil {
		return
	}
	r.stateMu.Lock()
	r.subscribers = append(r.subscribers, emitter)
	r.stateMu.Unlock()
}

func (r *Runtime) newRegistry() *registry.Registry {
	reg := registry.New(r.manager)
	reg.SetEmitter(r.buffer)
	reg.SetNowFunc(func() int64 { return r.opts.Now().Unix() })
	return reg
}

func (r *Runtime) newReplayEngine() *replay.Engine {
	engine := replay.NewEngine(r.gov, replay.NewAccountant(r.ledger, r.executor))
	engine.SetEmitter(r.buffer)
	return engine
}

func (r *Runtime) newMigrationEngine() *migrate.Engine {
	engine := migrate.NewEngine(r.newRegistry(), r.host, r.executor)
	engine.SetState(r.manager)
	engine.SetParams(r.opts.Migration)
	engine.SetConverter(r.opts.Converter)
	engine.SetMeter(r.opts.ScanMeter)
	engine.SetPauses(r.opts.Pauses)
	engine.SetDepositor(r.ledger)
	engine.SetEmitter(r.buffer)
	engine.SetNowFunc(func() int64 { return r.opts.Now().Unix() })
	return engine
}

// ReplayTx re-executes an observed transaction for its sender and settles the
// sender's balance against the historical gas usage.
func (r *Runtime) ReplayTx(origin types.Origin, tx *types.ReplayedTransaction) (*replay.Settlement, error) {
	var settlement *replay.Settlement
	err := r.execute("replay_tx", func() error {
		if err := nativecommon.Guard(r.opts.Pauses, nativecommon.ModuleReplay); err != nil {
			return err
		}
		var err error
		settlement, err = r.newReplayEngine().ReplayTx(origin, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordReplayGas(settlement.UsedGas)
	return settlement, nil
}

// SetAuthority rotates the replay authority. Root only.
func (r *Runtime) SetAuthority(origin types.Origin, authority crypto.AccountID) error {
	return r.execute("set_authority", func() error {
		return r.newReplayEngine().SetAuthority(origin, authority)
	})
}

// Endow credits amount to account. Root only; used to seed development
// networks and to provision the pallet account for collection deposits.
func (r *Runtime) Endow(origin types.Origin, account crypto.AccountID, amount *uint256.Int) error {
	return r.execute("endow", func() error {
		if !origin.IsRoot() {
			return fmt.Errorf("%w: root origin required", bridgeerrors.ErrUnauthorized)
		}
		if amount == nil || amount.IsZero() {
			return nil
		}
		return r.ledger.Deposit(account, amount)
	})
}

// MigrateFullScan mirrors contract's (token, owner) storage pairs from the
// configured base slot. Root only.
func (r *Runtime) MigrateFullScan(origin types.Origin, contract common.Address) (migrate.ScanResult, error) {
	var result migrate.ScanResult
	err := r.execute("migrate_full_scan", func() error {
		var err error
		result, err = r.newMigrationEngine().MigrateFullScan(origin, contract)
		return err
	})
	if err == nil {
		r.metrics.RecordScan("full", result.Pairs)
	}
	return result, err
}

// MigrateFullScanFrom resumes a bounded full scan at start.
func (r *Runtime) MigrateFullScanFrom(origin types.Origin, contract common.Address, start common.Hash) (migrate.ScanResult, error) {
	var result migrate.ScanResult
	err := r.execute("migrate_full_scan", func() error {
		var err error
		result, err = r.newMigrationEngine().MigrateFullScanFrom(origin, contract, start)
		return err
	})
	if err == nil {
		r.metrics.RecordScan("full", result.Pairs)
	}
	return result, err
}

// ScanOwned imports the tokens EVM storage assigns to the signed caller.
func (r *Runtime) ScanOwned(origin types.Origin, contract common.Address, ownerKey, start common.Hash) (migrate.ScanResult, error) {
	var result migrate.ScanResult
	err := r.execute("scan_owned", func() error {
		var err error
		result, err = r.newMigrationEngine().ScanOwned(origin, contract, ownerKey, start)
		return err
	})
	if err == nil {
		r.metrics.RecordScan("owned", result.Pairs)
	}
	return result, err
}

// ClaimByItems re-targets registry items held by the caller's EVM identity
// onto its native account.
func (r *Runtime) ClaimByItems(origin types.Origin, contract common.Address, items []common.Hash) (migrate.ClaimResult, error) {
	var result migrate.ClaimResult
	err := r.execute("claim_by_items", func() error {
		var err error
		result, err = r.newMigrationEngine().ClaimItems(origin, contract, items)
		return err
	})
	return result, err
}

// MigrateWithOwnerOf mirrors tokens whose ownerOf view answers the caller.
func (r *Runtime) MigrateWithOwnerOf(origin types.Origin, contract common.Address, tokens []common.Hash) (migrate.ClaimResult, error) {
	var result migrate.ClaimResult
	err := r.execute("migrate_with_owner_of", func() error {
		var err error
		result, err = r.newMigrationEngine().MigrateWithOwnerOf(origin, contract, tokens)
		return err
	})
	return result, err
}

// ResolveEVMAddress returns the EVM address of the signed caller.
func (r *Runtime) ResolveEVMAddress(origin types.Origin) (common.Address, error) {
	var addr common.Address
	err := r.execute("resolve_evm_address", func() error {
		var err error
		addr, err = r.newMigrationEngine().ResolveEVMAddress(origin)
		return err
	})
	return addr, err
}

// ResolveAccountID returns the native account that embeds addr.
func (r *Runtime) ResolveAccountID(addr common.Address) (crypto.AccountID, error) {
	var id crypto.AccountID
	err := r.execute("resolve_account_id", func() error {
		id = r.newMigrationEngine().ResolveAccountID(addr)
		return nil
	})
	return id, err
}

// execute runs fn as one atomic state transition.
func (r *Runtime) execute(operation string, fn func() error) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	start := time.Now()
	err := fn()
	if err == nil {
		err = r.commit()
	}
	if err != nil {
		r.buffer.Discard()
		if rbErr := r.rollback(); rbErr != nil {
			r.logger.Error("bridge rollback failed", "operation", operation, "error", rbErr)
			err = errors.Join(err, rbErr)
		}
		r.metrics.Observe(operation, time.Since(start), err)
		r.logger.Warn("bridge operation rejected", "operation", operation, "error", err)
		return err
	}

	committed := r.buffer.Drain()
	r.metrics.Observe(operation, time.Since(start), nil)
	r.logger.Debug("bridge operation committed",
		"operation", operation,
		"events", len(committed),
		"seq", r.seq,
		"evm_root", r.host.Root().Hex(),
		"native_root", r.trie.Root().Hex())
	for _, evt := range committed {
		r.subscribers.Emit(evt)
	}
	return nil
}

func (r *Runtime) commit() error {
	evmRoot, err := r.host.Commit()
	if err != nil {
		return err
	}
	nativeRoot, err := r.trie.Commit(r.trie.Root(), r.seq+1)
	if err != nil {
		return fmt.Errorf("native commit: %w", err)
	}
	if err := r.db.Put(metaEVMRoot, evmRoot.Bytes()); err != nil {
		return err
	}
	if err := r.db.Put(metaNativeRoot, nativeRoot.Bytes()); err != nil {
		return err
	}
	r.seq++
	return r.db.Put(metaSequence, new(uint256.Int).SetUint64(r.seq).Bytes())
}

func (r *Runtime) rollback() error {
	if err := r.host.Reset(); err != nil {
		return err
	}
	return r.trie.Reset(r.trie.Root())
}

func loadRoot(db storage.Database, key []byte) (common.Hash, error) {
	raw, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, nil
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("load %s: %w", key, err)
	}
	return common.BytesToHash(raw), nil
}

func loadSequence(db storage.Database) (uint64, error) {
	raw, err := db.Get(metaSequence)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", metaSequence, err)
	}
	return new(uint256.Int).SetBytes(raw).Uint64(), nil
}
