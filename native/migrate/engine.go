package migrate

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/events"
	"evmbridge/core/evm"
	"evmbridge/core/types"
	"evmbridge/crypto"
	nativecommon "evmbridge/native/common"
	"evmbridge/native/registry"
)

var (
	errNilState    = errors.New("migrate: state not configured")
	errNilRegistry = errors.New("migrate: registry not configured")
	errNilOracle   = errors.New("migrate: storage oracle not configured")
	errNilCaller   = errors.New("migrate: view caller not configured")
)

// itemRegistry is the registry surface reconciliation writes through.
type itemRegistry interface {
	Collection(id registry.CollectionID) (*registry.Collection, bool, error)
	CreateCollection(id registry.CollectionID, admin crypto.AccountID, deposit *uint256.Int) (bool, error)
	Owner(collection registry.CollectionID, item registry.ItemID) (crypto.AccountID, bool, error)
	Mint(collection registry.CollectionID, item registry.ItemID, owner crypto.AccountID) error
	Transfer(collection registry.CollectionID, item registry.ItemID, to crypto.AccountID) error
}

// storageOracle reads raw contract storage. Absent keys read as zero.
type storageOracle interface {
	GetState(contract common.Address, key common.Hash) common.Hash
}

// viewCaller performs read-only contract calls.
type viewCaller interface {
	Call(from, to common.Address, input []byte, gas uint64) ([]byte, error)
}

// depositor reserves the collection deposit from the admin.
type depositor interface {
	Withdraw(account crypto.AccountID, amount *uint256.Int, req evm.ExistenceRequirement) error
}

// engineState persists self-service quota counters.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine mirrors ERC-721 ownership found in EVM storage into the native
// registry.
type Engine struct {
	registry  itemRegistry
	oracle    storageOracle
	caller    viewCaller
	state     engineState
	depositor depositor
	converter Converter
	params    Params
	meter     Meter
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	nowFn     func() int64
}

// NewEngine wires the migration engine to the registry it writes and the EVM
// surfaces it reads.
func NewEngine(reg itemRegistry, oracle storageOracle, caller viewCaller) *Engine {
	return &Engine{
		registry:  reg,
		oracle:    oracle,
		caller:    caller,
		converter: IdentityConverter{},
		params:    DefaultParams(),
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the backend used for quota counters.
func (e *Engine) SetState(state engineState) {
	e.state = state
}

// SetParams replaces the engine parameters.
func (e *Engine) SetParams(params Params) {
	if params.CollectionDeposit == nil {
		params.CollectionDeposit = new(uint256.Int)
	}
	e.params = params
}

// Params returns the active parameters.
func (e *Engine) Params() Params {
	return e.params
}

// SetConverter overrides the identifier mapping. nil restores the identity.
func (e *Engine) SetConverter(c Converter) {
	if c == nil {
		e.converter = IdentityConverter{}
		return
	}
	e.converter = c
}

// SetMeter installs the per-pair scan hook.
func (e *Engine) SetMeter(m Meter) {
	e.meter = m
}

// SetPauses configures the pause view consulted on every entry point.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	e.pauses = p
}

// SetDepositor configures where collection deposits are reserved from.
func (e *Engine) SetDepositor(d depositor) {
	e.depositor = d
}

// SetEmitter configures the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for quota epochs.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Reconcile makes owner the registry owner of item, minting when the item is
// unowned and transferring when someone else holds it. Calling it again with
// the same arguments is a no-op.
func (e *Engine) Reconcile(collection registry.CollectionID, item registry.ItemID, owner crypto.AccountID) (Outcome, error) {
	if e.registry == nil {
		return OutcomeUnchanged, errNilRegistry
	}
	current, ok, err := e.registry.Owner(collection, item)
	if err != nil {
		return OutcomeUnchanged, err
	}
	switch {
	case !ok:
		if err := e.registry.Mint(collection, item, owner); err != nil {
			return OutcomeUnchanged, err
		}
		return OutcomeMinted, nil
	case current != owner:
		if err := e.registry.Transfer(collection, item, owner); err != nil {
			return OutcomeUnchanged, err
		}
		return OutcomeTransferred, nil
	default:
		return OutcomeUnchanged, nil
	}
}

// ResolveEVMAddress returns the EVM address bound to the signed caller.
func (e *Engine) ResolveEVMAddress(origin types.Origin) (common.Address, error) {
	signer, err := requireSigned(origin)
	if err != nil {
		return common.Address{}, err
	}
	addr := signer.EVMAddress()
	e.emitter.Emit(events.EvmAddress{Account: signer, Address: addr})
	return addr, nil
}

// ResolveAccountID returns the native account embedding addr.
func (e *Engine) ResolveAccountID(addr common.Address) crypto.AccountID {
	id := crypto.AccountFromEVM(addr)
	e.emitter.Emit(events.AccountResolved{Address: addr, Account: id})
	return id
}

func requireSigned(origin types.Origin) (crypto.AccountID, error) {
	signer, ok := origin.Signer()
	if !ok || signer.IsZero() {
		return crypto.AccountID{}, fmt.Errorf("%w: signed origin required", bridgeerrors.ErrUnauthorized)
	}
	return signer, nil
}

func requireRoot(origin types.Origin) error {
	if !origin.IsRoot() {
		return fmt.Errorf("%w: root origin required", bridgeerrors.ErrUnauthorized)
	}
	return nil
}

// ensureCollection creates the collection on first use and reserves the
// configured deposit from admin.
func (e *Engine) ensureCollection(id registry.CollectionID, admin crypto.AccountID) error {
	created, err := e.registry.CreateCollection(id, admin, e.params.CollectionDeposit)
	if err != nil {
		return err
	}
	if !created || e.depositor == nil || e.params.CollectionDeposit.IsZero() {
		return nil
	}
	if err := e.depositor.Withdraw(admin, e.params.CollectionDeposit, evm.KeepAlive); err != nil {
		return fmt.Errorf("migrate: collection deposit: %w", err)
	}
	return nil
}

func quotaKey(account crypto.AccountID) []byte {
	return []byte(fmt.Sprintf("migrate/quota/%x", account[:]))
}

// chargeQuota records one request and items against the caller's epoch quota.
func (e *Engine) chargeQuota(account crypto.AccountID, items uint64) error {
	q := e.params.Quota
	if q.MaxRequestsPerEpoch == 0 && q.MaxItemsPerEpoch == 0 {
		return nil
	}
	if e.state == nil {
		return errNilState
	}
	var prev nativecommon.QuotaNow
	if _, err := e.state.KVGet(quotaKey(account), &prev); err != nil {
		return err
	}
	next, err := nativecommon.CheckQuota(q, q.Epoch(e.nowFn()), prev, 1, items)
	if err != nil {
		return err
	}
	return e.state.KVPut(quotaKey(account), &next)
}
