package replay

import (
	"errors"

	"evmbridge/core/events"
	"evmbridge/core/types"
	"evmbridge/crypto"
)

var errNilTransaction = errors.New("replay: transaction required")

// Engine exposes the replay entry points: replaying an observed transaction
// and rotating the authority allowed to do so.
type Engine struct {
	gov        *Governance
	accountant *Accountant
	emitter    events.Emitter
}

// NewEngine constructs a replay engine. The governance component is the only
// source of authorization decisions.
func NewEngine(gov *Governance, accountant *Accountant) *Engine {
	return &Engine{gov: gov, accountant: accountant, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Governance returns the capability component used by the engine.
func (e *Engine) Governance() *Governance {
	return e.gov
}

// ReplayTx re-executes tx for its original sender and reconciles the sender's
// balance against the historical gas usage.
func (e *Engine) ReplayTx(origin types.Origin, tx *types.ReplayedTransaction) (*Settlement, error) {
	if err := e.gov.AuthorizeReplay(origin); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errNilTransaction
	}
	built, err := BuildTransaction(tx)
	if err != nil {
		return nil, err
	}
	settlement, err := e.accountant.PrepareAndSettle(tx.From, built, tx.GasUsed, tx.GasPrice, tx.GasLimit, tx.Value)
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.TransactionReplayed{
		ExecutionIndex: tx.ExecutionIndex,
		From:           tx.From,
		GasUsed:        settlement.UsedGas,
		Prefund:        settlement.Prefund,
		Withdrawn:      settlement.Withdrawn,
	})
	return settlement, nil
}

// SetAuthority replaces the replay authority. Only root may call it.
func (e *Engine) SetAuthority(origin types.Origin, authority crypto.AccountID) error {
	if err := e.gov.SetAuthority(origin, authority); err != nil {
		return err
	}
	e.emitter.Emit(events.AuthoritySet{Authority: authority})
	return nil
}
