package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"evmbridge/crypto"
	"evmbridge/native/migrate"
	"evmbridge/native/registry"
)

// Owner returns the registry owner of item in collection.
func (r *Runtime) Owner(collection registry.CollectionID, item registry.ItemID) (crypto.AccountID, bool, error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.newRegistry().Owner(collection, item)
}

// Collection returns the stored collection metadata.
func (r *Runtime) Collection(id registry.CollectionID) (*registry.Collection, bool, error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.newRegistry().Collection(id)
}

// Items lists the items minted into collection in mint order.
func (r *Runtime) Items(id registry.CollectionID) ([]registry.ItemID, error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.newRegistry().Items(id)
}

// Balance returns the native balance of account.
func (r *Runtime) Balance(account crypto.AccountID) *uint256.Int {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.ledger.Balance(account)
}

// Authority returns the stored replay authority.
func (r *Runtime) Authority() (crypto.AccountID, bool, error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.gov.Authority()
}

// Roots returns the last committed EVM and native state roots together with
// the commit sequence.
func (r *Runtime) Roots() (evmRoot, nativeRoot common.Hash, seq uint64) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.host.Root(), r.trie.Root(), r.seq
}

// StorageAt reads one word of committed contract storage.
func (r *Runtime) StorageAt(contract common.Address, key common.Hash) common.Hash {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.host.GetState(contract, key)
}

// Identify maps an EVM contract and token word onto the registry identifiers
// the migration engine uses for them.
func (r *Runtime) Identify(contract common.Address, token common.Hash) (registry.CollectionID, registry.ItemID) {
	converter := r.opts.Converter
	if converter == nil {
		converter = migrate.IdentityConverter{}
	}
	return converter.CollectionID(contract), converter.ItemID(token)
}

// ScanStart returns the default first key of a full scan.
func (r *Runtime) ScanStart() common.Hash {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.newMigrationEngine().ScanStart()
}
