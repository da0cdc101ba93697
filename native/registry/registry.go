package registry

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"evmbridge/core/events"
	"evmbridge/crypto"
)

var (
	errNilState           = errors.New("registry: state not configured")
	ErrCollectionNotFound = errors.New("registry: collection not found")
	ErrItemNotFound       = errors.New("registry: item not found")
	ErrItemOwnedElsewhere = errors.New("registry: item already owned by another account")
	errZeroOwner          = errors.New("registry: owner must not be zero")
)

// storage abstracts the subset of state manager functionality required by the
// registry.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	collectionPrefix = []byte("registry/collection/")
	itemPrefix       = []byte("registry/item/")
	itemIndexPrefix  = []byte("registry/index/")
	itemCountPrefix  = []byte("registry/count/")
)

func collectionKey(id CollectionID) []byte {
	return []byte(fmt.Sprintf("%s%x", collectionPrefix, id))
}

func itemKey(collection CollectionID, item ItemID) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", itemPrefix, collection, item))
}

// itemIndexKey addresses the n-th minted item of a collection. Each mint
// writes one fixed-size entry and bumps the counter under itemCountKey.
func itemIndexKey(collection CollectionID, n uint64) []byte {
	return []byte(fmt.Sprintf("%s%x/%d", itemIndexPrefix, collection, n))
}

func itemCountKey(collection CollectionID) []byte {
	return []byte(fmt.Sprintf("%s%x", itemCountPrefix, collection))
}

// Registry stores collections and the single owner of each item. Every
// mutation is idempotent against state that already matches the request.
type Registry struct {
	state   storage
	emitter events.Emitter
	nowFn   func() int64
}

// New constructs a registry bound to the provided storage backend.
func New(store storage) *Registry {
	return &Registry{
		state:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(store storage) {
	r.state = store
}

// SetEmitter configures the event emitter.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the clock used for record timestamps.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// Collection returns the collection header if it exists.
func (r *Registry) Collection(id CollectionID) (*Collection, bool, error) {
	if r.state == nil {
		return nil, false, errNilState
	}
	var c Collection
	ok, err := r.state.KVGet(collectionKey(id), &c)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &c, true, nil
}

// CreateCollection registers id with the supplied admin and deposit. It
// reports false without error when the collection already exists.
func (r *Registry) CreateCollection(id CollectionID, admin crypto.AccountID, deposit *uint256.Int) (bool, error) {
	if r.state == nil {
		return false, errNilState
	}
	ok, err := r.state.KVGet(collectionKey(id), nil)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	amount := new(big.Int)
	if deposit != nil {
		amount = deposit.ToBig()
	}
	c := Collection{Admin: admin, Deposit: amount, CreatedAt: uint64(r.nowFn())}
	if err := r.state.KVPut(collectionKey(id), &c); err != nil {
		return false, err
	}
	var depositCopy *uint256.Int
	if deposit != nil {
		depositCopy = new(uint256.Int).Set(deposit)
	}
	r.emitter.Emit(events.CollectionCreated{Collection: id, Admin: admin, Deposit: depositCopy})
	return true, nil
}

// Owner returns the current owner of an item. ok is false when unowned.
func (r *Registry) Owner(collection CollectionID, item ItemID) (crypto.AccountID, bool, error) {
	if r.state == nil {
		return crypto.AccountID{}, false, errNilState
	}
	var rec itemRecord
	ok, err := r.state.KVGet(itemKey(collection, item), &rec)
	if err != nil || !ok {
		return crypto.AccountID{}, false, err
	}
	return rec.Owner, true, nil
}

// CollectionOwner returns the admin of a collection.
func (r *Registry) CollectionOwner(collection CollectionID) (crypto.AccountID, bool, error) {
	c, ok, err := r.Collection(collection)
	if err != nil || !ok {
		return crypto.AccountID{}, ok, err
	}
	return c.Admin, true, nil
}

// Mint assigns an unowned item to owner. Minting an item already held by the
// same owner is a no-op; held by anyone else it fails.
func (r *Registry) Mint(collection CollectionID, item ItemID, owner crypto.AccountID) error {
	if r.state == nil {
		return errNilState
	}
	if owner.IsZero() {
		return errZeroOwner
	}
	if err := r.requireCollection(collection); err != nil {
		return err
	}
	current, ok, err := r.Owner(collection, item)
	if err != nil {
		return err
	}
	if ok {
		if current == owner {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrItemOwnedElsewhere, item.Hex())
	}
	if err := r.writeOwner(collection, item, owner); err != nil {
		return err
	}
	if err := r.appendIndex(collection, item); err != nil {
		return err
	}
	r.emitter.Emit(events.ItemMinted{Collection: collection, Item: item, Owner: owner})
	return nil
}

// Transfer moves an owned item to a new owner. Transferring to the current
// owner is a no-op.
func (r *Registry) Transfer(collection CollectionID, item ItemID, to crypto.AccountID) error {
	if r.state == nil {
		return errNilState
	}
	if to.IsZero() {
		return errZeroOwner
	}
	current, ok, err := r.Owner(collection, item)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item.Hex())
	}
	if current == to {
		return nil
	}
	if err := r.writeOwner(collection, item, to); err != nil {
		return err
	}
	r.emitter.Emit(events.ItemTransferred{Collection: collection, Item: item, From: current, To: to})
	return nil
}

// ItemCount returns how many items were ever minted into collection.
func (r *Registry) ItemCount(collection CollectionID) (uint64, error) {
	if r.state == nil {
		return 0, errNilState
	}
	var count uint64
	if _, err := r.state.KVGet(itemCountKey(collection), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Items lists the items ever minted into collection in mint order.
func (r *Registry) Items(collection CollectionID) ([]ItemID, error) {
	count, err := r.ItemCount(collection)
	if err != nil {
		return nil, err
	}
	out := make([]ItemID, 0, count)
	for n := uint64(0); n < count; n++ {
		var id ItemID
		ok, err := r.state.KVGet(itemIndexKey(collection, n), &id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("registry: index entry %d of %s missing", n, collection.Hex())
		}
		out = append(out, id)
	}
	return out, nil
}

// appendIndex records a newly minted item. Items are never removed, so each
// one is indexed exactly once.
func (r *Registry) appendIndex(collection CollectionID, item ItemID) error {
	count, err := r.ItemCount(collection)
	if err != nil {
		return err
	}
	if err := r.state.KVPut(itemIndexKey(collection, count), item); err != nil {
		return err
	}
	return r.state.KVPut(itemCountKey(collection), count+1)
}

func (r *Registry) requireCollection(id CollectionID) error {
	ok, err := r.state.KVGet(collectionKey(id), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, id.Hex())
	}
	return nil
}

func (r *Registry) writeOwner(collection CollectionID, item ItemID, owner crypto.AccountID) error {
	rec := itemRecord{Owner: owner, UpdatedAt: uint64(r.nowFn())}
	return r.state.KVPut(itemKey(collection, item), &rec)
}
