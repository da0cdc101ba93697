package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// Both the bridge metadata and the trie nodes (native and EVM state) live in
// the same backend so a single directory captures the whole bridge state.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Close() // A way to gracefully shut down the database connection.

	// TrieDB exposes the node database shared by every trie opened on this
	// store, including go-ethereum's account state.
	TrieDB() *triedb.Database
}

type kvStore struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

func newKVStore(disk ethdb.Database) kvStore {
	return kvStore{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, triedb.HashDefaults),
	}
}

func (s kvStore) Put(key []byte, value []byte) error {
	return s.disk.Put(key, value)
}

func (s kvStore) Get(key []byte) ([]byte, error) {
	ok, err := s.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.disk.Get(key)
}

func (s kvStore) TrieDB() *triedb.Database {
	return s.trieDB
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kvStore
}

func NewMemDB() *MemDB {
	return &MemDB{kvStore: newKVStore(rawdb.NewMemoryDatabase())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.trieDB.Close()
	_ = db.disk.Close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	kvStore
}

// LevelDBOptions tunes the goleveldb backend. Zero values fall back to the
// go-ethereum defaults.
type LevelDBOptions struct {
	CacheMB  int
	Handles  int
	ReadOnly bool
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens a LevelDB database applying the supplied tuning.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	kv, err := gethleveldb.NewCustom(path, "evmbridge/db", func(o *opt.Options) {
		if opts.CacheMB > 0 {
			o.BlockCacheCapacity = opts.CacheMB / 2 * opt.MiB
			o.WriteBuffer = opts.CacheMB / 4 * opt.MiB
		}
		if opts.Handles > 0 {
			o.OpenFilesCacheCapacity = opts.Handles
		}
		o.ReadOnly = opts.ReadOnly
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{kvStore: newKVStore(rawdb.NewDatabase(kv))}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.disk.Close()
}
