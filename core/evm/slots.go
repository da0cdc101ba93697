package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// DefaultOwnerSlot is the declaration index of the tokenId -> owner mapping in
// a minimal ERC-721 layout.
const DefaultOwnerSlot = 2

// SlotKey pads a declaration index to a storage word.
func SlotKey(slot uint64) common.Hash {
	return common.Hash(uint256.NewInt(slot).Bytes32())
}

// AddressKey left-pads an address to a storage word.
func AddressKey(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// IntegerKey renders v as a big-endian storage word.
func IntegerKey(v *uint256.Int) common.Hash {
	if v == nil {
		return common.Hash{}
	}
	return common.Hash(v.Bytes32())
}

// MappingSlot derives the storage key of mapping[key] for a mapping declared at
// slot: keccak256(pad32(key) ++ pad32(slot)).
func MappingSlot(key, slot common.Hash) common.Hash {
	return crypto.Keccak256Hash(key[:], slot[:])
}

// NestedSlot derives keccak256(keccak256(pad32(addr)) ++ pad32(slot)), the
// starting key of an account-scoped region.
func NestedSlot(addr common.Address, slot common.Hash) common.Hash {
	padded := AddressKey(addr)
	inner := crypto.Keccak256Hash(padded[:])
	return crypto.Keccak256Hash(inner[:], slot[:])
}

// ScanBase returns keccak256(pad32(slot)), the first key of the sequential
// (token, owner) region scanned by full migrations.
func ScanBase(slot common.Hash) common.Hash {
	return crypto.Keccak256Hash(slot[:])
}

// AddOffset advances a storage key by n with 256-bit wrap-around.
func AddOffset(key common.Hash, n uint64) common.Hash {
	v := new(uint256.Int).SetBytes32(key[:])
	v.AddUint64(v, n)
	return common.Hash(v.Bytes32())
}

// WordToAddress reads a right-aligned address out of a storage word.
func WordToAddress(word common.Hash) common.Address {
	return common.BytesToAddress(word[common.HashLength-common.AddressLength:])
}

// IsZeroWord reports whether a storage word was never written.
func IsZeroWord(word common.Hash) bool {
	return word == common.Hash{}
}
