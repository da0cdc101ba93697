package registry

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"evmbridge/crypto"
)

// CollectionID names a native collection. Migrated collections reuse the
// source contract's address bytes.
type CollectionID [20]byte

// ItemID names an item inside a collection. Migrated items reuse the source
// token id word.
type ItemID [32]byte

func (c CollectionID) Hex() string { return "0x" + hex.EncodeToString(c[:]) }

func (i ItemID) Hex() string { return "0x" + hex.EncodeToString(i[:]) }

// ParseCollectionID accepts a 0x-prefixed 20-byte hex string.
func ParseCollectionID(s string) (CollectionID, error) {
	var id CollectionID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("registry: invalid collection id %q", s)
	}
	copy(id[:], raw)
	return id, nil
}

// ParseItemID accepts a hex word (left-padded when shorter than 32 bytes) or
// a decimal token id.
func ParseItemID(s string) (ItemID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ItemID{}, fmt.Errorf("registry: empty item id")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil || len(raw) > 32 {
			return ItemID{}, fmt.Errorf("registry: invalid item id %q", s)
		}
		return ItemID(common.BytesToHash(raw)), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return ItemID{}, fmt.Errorf("registry: invalid item id %q", s)
	}
	return ItemID(common.BigToHash(v)), nil
}

// Collection is the persisted collection header.
type Collection struct {
	Admin     crypto.AccountID
	Deposit   *big.Int
	CreatedAt uint64
}

type itemRecord struct {
	Owner     crypto.AccountID
	UpdatedAt uint64
}
