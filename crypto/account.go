package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountPrefix is the human-readable part used when rendering native
// account identifiers.
const AccountPrefix = "evmb"

// AccountIDLength is the width of a native account identifier.
const AccountIDLength = 32

var (
	errAccountLength = errors.New("crypto: account id must be 32 bytes")
	errAccountPrefix = errors.New("crypto: unexpected account prefix")
)

// AccountID identifies a native ledger/registry account. EVM addresses embed
// into the first 20 bytes with the remainder zeroed, which makes the mapping
// between the two representations a pure function in both directions.
type AccountID [AccountIDLength]byte

// AccountFromEVM embeds an EVM address into a native account identifier.
func AccountFromEVM(addr common.Address) AccountID {
	var id AccountID
	copy(id[:common.AddressLength], addr.Bytes())
	return id
}

// AccountFromBytes copies b into an AccountID.
func AccountFromBytes(b []byte) (AccountID, error) {
	var id AccountID
	if len(b) != AccountIDLength {
		return id, errAccountLength
	}
	copy(id[:], b)
	return id, nil
}

// EVMAddress truncates the account to its first 20 bytes.
func (a AccountID) EVMAddress() common.Address {
	return common.BytesToAddress(a[:common.AddressLength])
}

// IsEVMDerived reports whether the account was produced by AccountFromEVM.
func (a AccountID) IsEVMDerived() bool {
	for _, b := range a[common.AddressLength:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsZero reports whether every byte of the identifier is zero.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func (a AccountID) Bytes() []byte {
	out := make([]byte, AccountIDLength)
	copy(out, a[:])
	return out
}

func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountID) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AccountPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAccountID parses the bech32 form produced by String.
func DecodeAccountID(s string) (AccountID, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(s))
	if err != nil {
		return AccountID{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AccountPrefix {
		return AccountID{}, fmt.Errorf("%w: %q", errAccountPrefix, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return AccountID{}, fmt.Errorf("error converting bits: %w", err)
	}
	return AccountFromBytes(conv)
}

// ParseAccountID accepts the bech32 form, a 32-byte hex string, or a 20-byte
// hex EVM address (which is embedded).
func ParseAccountID(s string) (AccountID, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, AccountPrefix+"1") {
		return DecodeAccountID(trimmed)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X"))
	if err != nil {
		return AccountID{}, fmt.Errorf("crypto: invalid account %q: %w", s, err)
	}
	switch len(raw) {
	case common.AddressLength:
		return AccountFromEVM(common.BytesToAddress(raw)), nil
	case AccountIDLength:
		return AccountFromBytes(raw)
	default:
		return AccountID{}, errAccountLength
	}
}

// MarshalText renders the bech32 form so accounts can be used directly in
// JSON and TOML documents.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// EVMAddress returns the Ethereum address controlled by the key.
func (k *PrivateKey) EVMAddress() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

// AccountID returns the native account bound to the key's EVM address.
func (k *PrivateKey) AccountID() AccountID {
	return AccountFromEVM(k.EVMAddress())
}
