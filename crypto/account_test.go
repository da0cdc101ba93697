package crypto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAccountFromEVMRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	id := AccountFromEVM(addr)

	require.True(t, id.IsEVMDerived())
	require.Equal(t, addr, id.EVMAddress())
	require.Equal(t, byte(0xaa), id[19])
	for _, b := range id[20:] {
		require.Zero(t, b)
	}
}

func TestAccountIDBech32(t *testing.T) {
	id := AccountFromEVM(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	encoded := id.String()
	require.True(t, strings.HasPrefix(encoded, AccountPrefix+"1"))

	decoded, err := DecodeAccountID(encoded)
	require.NoError(t, err)
	require.Equal(t, id, decoded)

	parsed, err := ParseAccountID(encoded)
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseAccountIDHexForms(t *testing.T) {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")

	fromAddr, err := ParseAccountID(addr.Hex())
	require.NoError(t, err)
	require.Equal(t, AccountFromEVM(addr), fromAddr)

	var raw AccountID
	raw[31] = 0x01
	fromFull, err := ParseAccountID(raw.Hex())
	require.NoError(t, err)
	require.Equal(t, raw, fromFull)
	require.False(t, fromFull.IsEVMDerived())

	_, err = ParseAccountID("0x1234")
	require.Error(t, err)
	_, err = ParseAccountID("not-hex")
	require.Error(t, err)
}

func TestAccountIDJSON(t *testing.T) {
	id := AccountFromEVM(common.HexToAddress("0x3333333333333333333333333333333333333333"))
	payload, err := json.Marshal(struct {
		Owner AccountID `json:"owner"`
	}{Owner: id})
	require.NoError(t, err)
	require.Contains(t, string(payload), id.String())

	var decoded struct {
		Owner AccountID `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, id, decoded.Owner)
}

func TestPrivateKeyAccount(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.EVMAddress(), restored.EVMAddress())
	require.Equal(t, AccountFromEVM(key.EVMAddress()), restored.AccountID())
}
