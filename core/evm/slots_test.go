package evm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestScanBaseVectors(t *testing.T) {
	cases := map[uint64]string{
		0: "0x290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563",
		1: "0xb10e2d527612073b26eecdfd717e6a320cf44b4afac2b0732d9fcbe2b7fa0cf6",
		2: "0x405787fa12a823e0f2b7631cc41b3ba8828b3321ca811111fa75cd3aa3bb5ace",
	}
	for slot, want := range cases {
		require.Equal(t, common.HexToHash(want), ScanBase(SlotKey(slot)), "slot %d", slot)
	}
}

func TestMappingSlotVectors(t *testing.T) {
	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	require.Equal(t,
		common.HexToHash("0x858c5a7702dbcc7e542bf7cd777756ad7a1cf5ac44f955cea0b7008d7156d4a8"),
		MappingSlot(AddressKey(holder), SlotKey(1)),
	)
	require.Equal(t,
		common.HexToHash("0x870253054e3d98b71abec8fff9ebf8a15d167f15909091a800d4acaab9266d2b"),
		MappingSlot(IntegerKey(uint256.NewInt(7)), SlotKey(0)),
	)
}

func TestNestedSlotVector(t *testing.T) {
	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	require.Equal(t,
		common.HexToHash("0xdff1be03f85c9346fd49ef93353d7e29c2944ef5c0a988bf213b425d95c58291"),
		NestedSlot(holder, SlotKey(3)),
	)
}

func TestSlotDerivationIsDeterministic(t *testing.T) {
	key := IntegerKey(uint256.NewInt(42))
	first := MappingSlot(key, SlotKey(2))
	require.Equal(t, first, MappingSlot(key, SlotKey(2)))
	require.NotEqual(t, first, MappingSlot(key, SlotKey(3)))
	require.NotEqual(t, first, MappingSlot(IntegerKey(uint256.NewInt(43)), SlotKey(2)))
}

func TestAddOffsetWraps(t *testing.T) {
	require.Equal(t, SlotKey(5), AddOffset(SlotKey(3), 2))

	max := common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.Equal(t, SlotKey(1), AddOffset(max, 2))
}

func TestWordToAddress(t *testing.T) {
	addr := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	require.Equal(t, addr, WordToAddress(AddressKey(addr)))
	require.True(t, IsZeroWord(common.Hash{}))
	require.False(t, IsZeroWord(AddressKey(addr)))
	require.Equal(t, common.Hash{}, IntegerKey(nil))
}
