package events

import (
	"encoding/hex"
	"strings"

	"github.com/holiman/uint256"
)

func formatAmount(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}

func hexBytes(b []byte) string {
	return "0x" + strings.ToLower(hex.EncodeToString(b))
}
