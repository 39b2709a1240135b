package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func setTxHash(attrs map[string]string, hash common.Hash) {
	if hash != (common.Hash{}) {
		attrs["txHash"] = hash.Hex()
	}
}

func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
