package evm

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokensToUint converts a human amount to the token's smallest unit,
// truncating toward zero.
func TokensToUint(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// UintToTokens converts smallest units back to a human amount.
func UintToTokens(units *big.Int, decimals uint8) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}

// FormatAmount renders amount truncated to the token's precision with
// trailing zeros removed.
func FormatAmount(amount decimal.Decimal, decimals uint8) string {
	return amount.Truncate(int32(decimals)).String()
}

// GweiToWei converts a gwei amount to wei, truncating sub-wei precision.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Shift(9).Truncate(0).BigInt()
}
