package service

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// tokenAmount converts an on-chain integer amount into currency units
// quantized to 2 decimals, the precision of every ledger column.
func tokenAmount(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals).Round(2)
}

// ToBaseUnits is the inverse of tokenAmount, used when building contract
// arguments from ledger amounts.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

func contractID(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("campaign id %v out of range", v)
	}
	return v.Uint64(), nil
}

// progressOf returns total/goal*100 rounded to 2 decimals.
func progressOf(total, goal decimal.Decimal) decimal.Decimal {
	if !goal.IsPositive() {
		return decimal.Zero
	}
	return total.Div(goal).Mul(decimal.NewFromInt(100)).Round(2)
}
