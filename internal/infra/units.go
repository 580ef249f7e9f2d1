package infra

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals of the settlement currencies.
const EtherDecimals = 18

// ParseEther converts a human amount ("2", "0.25") into wei.
// Amounts with more than 18 decimals or a negative sign are rejected.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	wei := d.Shift(EtherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("parse amount %q: more than %d decimals", s, EtherDecimals)
	}
	return wei.BigInt(), nil
}

// MustParseEther is ParseEther for constants and tests.
func MustParseEther(s string) *big.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ToEther converts wei into a decimal ether amount.
func ToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals)
}

// FormatWei renders wei as an ether amount without trailing zeros.
func FormatWei(wei *big.Int) string {
	return ToEther(wei).String()
}
