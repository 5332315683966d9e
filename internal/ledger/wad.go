package ledger

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Pool amounts are unsigned 18-decimal fixed point ("wads"), mirroring the
// on-chain representation the reference deployment uses.

var wadScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Wad converts whole token units to the 18-decimal representation.
func Wad(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), wadScale)
}

// ParseAmount parses a human decimal string ("0.5", "1000") into a wad.
// Precision beyond 18 decimals truncates toward zero, matching the fixed
// point arithmetic of the ledger itself.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	return d.Shift(18).Truncate(0).BigInt(), nil
}

// FormatAmount renders a wad as a decimal string with trailing zeros trimmed.
func FormatAmount(w *big.Int) string {
	if w == nil {
		return "0"
	}
	return decimal.NewFromBigInt(w, -18).String()
}

// FormatPrice renders a wad-scaled price with four decimal places, the
// precision the caller-facing API reports.
func FormatPrice(w *big.Int) string {
	if w == nil {
		return "0.0000"
	}
	return decimal.NewFromBigInt(w, -18).StringFixed(4)
}
