// Package units is the only legal boundary between the three monetary
// representations: human decimal currency, off-chain integer subunits
// (cents) and on-chain integer base units (18 decimals). Amounts headed for
// a value-carrying call must be produced here by exact integer scaling;
// nothing in this package goes through a float.
package units

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
)

const (
	subunitDecimals  = 2
	baseUnitDecimals = 18
)

// 1 subunit = 10^16 base units.
var subunitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(baseUnitDecimals-subunitDecimals), nil)

// ToBaseUnits converts off-chain subunits to on-chain base units by exact
// big-integer multiplication.
func ToBaseUnits(subunits int64) (*big.Int, error) {
	if subunits < 0 {
		return nil, escrow.Errorf(escrow.KindInvalidAmount, "units.ToBaseUnits", "negative amount %d", subunits)
	}
	return new(big.Int).Mul(big.NewInt(subunits), subunitScale), nil
}

// FromBaseUnits renders a base-unit amount as a display currency string,
// rounded (never truncated) to two decimal places. Display strings are for
// humans only and must never feed back into a transaction input.
func FromBaseUnits(base *big.Int) string {
	if base == nil {
		base = new(big.Int)
	}
	return decimal.NewFromBigInt(base, -baseUnitDecimals).Round(subunitDecimals).StringFixed(subunitDecimals)
}

// ParseDisplayAmount converts a human-entered currency string to subunits
// using exact decimal arithmetic. Fractions of a subunit, negative values and
// non-numeric input are rejected.
func ParseDisplayAmount(s string) (int64, error) {
	const op = "units.ParseDisplayAmount"
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, escrow.Errorf(escrow.KindInvalidAmount, op, "unparseable amount %q", s)
	}
	if d.IsNegative() {
		return 0, escrow.Errorf(escrow.KindInvalidAmount, op, "negative amount %q", s)
	}
	sub := d.Shift(subunitDecimals)
	if !sub.IsInteger() {
		return 0, escrow.Errorf(escrow.KindInvalidAmount, op, "amount %q has sub-cent precision", s)
	}
	if !sub.BigInt().IsInt64() {
		return 0, escrow.Errorf(escrow.KindInvalidAmount, op, "amount %q out of range", s)
	}
	return sub.IntPart(), nil
}
