// Package amount converts user-entered decimal strings to and from the
// integer base units used on chain.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmpty       = errors.New("amount is empty")
	ErrNotDecimal  = errors.New("amount is not a decimal number")
	ErrNotPositive = errors.New("amount must be positive")
	ErrPrecision   = errors.New("amount has more fractional digits than the asset supports")
)

// Same shape the transfer form accepts: digits with at most one dot.
var decimalInput = regexp.MustCompile(`^\d*\.?\d*$`)

// Parse validates a user amount and returns it as an exact decimal.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	if s == "." || !decimalInput.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotDecimal, s)
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotDecimal, s)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, ErrNotPositive
	}
	return d, nil
}

// ToBaseUnits scales a decimal string by 10^decimals using integer
// arithmetic only. "1.5" at 6 decimals is 1500000.
func ToBaseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := Parse(s)
	if err != nil {
		return nil, err
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s at %d decimals", ErrPrecision, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits renders base units as a decimal string without trailing
// zeros.
func FromBaseUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}
