// Package units converts between integer token amounts and their decimal
// representation.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals of the native asset.
const EtherDecimals = 18

var errSyntax = errors.New("invalid decimal amount")

// FormatUnits renders amount as a decimal string with the given number of
// decimals. Trailing fractional zeros are trimmed but at least one fractional
// digit is kept, so 1000000 with 6 decimals is "1.0".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		amount = new(big.Int)
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))

	fracStr := ""
	if decimals > 0 {
		digits := frac.String()
		fracStr = strings.Repeat("0", int(decimals)-len(digits)) + digits
		fracStr = strings.TrimRight(fracStr, "0")
	}
	if fracStr == "" {
		fracStr = "0"
	}
	out := whole.String() + "." + fracStr
	if neg {
		out = "-" + out
	}
	return out
}

// FormatEther renders a wei amount in ether.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// ParseUnits parses a decimal string into an integer amount scaled by
// 10^decimals. It rejects more fractional digits than decimals allows.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, errSyntax
	}
	neg := false
	if s[0] == '-' {
		neg, s = true, s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", errSyntax, value)
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", errSyntax, value, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q", errSyntax, value)
		}
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errSyntax, value)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}

// MustParseUnits is ParseUnits for constants.
func MustParseUnits(value string, decimals uint8) *big.Int {
	n, err := ParseUnits(value, decimals)
	if err != nil {
		panic(err)
	}
	return n
}
