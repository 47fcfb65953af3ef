package currency

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ParseUnits converts a decimal string such as "0.00001" into base units.
// More fractional digits than decimals is an error rather than a silent
// truncation.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if decimals < 0 {
		return nil, fmt.Errorf("negative decimals %d", decimals)
	}
	neg := strings.HasPrefix(amount, "-")
	if neg {
		amount = amount[1:]
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid amount %q", amount)
		}
	}

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// MustParseUnits panics on malformed constants.
func MustParseUnits(amount string, decimals int) *big.Int {
	v, err := ParseUnits(amount, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders v with decimals fractional digits, trailing zeros
// trimmed.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	s := new(big.Int).Abs(v).String()
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
	}
	if decimals <= 0 {
		return sign + s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}

// RandomAmount draws a value in [min, max) using rnd (a [0,1) source),
// rounds it to places decimal places and returns it in base units. A value
// that rounds up to max is pulled back by one step.
func RandomAmount(min, max float64, places, decimals int, rnd func() float64) (*big.Int, error) {
	if max < min {
		return nil, fmt.Errorf("invalid range [%v, %v)", min, max)
	}
	if places > decimals {
		places = decimals
	}
	x := min + rnd()*(max-min)
	v, err := ParseUnits(strconv.FormatFloat(x, 'f', places, 64), decimals)
	if err != nil {
		return nil, err
	}
	hi, err := ParseUnits(strconv.FormatFloat(max, 'f', places, 64), decimals)
	if err != nil {
		return nil, err
	}
	if max > min && v.Cmp(hi) >= 0 {
		step := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-places)), nil)
		v.Sub(hi, step)
	}
	return v, nil
}

// ToFloat converts base units to a float64 for metrics only.
func ToFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), scale).Float64()
	return f
}
