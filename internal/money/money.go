// Package money provides fixed-point helpers for amounts stored as integer
// minor units (cents). All arithmetic stays in int64; decimal strings appear
// only at input/output boundaries. Rounding is round-half-up, applied
// uniformly wherever division occurs.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in minor units.
type Amount = int64

// PromoPrice returns the discounted unit price for a base price and a
// promotional percentage. The percentage is clamped to [0, 100].
func PromoPrice(base Amount, promoPct int) Amount {
	if base <= 0 {
		return 0
	}
	if promoPct <= 0 {
		return base
	}
	if promoPct > 100 {
		promoPct = 100
	}
	// round-half-up on base * (100 - pct) / 100
	return (base*int64(100-promoPct) + 50) / 100
}

// FromDecimal parses a decimal string such as "12.50" into minor units.
// At most two fraction digits are accepted.
func FromDecimal(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two fraction digits", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return v, nil
}

// Decimal renders minor units as a decimal string with two fraction digits.
func Decimal(a Amount) string {
	sign := ""
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%02d", sign, a/100, a%100)
}

// Float converts minor units to a float major-unit value for payloads that
// require a number (gateway APIs). Never used for internal arithmetic.
func Float(a Amount) float64 {
	return float64(a) / 100
}
