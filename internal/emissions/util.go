package emissions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatAmount formats an amount for display with two decimal places.
func FormatAmount(f float64) string {
	return fmt.Sprintf("%.*f", AmountPrecision, f)
}

// roundLimit is the magnitude above which float64 has no fractional
// precision left to round.
const roundLimit = 1 << 52

// Round2 rounds f half-up to two decimal places. Values too large to carry
// cents are returned unchanged.
func Round2(f float64) float64 {
	if math.Abs(f) >= roundLimit || math.IsNaN(f) {
		return f
	}
	return math.Floor(f*100+0.5) / 100
}

// ParseQuantity parses user input into a quantity.
// Surrounding whitespace is ignored and a comma is accepted as the decimal
// separator. Empty input returns ErrEmptyQuantity.
func ParseQuantity(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyQuantity
	}
	v, err := parseEuropeanFloat(s)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return v, nil
}

// parseEuropeanFloat parses s as a float64, accepting ',' as the decimal point.
func parseEuropeanFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return strconv.ParseFloat(s, 64)
}
