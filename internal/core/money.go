package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"donations/internal/locale"
)

// RoundAmount rounds v half away from zero to two fractional digits.
// NaN and infinities are returned unchanged so validation can reject them.
func RoundAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ParseAmount converts user input into a positive amount rounded to two
// decimals. Dot and comma decimal separators and Arabic-Indic digits are
// accepted.
//
// Examples:
//
//	ParseAmount("12.345") -> 12.35
//	ParseAmount("12,5")   -> 12.5
//	ParseAmount("١٠")     -> 10
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(locale.ASCIIDigits(s))
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	v := d.Round(2).InexactFloat64()
	if !validAmount(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
